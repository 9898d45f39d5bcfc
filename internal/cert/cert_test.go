package cert

import (
	stdtls "crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	grpctls "github.com/EternisAI/vconnector/internal/grpc/tls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseCert(t *testing.T, path string) *x509.Certificate {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	block, _ := pem.Decode(b)
	require.NotNil(t, block)
	c, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	return c
}

func TestEnsureCreatesChain(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	paths, err := Ensure(dir, Options{DomainNames: []string{"vconnector.local"}})
	require.NoError(t, err)

	ca := parseCert(t, paths.CACert)
	assert.True(t, ca.IsCA)
	pool := x509.NewCertPool()
	pool.AddCert(ca)

	server := parseCert(t, paths.ServerCert)
	assert.Equal(t, "vconnector.local", server.Subject.CommonName)
	_, err = server.Verify(x509.VerifyOptions{Roots: pool, DNSName: "vconnector.local"})
	assert.NoError(t, err)

	client := parseCert(t, paths.ClientCert)
	assert.Equal(t, "vconnector-cli", client.Subject.CommonName)
	_, err = client.Verify(x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}})
	assert.NoError(t, err)

	info, err := os.Stat(paths.ServerKey)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnsureReusesExisting(t *testing.T) {
	dir := t.TempDir()
	paths, err := Ensure(dir, Options{})
	require.NoError(t, err)
	before, err := os.ReadFile(paths.CACert)
	require.NoError(t, err)

	require.NoError(t, os.Remove(paths.ClientCert))
	_, err = Ensure(dir, Options{ClientName: "ops"})
	require.NoError(t, err)

	after, err := os.ReadFile(paths.CACert)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	pool := x509.NewCertPool()
	pool.AddCert(parseCert(t, paths.CACert))
	client := parseCert(t, paths.ClientCert)
	assert.Equal(t, "ops", client.Subject.CommonName)
	_, err = client.Verify(x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}})
	assert.NoError(t, err)
}

func TestEnsureCorruptCA(t *testing.T) {
	dir := t.TempDir()
	paths := PathsIn(dir)
	require.NoError(t, os.WriteFile(paths.CACert, []byte("junk"), 0o644))
	require.NoError(t, os.WriteFile(paths.CAKey, []byte("junk"), 0o600))

	_, err := Ensure(dir, Options{})
	assert.ErrorContains(t, err, "decode CA certificate")
}

func TestGeneratedFilesLoadAsGRPCCredentials(t *testing.T) {
	paths, err := Ensure(t.TempDir(), Options{})
	require.NoError(t, err)

	_, err = grpctls.LoadServerCredentials(paths.Server(), stdtls.RequireAndVerifyClientCert)
	assert.NoError(t, err)
	_, err = grpctls.LoadClientCredentials(paths.Client(), "localhost")
	assert.NoError(t, err)
}
