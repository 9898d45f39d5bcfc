package tls

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientAuthType(t *testing.T) {
	cases := map[string]tls.ClientAuthType{
		"":        tls.NoClientCert,
		"none":    tls.NoClientCert,
		"request": tls.VerifyClientCertIfGiven,
		"Require": tls.RequireAndVerifyClientCert,
	}
	for in, want := range cases {
		got, err := ParseClientAuthType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseClientAuthType("always")
	assert.ErrorIs(t, err, ErrInvalidClientAuth)
}

func TestLoadServerCredentialsMissingFiles(t *testing.T) {
	_, err := LoadServerCredentials(Files{Cert: "missing.crt", Key: "missing.key"}, tls.NoClientCert)
	assert.ErrorContains(t, err, "failed to load server certificate")
}

func TestLoadClientCredentialsMissingFiles(t *testing.T) {
	_, err := LoadClientCredentials(Files{Cert: "missing.crt", Key: "missing.key", CA: "ca.crt"}, "")
	assert.ErrorContains(t, err, "failed to load client certificate")
}

func TestLoadCAPool(t *testing.T) {
	_, err := loadCAPool("")
	assert.ErrorIs(t, err, ErrNoCA)

	junk := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(junk, []byte("not a certificate"), 0o644))
	_, err = loadCAPool(junk)
	assert.ErrorContains(t, err, "failed to append CA certificate")
}
