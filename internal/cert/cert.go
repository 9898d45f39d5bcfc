// Package cert bootstraps the CA, server and client certificates used by
// the gRPC health endpoint's mutual TLS.
package cert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	grpctls "github.com/EternisAI/vconnector/internal/grpc/tls"
)

const (
	organization = "vconnector"
	keyBits      = 2048
)

var ErrNotRSA = errors.New("CA key is not an RSA private key")

type Options struct {
	DomainNames []string
	IPAddresses []net.IP
	// ClientName is the common name of the issued client certificate.
	ClientName string
}

// Paths lists the PEM files under a certificate directory.
type Paths struct {
	CACert     string
	CAKey      string
	ServerCert string
	ServerKey  string
	ClientCert string
	ClientKey  string
}

func PathsIn(dir string) Paths {
	return Paths{
		CACert:     filepath.Join(dir, "ca.pem"),
		CAKey:      filepath.Join(dir, "ca-key.pem"),
		ServerCert: filepath.Join(dir, "server.pem"),
		ServerKey:  filepath.Join(dir, "server-key.pem"),
		ClientCert: filepath.Join(dir, "client.pem"),
		ClientKey:  filepath.Join(dir, "client-key.pem"),
	}
}

func (p Paths) Server() grpctls.Files {
	return grpctls.Files{Cert: p.ServerCert, Key: p.ServerKey, CA: p.CACert}
}

func (p Paths) Client() grpctls.Files {
	return grpctls.Files{Cert: p.ClientCert, Key: p.ClientKey, CA: p.CACert}
}

// Ensure creates whichever of the CA, server and client pairs are missing
// in dir. An existing CA is reused to sign new leaves.
func Ensure(dir string, opts Options) (Paths, error) {
	paths := PathsIn(dir)
	if len(opts.DomainNames) == 0 {
		opts.DomainNames = []string{"localhost"}
	}
	if len(opts.IPAddresses) == 0 {
		opts.IPAddresses = []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")}
	}
	if opts.ClientName == "" {
		opts.ClientName = "vconnector-cli"
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return paths, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	var (
		caCert *x509.Certificate
		caKey  *rsa.PrivateKey
		err    error
	)
	if fileExists(paths.CACert) && fileExists(paths.CAKey) {
		slog.Debug("Using existing CA certificate", "cert_path", paths.CACert)
		caCert, caKey, err = loadCA(paths.CACert, paths.CAKey)
		if err != nil {
			return paths, fmt.Errorf("failed to load existing CA certificate: %w", err)
		}
	} else {
		caCert, caKey, err = issue(&x509.Certificate{
			Subject:               pkix.Name{Organization: []string{organization}, CommonName: "vconnector Root CA"},
			NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
			KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
			BasicConstraintsValid: true,
			IsCA:                  true,
			MaxPathLenZero:        true,
		}, nil, nil)
		if err != nil {
			return paths, fmt.Errorf("failed to generate CA certificate: %w", err)
		}
		if err := writePair(caCert, caKey, paths.CACert, paths.CAKey); err != nil {
			return paths, err
		}
		slog.Info("Generated CA certificate", "cert_path", paths.CACert)
	}

	leaves := []struct {
		certPath, keyPath string
		template          *x509.Certificate
	}{
		{paths.ServerCert, paths.ServerKey, &x509.Certificate{
			Subject:     pkix.Name{Organization: []string{organization}, CommonName: opts.DomainNames[0]},
			ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
			DNSNames:    opts.DomainNames,
			IPAddresses: opts.IPAddresses,
		}},
		{paths.ClientCert, paths.ClientKey, &x509.Certificate{
			Subject:     pkix.Name{Organization: []string{organization}, CommonName: opts.ClientName},
			ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		}},
	}
	for _, leaf := range leaves {
		if fileExists(leaf.certPath) && fileExists(leaf.keyPath) {
			slog.Debug("Using existing certificate", "cert_path", leaf.certPath)
			continue
		}
		leaf.template.NotAfter = time.Now().Add(365 * 24 * time.Hour)
		leaf.template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
		leaf.template.BasicConstraintsValid = true

		c, k, err := issue(leaf.template, caCert, caKey)
		if err != nil {
			return paths, fmt.Errorf("failed to generate certificate %s: %w", leaf.certPath, err)
		}
		if err := writePair(c, k, leaf.certPath, leaf.keyPath); err != nil {
			return paths, err
		}
		slog.Info("Generated certificate", "cert_path", leaf.certPath, "common_name", c.Subject.CommonName)
	}
	return paths, nil
}

// issue signs template with parent, or self-signs when parent is nil.
func issue(template, parent *x509.Certificate, parentKey *rsa.PrivateKey) (*x509.Certificate, *rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	template.SerialNumber = serial
	template.NotBefore = time.Now().Add(-time.Minute)

	if parent == nil {
		parent, parentKey = template, key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, parentKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	c, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return c, key, nil
}

func loadCA(certPath, keyPath string) (*x509.Certificate, *rsa.PrivateKey, error) {
	certBytes, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	certBlock, _ := pem.Decode(certBytes)
	if certBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode CA certificate PEM")
	}
	caCert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CA key: %w", err)
	}
	keyBlock, _ := pem.Decode(keyBytes)
	if keyBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode CA key PEM")
	}
	key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CA key: %w", err)
	}
	caKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, ErrNotRSA
	}
	return caCert, caKey, nil
}

func writePair(c *x509.Certificate, key *rsa.PrivateKey, certPath, keyPath string) error {
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw}), 0o644); err != nil {
		return fmt.Errorf("failed to write certificate %s: %w", certPath, err)
	}

	keyBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes}), 0o600); err != nil {
		return fmt.Errorf("failed to write key %s: %w", keyPath, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
