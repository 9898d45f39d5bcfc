package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/grpc/credentials"
)

var (
	ErrInvalidClientAuth = errors.New("invalid client auth type (valid: none, request, require)")
	ErrNoCA              = errors.New("CA file is required")
)

// Files names the PEM files of one side of a TLS connection.
type Files struct {
	Cert string
	Key  string
	CA   string
}

// LoadServerCredentials serves files.Cert and, unless clientAuth is
// tls.NoClientCert, verifies clients against files.CA.
func LoadServerCredentials(files Files, clientAuth tls.ClientAuthType) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(files.Cert, files.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   clientAuth,
		MinVersion:   tls.VersionTLS12,
	}
	if clientAuth != tls.NoClientCert {
		if config.ClientCAs, err = loadCAPool(files.CA); err != nil {
			return nil, err
		}
	}
	return credentials.NewTLS(config), nil
}

// LoadClientCredentials presents files.Cert and trusts only files.CA.
// serverName overrides the name checked against the server certificate.
func LoadClientCredentials(files Files, serverName string) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(files.Cert, files.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}
	pool, err := loadCAPool(files.CA)
	if err != nil {
		return nil, err
	}

	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}), nil
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	if caFile == "" {
		return nil, ErrNoCA
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("failed to append CA certificate from %s", caFile)
	}
	return pool, nil
}

// ParseClientAuthType maps a config value to a tls.ClientAuthType. Empty
// means none.
func ParseClientAuthType(authType string) (tls.ClientAuthType, error) {
	switch strings.ToLower(strings.TrimSpace(authType)) {
	case "", "none":
		return tls.NoClientCert, nil
	case "request":
		return tls.VerifyClientCertIfGiven, nil
	case "require":
		return tls.RequireAndVerifyClientCert, nil
	default:
		return tls.NoClientCert, fmt.Errorf("%w: %q", ErrInvalidClientAuth, authType)
	}
}
