package client

import (
	"context"
	"fmt"
	"log/slog"

	grpctls "github.com/EternisAI/vconnector/internal/grpc/tls"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type TLSConfig struct {
	Enabled            bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerNameOverride string
}

// HealthClient queries the standard gRPC health service of a server.
type HealthClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

func NewHealthClient(serverAddr string, tlsConfig *TLSConfig, extra ...grpc.DialOption) (*HealthClient, error) {
	var opts []grpc.DialOption

	if tlsConfig != nil && tlsConfig.Enabled {
		creds, err := grpctls.LoadClientCredentials(grpctls.Files{
			Cert: tlsConfig.CertFile,
			Key:  tlsConfig.KeyFile,
			CA:   tlsConfig.CAFile,
		}, tlsConfig.ServerNameOverride)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		slog.Debug("Using insecure connection (TLS disabled)")
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(serverAddr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial server: %w", err)
	}
	return &HealthClient{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Check returns the serving status name for service; empty service checks
// the server as a whole.
func (c *HealthClient) Check(ctx context.Context, service string) (string, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", fmt.Errorf("health check %q: %w", service, err)
	}
	return resp.GetStatus().String(), nil
}

func (c *HealthClient) Close() error {
	return c.conn.Close()
}
