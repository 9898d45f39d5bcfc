package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	grpctls "github.com/EternisAI/vconnector/internal/grpc/tls"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StoreService is the health service name reporting credential store
// reachability.
const StoreService = "vconnector.store"

type TLSConfig struct {
	Enabled    bool
	CertFile   string
	KeyFile    string
	CAFile     string
	ClientAuth string
}

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	port       int
	tlsConfig  *TLSConfig

	mu       sync.Mutex
	listener net.Listener
}

func NewServer(port int, tlsConfig *TLSConfig) *Server {
	hs := health.NewServer()
	hs.SetServingStatus(StoreService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		health:    hs,
		port:      port,
		tlsConfig: tlsConfig,
	}
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	var opts []grpc.ServerOption
	if s.tlsConfig != nil && s.tlsConfig.Enabled {
		clientAuth, err := grpctls.ParseClientAuthType(s.tlsConfig.ClientAuth)
		if err != nil {
			return err
		}
		creds, err := grpctls.LoadServerCredentials(grpctls.Files{
			Cert: s.tlsConfig.CertFile,
			Key:  s.tlsConfig.KeyFile,
			CA:   s.tlsConfig.CAFile,
		}, clientAuth)
		if err != nil {
			return fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
		slog.Info("gRPC TLS enabled", "client_auth", s.tlsConfig.ClientAuth)
	} else {
		slog.Warn("gRPC TLS disabled")
	}

	s.mu.Lock()
	s.listener = lis
	s.grpcServer = grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	srv := s.grpcServer
	s.mu.Unlock()

	slog.Info("Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}

// SetServing updates the status reported for service. An empty service
// names the server as a whole.
func (s *Server) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

// WatchStore runs check every interval and reports the result under
// StoreService until ctx is done.
func (s *Server) WatchStore(ctx context.Context, interval time.Duration, check func(ctx context.Context) error) {
	probe := func() {
		err := check(ctx)
		if err != nil {
			slog.Warn("Credential store check failed", "error", err)
		}
		s.SetServing(StoreService, err == nil)
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Stopping gRPC server")
	s.health.Shutdown()

	s.mu.Lock()
	srv := s.grpcServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		slog.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		slog.Warn("gRPC server stop timeout, forcing shutdown")
		srv.Stop()
	}
	return nil
}

func (s *Server) StopWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Stop(ctx)
}
