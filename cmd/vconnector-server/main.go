package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	internalhttp "github.com/EternisAI/vconnector/internal/api/http"
	"github.com/EternisAI/vconnector/internal/cert"
	grpcserver "github.com/EternisAI/vconnector/internal/grpc/server"
	"github.com/EternisAI/vconnector/internal/secret"
	"github.com/EternisAI/vconnector/internal/session"
	"github.com/EternisAI/vconnector/internal/store"
	"github.com/EternisAI/vconnector/internal/vsphere"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("vConnector Server", "version", AppVersion)

	if config.Auth.JWTSecret == "" {
		slog.Error("auth.jwt_secret is required")
		os.Exit(1)
	}

	cipher, err := secret.NewCipher(config.EncryptionKey)
	if err != nil {
		slog.Error("Invalid encryption key", "error", err)
		os.Exit(1)
	}
	if cipher == nil {
		slog.Warn("No encryption key configured, passwords are stored in clear text")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	credStore, err := store.Open(ctx, config.Database, cipher)
	if err != nil {
		slog.Error("Failed to open credential store", "error", err)
		os.Exit(1)
	}
	defer credStore.Close()

	if ok, err := credStore.Initialized(ctx); err != nil || !ok {
		slog.Warn("Credential store schema is not current, run vconnector-cli init", "error", err)
	}

	var sessionOpts []session.Option
	if config.Session.Timeout > 0 {
		sessionOpts = append(sessionOpts, session.WithTimeout(config.Session.Timeout))
	}
	if config.Session.LockDir != "" {
		sessionOpts = append(sessionOpts, session.WithLockDir(config.Session.LockDir))
	}
	registry := session.NewRegistry(vsphere.NewEndpoint(config.Vsphere), sessionOpts...)

	tlsConfig := &grpcserver.TLSConfig{
		Enabled:    config.Grpc.TLS.Enabled,
		CertFile:   config.Grpc.TLS.CertFile,
		KeyFile:    config.Grpc.TLS.KeyFile,
		CAFile:     config.Grpc.TLS.CAFile,
		ClientAuth: config.Grpc.TLS.ClientAuth,
	}
	if tlsConfig.Enabled && config.Grpc.TLS.AutoCertDir != "" {
		paths, err := cert.Ensure(config.Grpc.TLS.AutoCertDir, cert.Options{DomainNames: config.Grpc.TLS.DomainNames})
		if err != nil {
			slog.Error("Failed to prepare gRPC certificates", "error", err)
			os.Exit(1)
		}
		files := paths.Server()
		tlsConfig.CertFile, tlsConfig.KeyFile, tlsConfig.CAFile = files.Cert, files.Key, files.CA
	}
	grpcSrv := grpcserver.NewServer(config.Grpc.Port, tlsConfig)

	interval := config.Grpc.StoreCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go grpcSrv.WatchStore(ctx, interval, credStore.Ping)

	services := &internalhttp.Services{
		Store:      credStore,
		Registry:   registry,
		AuthSecret: config.Auth.JWTSecret,
		Cache:      config.Http.Cache,
	}

	origins := config.Http.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 2)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go func() {
		if err := grpcSrv.Start(); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down servers...")
	cancel()

	var wg sync.WaitGroup
	shutdownTimeout := 10 * time.Second

	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := grpcSrv.StopWithTimeout(shutdownTimeout); err != nil {
			slog.Error("gRPC server shutdown error", "error", err)
		}
	}()

	wg.Wait()

	logoutCtx, logoutCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	registry.CloseAll(logoutCtx)
	logoutCancel()

	slog.Info("Shutdown complete")
}
