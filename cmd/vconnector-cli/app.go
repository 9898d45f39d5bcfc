package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/EternisAI/vconnector/internal/auth"
	"github.com/EternisAI/vconnector/internal/cert"
	"github.com/EternisAI/vconnector/internal/db"
	grpcclient "github.com/EternisAI/vconnector/internal/grpc/client"
	"github.com/EternisAI/vconnector/internal/remote"
	"github.com/EternisAI/vconnector/internal/secret"
	"github.com/EternisAI/vconnector/internal/session"
	"github.com/EternisAI/vconnector/internal/store"
	"github.com/EternisAI/vconnector/internal/vsphere"
	"github.com/integrii/flaggy"
)

const (
	envDB            = "VCONNECTOR_DB"
	envDBDriver      = "VCONNECTOR_DB_DRIVER"
	envEncryptionKey = "VCONNECTOR_ENCRYPTION_KEY"
	envJWTSecret     = "VCONNECTOR_JWT_SECRET"

	defaultDB = "/var/lib/vconnector/vconnector.db"
)

var errUsage = errors.New("usage")

type app struct {
	out      io.Writer
	endpoint func(vsphere.Config) remote.Endpoint
}

func newApp(out io.Writer) *app {
	return &app{
		out: out,
		endpoint: func(cfg vsphere.Config) remote.Endpoint {
			return vsphere.NewEndpoint(cfg)
		},
	}
}

type globalFlags struct {
	db     string
	driver string
	debug  bool
}

func run(args []string, a *app) error {
	g := globalFlags{
		db:     envOr(envDB, defaultDB),
		driver: envOr(envDBDriver, "sqlite"),
	}

	p := flaggy.NewParser("vconnector-cli")
	p.Description = "Manage vSphere connection credentials"
	p.Version = AppVersion
	p.String(&g.db, "", "db", "Database path, or connection URL for postgres (env "+envDB+")")
	p.String(&g.driver, "", "driver", "Database driver: sqlite or postgres (env "+envDBDriver+")")
	p.Bool(&g.debug, "d", "debug", "Enable debug logging")

	initCmd := flaggy.NewSubcommand("init")
	initCmd.Description = "Create the credential store schema"

	var host, username, password string
	var disabled bool
	addCmd := flaggy.NewSubcommand("add")
	addCmd.Description = "Add a connection record"
	addCmd.AddPositionalValue(&host, "host", 1, false, "vSphere host")
	addCmd.String(&username, "u", "username", "Username")
	addCmd.String(&password, "p", "password", "Password")
	addCmd.Bool(&disabled, "", "disabled", "Store the record disabled")

	updateCmd := flaggy.NewSubcommand("update")
	updateCmd.Description = "Update username and/or password of a record"
	updateCmd.AddPositionalValue(&host, "host", 1, false, "vSphere host")
	updateCmd.String(&username, "u", "username", "New username")
	updateCmd.String(&password, "p", "password", "New password")

	removeCmd := hostCommand("remove", "Remove a connection record", &host)
	enableCmd := hostCommand("enable", "Enable a connection record", &host)
	disableCmd := hostCommand("disable", "Disable a connection record", &host)

	getCmd := flaggy.NewSubcommand("get")
	getCmd.Description = "Show one record, or all records when no host is given"
	getCmd.AddPositionalValue(&host, "host", 1, false, "vSphere host")

	var vcfg vsphere.Config
	verifyCmd := hostCommand("verify", "Connect to a host with its stored credentials and log out", &host)
	verifyCmd.Bool(&vcfg.Insecure, "k", "insecure", "Skip certificate verification")
	verifyCmd.String(&vcfg.CAFile, "", "ca-file", "CA bundle for the vSphere endpoint")
	verifyCmd.Duration(&vcfg.Timeout, "t", "timeout", "Connect timeout")

	var subject, role, jwtSecret string
	var ttl time.Duration
	tokenCmd := flaggy.NewSubcommand("token")
	tokenCmd.Description = "Issue an API token"
	subject, role, jwtSecret = "cli", auth.RoleReader, os.Getenv(envJWTSecret)
	tokenCmd.String(&subject, "s", "subject", "Token subject")
	tokenCmd.String(&role, "r", "role", "Token role: reader or admin")
	tokenCmd.String(&jwtSecret, "", "secret", "Signing secret (env "+envJWTSecret+")")
	tokenCmd.Duration(&ttl, "", "ttl", "Token lifetime")

	keygenCmd := flaggy.NewSubcommand("keygen")
	keygenCmd.Description = "Generate a password encryption key"

	var addr string
	var tlsCfg grpcclient.TLSConfig
	healthCmd := flaggy.NewSubcommand("health")
	healthCmd.Description = "Query the server's gRPC health service"
	addr = "localhost:9090"
	healthCmd.String(&addr, "a", "addr", "gRPC server address")
	healthCmd.Bool(&tlsCfg.Enabled, "", "tls", "Use mutual TLS")
	healthCmd.String(&tlsCfg.CertFile, "", "cert", "Client certificate")
	healthCmd.String(&tlsCfg.KeyFile, "", "key", "Client key")
	healthCmd.String(&tlsCfg.CAFile, "", "ca", "CA certificate")
	healthCmd.String(&tlsCfg.ServerNameOverride, "", "server-name", "Override the TLS server name")

	var certDir, domains, clientName string
	certsCmd := flaggy.NewSubcommand("certs")
	certsCmd.Description = "Generate CA, server and client certificates for gRPC TLS"
	certDir = "./certs"
	certsCmd.String(&certDir, "o", "out", "Output directory")
	certsCmd.String(&domains, "", "domains", "Comma separated server DNS names")
	certsCmd.String(&clientName, "", "client-name", "Client certificate common name")

	for _, sc := range []*flaggy.Subcommand{initCmd, addCmd, updateCmd, removeCmd, enableCmd, disableCmd, getCmd, verifyCmd, tokenCmd, keygenCmd, healthCmd, certsCmd} {
		p.AttachSubcommand(sc, 1)
	}

	if err := p.ParseArgs(args); err != nil {
		return err
	}
	initLogger(g.debug)

	ctx := context.Background()
	switch {
	case tokenCmd.Used:
		token, err := auth.GenerateToken(auth.Config{JWTSecret: jwtSecret, TokenTTL: ttl}, subject, role)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, token)
		return nil
	case keygenCmd.Used:
		key, err := secret.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, key)
		return nil
	case healthCmd.Used:
		return a.health(ctx, addr, &tlsCfg)
	case certsCmd.Used:
		return a.certs(certDir, domains, clientName)
	}

	s, err := openStore(ctx, g)
	if err != nil {
		return err
	}
	defer s.Close()

	switch {
	case initCmd.Used:
		if err := s.Init(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "credential store initialized")
		return nil
	case addCmd.Used:
		if err := requireHost(host); err != nil {
			return err
		}
		return s.Add(ctx, store.ConnectionRecord{Host: host, Username: username, Password: password, Enabled: !disabled})
	case updateCmd.Used:
		if err := requireHost(host); err != nil {
			return err
		}
		var update store.RecordUpdate
		if username != "" {
			update.Username = &username
		}
		if password != "" {
			update.Password = &password
		}
		if update.Username == nil && update.Password == nil {
			return fmt.Errorf("%w: update needs --username or --password", errUsage)
		}
		return s.Update(ctx, host, update)
	case removeCmd.Used:
		if err := requireHost(host); err != nil {
			return err
		}
		return s.Remove(ctx, host)
	case enableCmd.Used, disableCmd.Used:
		if err := requireHost(host); err != nil {
			return err
		}
		return s.SetEnabled(ctx, host, enableCmd.Used)
	case getCmd.Used:
		return a.get(ctx, s, host)
	case verifyCmd.Used:
		if err := requireHost(host); err != nil {
			return err
		}
		return a.verify(ctx, s, host, vcfg)
	}

	p.ShowHelp()
	return nil
}

func hostCommand(name, description string, host *string) *flaggy.Subcommand {
	sc := flaggy.NewSubcommand(name)
	sc.Description = description
	sc.AddPositionalValue(host, "host", 1, false, "vSphere host")
	return sc
}

func requireHost(host string) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("%w: host is required", errUsage)
	}
	return nil
}

func openStore(ctx context.Context, g globalFlags) (*store.Store, error) {
	cipher, err := secret.NewCipher(os.Getenv(envEncryptionKey))
	if err != nil {
		return nil, err
	}

	cfg := db.Config{Driver: g.driver}
	dialect, err := db.ParseDialect(g.driver)
	if err != nil {
		return nil, err
	}
	if dialect == db.DialectPostgres {
		cfg.Url = g.db
	} else {
		cfg.Path = g.db
	}
	return store.Open(ctx, cfg, cipher)
}

func (a *app) get(ctx context.Context, s *store.Store, host string) error {
	var records []store.ConnectionRecord
	if host != "" {
		record, err := s.Get(ctx, host)
		if err != nil {
			return err
		}
		records = append(records, record)
	} else {
		var err error
		records, err = s.List(ctx)
		if err != nil {
			return err
		}
	}
	fmt.Fprintln(a.out, renderRecords(records))
	return nil
}

func (a *app) verify(ctx context.Context, s *store.Store, host string, cfg vsphere.Config) error {
	record, err := s.Get(ctx, host)
	if err != nil {
		return err
	}

	var opts []session.Option
	if cfg.Timeout > 0 {
		opts = append(opts, session.WithTimeout(cfg.Timeout))
	}
	m := session.New(record, a.endpoint(cfg), opts...)
	if err := m.Connect(ctx); err != nil {
		return err
	}
	defer m.Disconnect(ctx)

	if err := m.EnsureConnected(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: connected as %s\n", host, record.Username)
	return nil
}

func (a *app) health(ctx context.Context, addr string, tlsCfg *grpcclient.TLSConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	hc, err := grpcclient.NewHealthClient(addr, tlsCfg)
	if err != nil {
		return err
	}
	defer hc.Close()

	rows := [][]string{}
	for _, service := range []string{"", "vconnector.store"} {
		status, err := hc.Check(ctx, service)
		if err != nil {
			status = "UNKNOWN"
		}
		name := service
		if name == "" {
			name = "server"
		}
		rows = append(rows, []string{name, status})
	}
	fmt.Fprintln(a.out, renderTable([]string{"SERVICE", "STATUS"}, rows))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func initLogger(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func (a *app) certs(dir, domains, clientName string) error {
	opts := cert.Options{ClientName: clientName}
	if domains != "" {
		opts.DomainNames = strings.Split(domains, ",")
	}
	paths, err := cert.Ensure(dir, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, renderTable([]string{"FILE", "PATH"}, [][]string{
		{"ca", paths.CACert},
		{"server cert", paths.ServerCert},
		{"server key", paths.ServerKey},
		{"client cert", paths.ClientCert},
		{"client key", paths.ClientKey},
	}))
	return nil
}
