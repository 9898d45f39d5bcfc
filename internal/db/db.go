package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL backend behind a *sql.DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type Config struct {
	Driver string `mapstructure:"driver"`
	// Path is the SQLite database file.
	Path string `mapstructure:"path"`
	// Url is the PostgreSQL connection string.
	Url    string `mapstructure:"url"`
	Schema string `mapstructure:"schema"`
}

func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s (valid: sqlite, postgres)", driver)
	}
}

// Rebind converts ? placeholders to the dialect's positional form.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Open connects to the configured backend and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}

	var conn *sql.DB
	switch dialect {
	case DialectSQLite:
		conn, err = openSQLite(cfg.Path)
	case DialectPostgres:
		conn, err = openPostgres(cfg.Url, cfg.Schema)
	}
	if err != nil {
		return nil, "", err
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("unable to ping database: %w", err)
	}

	slog.Debug("Connected to credential database", "driver", string(dialect))
	return conn, dialect, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}

	// A single writer connection serializes record updates.
	conn.SetMaxOpenConns(1)
	return conn, nil
}

func openPostgres(url, schema string) (*sql.DB, error) {
	connConfig, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	if schema != "" {
		connConfig.RuntimeParams["search_path"] = schema
		slog.Info("Setting search_path for credential database", "schema", schema)
	}

	conn := stdlib.OpenDB(*connConfig)
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	return conn, nil
}
