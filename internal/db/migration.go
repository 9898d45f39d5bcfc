package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*/*.sql
var embedMigrations embed.FS

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

func migrationDir(dialect Dialect) string {
	if dialect == DialectPostgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

func gooseDialect(dialect Dialect) string {
	if dialect == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// RunMigrations applies all pending migrations. Already-applied migrations
// are skipped, so running it twice is a no-op.
func RunMigrations(ctx context.Context, conn *sql.DB, dialect Dialect, schema string) error {
	slog.Info("Running database migrations...", "driver", string(dialect))

	if dialect == DialectPostgres && schema != "" {
		if err := ensureSchemaExists(ctx, conn, schema); err != nil {
			return err
		}
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(gooseDialect(dialect)); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, conn, migrationDir(dialect)); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	slog.Info("Database migrations completed successfully")
	return nil
}

// SchemaCurrent reports whether every embedded migration has been applied.
func SchemaCurrent(ctx context.Context, conn *sql.DB, dialect Dialect) (bool, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(gooseDialect(dialect)); err != nil {
		return false, err
	}

	migrations, err := goose.CollectMigrations(migrationDir(dialect), 0, goose.MaxVersion)
	if err != nil {
		return false, fmt.Errorf("collect migrations: %w", err)
	}
	last, err := migrations.Last()
	if err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			return true, nil
		}
		return false, err
	}

	current, err := goose.GetDBVersionContext(ctx, conn)
	if err != nil {
		return false, fmt.Errorf("read schema version: %w", err)
	}
	return current >= last.Version, nil
}

func ensureSchemaExists(ctx context.Context, conn *sql.DB, schema string) error {
	query := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{schema}.Sanitize()
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return err
	}
	slog.Info("Schema is ready", "schema", schema)
	return nil
}
