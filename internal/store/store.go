package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/EternisAI/vconnector/internal/db"
	"github.com/EternisAI/vconnector/internal/secret"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound      = errors.New("connection record not found")
	ErrDuplicateKey  = errors.New("connection record already exists")
	ErrInvalidRecord = errors.New("invalid connection record")
)

// Store persists connection records. Each operation is a single statement,
// so a record is never observed half-written.
type Store struct {
	db      *sql.DB
	dialect db.Dialect
	schema  string
	cipher  *secret.Cipher
}

// Open connects to the configured database. The schema is not created;
// call Init for that.
func Open(ctx context.Context, cfg db.Config, cipher *secret.Cipher) (*Store, error) {
	conn, dialect, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: conn, dialect: dialect, schema: cfg.Schema, cipher: cipher}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Init creates the backing schema. It never drops existing data and is a
// no-op on an initialized store.
func (s *Store) Init(ctx context.Context) error {
	return db.RunMigrations(ctx, s.db, s.dialect, s.schema)
}

func (s *Store) Initialized(ctx context.Context) (bool, error) {
	return db.SchemaCurrent(ctx, s.db, s.dialect)
}

func (s *Store) Add(ctx context.Context, record ConnectionRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	password, err := s.cipher.Seal(record.Password)
	if err != nil {
		return fmt.Errorf("seal password: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		s.dialect.Rebind("INSERT INTO connections (host, username, password, enabled) VALUES (?, ?, ?, ?)"),
		record.Host, record.Username, password, record.Enabled)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, record.Host)
		}
		return fmt.Errorf("insert connection: %w", err)
	}

	slog.Info("Connection record added", "host", record.Host, "enabled", record.Enabled)
	return nil
}

func (s *Store) Update(ctx context.Context, host string, update RecordUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	var username, password sql.NullString
	if update.Username != nil {
		username = sql.NullString{String: *update.Username, Valid: true}
	}
	if update.Password != nil {
		sealed, err := s.cipher.Seal(*update.Password)
		if err != nil {
			return fmt.Errorf("seal password: %w", err)
		}
		password = sql.NullString{String: sealed, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`UPDATE connections
		SET username = COALESCE(?, username),
		    password = COALESCE(?, password),
		    updated_at = CURRENT_TIMESTAMP
		WHERE host = ?`),
		username, password, host)
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	if err := expectOneRow(res, host); err != nil {
		return err
	}

	slog.Info("Connection record updated",
		"host", host,
		"username_changed", update.Username != nil,
		"password_changed", update.Password != nil)
	return nil
}

func (s *Store) Remove(ctx context.Context, host string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind("DELETE FROM connections WHERE host = ?"), host)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if err := expectOneRow(res, host); err != nil {
		return err
	}

	slog.Info("Connection record removed", "host", host)
	return nil
}

func (s *Store) SetEnabled(ctx context.Context, host string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		s.dialect.Rebind("UPDATE connections SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE host = ?"),
		enabled, host)
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	if err := expectOneRow(res, host); err != nil {
		return err
	}

	slog.Info("Connection record toggled", "host", host, "enabled", enabled)
	return nil
}

func (s *Store) Get(ctx context.Context, host string) (ConnectionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		s.dialect.Rebind("SELECT host, username, password, enabled FROM connections WHERE host = ?"), host)

	record, err := s.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ConnectionRecord{}, fmt.Errorf("%w: %s", ErrNotFound, host)
		}
		return ConnectionRecord{}, fmt.Errorf("get connection: %w", err)
	}
	return record, nil
}

// List returns every record in insertion order.
func (s *Store) List(ctx context.Context) ([]ConnectionRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT host, username, password, enabled FROM connections ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	records := make([]ConnectionRecord, 0)
	for rows.Next() {
		record, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("list connections: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(row scanner) (ConnectionRecord, error) {
	var record ConnectionRecord
	var password string
	if err := row.Scan(&record.Host, &record.Username, &password, &record.Enabled); err != nil {
		return ConnectionRecord{}, err
	}

	plain, err := s.cipher.Open(password)
	if err != nil {
		return ConnectionRecord{}, fmt.Errorf("open password for %s: %w", record.Host, err)
	}
	record.Password = plain
	return record, nil
}

func expectOneRow(res sql.Result, host string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, host)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
