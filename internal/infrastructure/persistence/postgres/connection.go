// internal/infrastructure/persistence/postgres/connection.go
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"signal-desk-bot/pkg/logger"
)

// Dialect is the SQL backend behind a Store.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know as a '?' driver.
	sqlx.BindDriver(string(DialectSQLite), sqlx.QUESTION)
}

type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	AutoMigrate     bool
}

// Store is the shared database handle of a process.
type Store struct {
	DB      *sqlx.DB
	Dialect Dialect
}

// ParseURL maps DATABASE_URL to a driver DSN.
// postgres:// and postgresql:// go to lib/pq; sqlite://path and file:... go to modernc.
func ParseURL(raw string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return DialectPostgres, raw, nil
	case strings.HasPrefix(raw, "sqlite://"):
		return DialectSQLite, withSQLiteParams(strings.TrimPrefix(raw, "sqlite://")), nil
	case strings.HasPrefix(raw, "file:"):
		return DialectSQLite, withSQLiteParams(raw), nil
	}
	return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %q", raw)
}

func withSQLiteParams(dsn string) string {
	params := []string{"_time_format=sqlite", "_pragma=busy_timeout(5000)", "_pragma=foreign_keys(1)"}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + sep + strings.Join(params, "&")
}

// Connect opens the pool, pings it and applies migrations when enabled.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	dialect, dsn, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// one writer; an in-memory database lives as long as its only connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
		db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dialect, err)
	}
	logger.Info("✅ Connected to %s", dialect)

	store := &Store{DB: db, Dialect: dialect}
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return store, nil
}

// OpenMemory opens a migrated in-memory SQLite store.
func OpenMemory(ctx context.Context) (*Store, error) {
	return Connect(ctx, Config{URL: "file::memory:", AutoMigrate: true})
}

// Migrate applies the embedded migrations for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	migrator := NewMigrator(s.DB, s.Dialect)
	if err := migrator.LoadEmbedded(); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := migrator.Validate(ctx); err != nil {
		return fmt.Errorf("migration validation failed: %w", err)
	}
	return nil
}

// InTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Timestamp normalizes a time for storage: UTC, whole seconds.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
