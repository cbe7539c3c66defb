package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"shareit/internal/config"
	"shareit/internal/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "github.com/mattn/go-sqlite3"    // sqlite3 driver
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations
var migrationsFS embed.FS

const memoryPath = ":memory:"

type DB struct {
	*sql.DB
	driver string
	path   string
	logger *zerolog.Logger
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewDB opens (or creates) a SQLite database at path and applies migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	return Open(context.Background(), config.DatabaseConfig{Driver: config.DriverSQLite, Path: path}, logger)
}

func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	dsn, err := dataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch {
	case cfg.Driver == config.DriverSQLite && cfg.Path == memoryPath:
		// every pooled connection would get its own empty in-memory database
		conn.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: conn, driver: cfg.Driver, path: cfg.Path, logger: logger}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("driver", cfg.Driver).Msg("database initialized")
	return db, nil
}

func dataSourceName(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		if cfg.Path == "" {
			return "", fmt.Errorf("sqlite path is empty")
		}
		if cfg.Path != memoryPath {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return "", fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		// BEGIN IMMEDIATE takes the write lock up front, so a conflict scan and
		// the write that follows it cannot interleave with another writer.
		return cfg.Path + "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", nil
	case config.DriverPostgres:
		if cfg.DSN == "" {
			return "", fmt.Errorf("postgres dsn is empty")
		}
		return cfg.DSN, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func (db *DB) migrate(ctx context.Context) error {
	dir, dialect := "migrations/sqlite3", goose.DialectSQLite3
	if db.driver == config.DriverPostgres {
		dir, dialect = "migrations/postgres", goose.DialectPostgres
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		db.logger.Debug().Int64("version", r.Source.Version).Dur("duration", r.Duration).Msg("migration applied")
	}
	return nil
}

// Driver returns the configured driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Path returns the SQLite file path; empty for other drivers.
func (db *DB) Path() string {
	if db.driver != config.DriverSQLite {
		return ""
	}
	return db.path
}

// WithinTx runs fn inside one write transaction. On SQLite the transaction
// holds the database write lock from BEGIN; on PostgreSQL it runs SERIALIZABLE.
func (db *DB) WithinTx(ctx context.Context, fn func(tx domain.BookingTx) error) error {
	tx, err := db.BeginTx(ctx, db.txOptions())
	if err != nil {
		return translateTxError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&bookingTx{q: tx}); err != nil {
		return translateTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return translateTxError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (db *DB) txOptions() *sql.TxOptions {
	if db.driver == config.DriverPostgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// Ping reports whether the database answers within the timeout.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func utc(t time.Time) time.Time {
	return t.UTC()
}
