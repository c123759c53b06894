package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver ("pgx")
	_ "github.com/mattn/go-sqlite3"    // SQLite driver ("sqlite3")
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute

	// postgresMaxOpenConns bounds the PostgreSQL pool. The metadata store is read-mostly.
	postgresMaxOpenConns = 8
)

// Supported drivers, matching config.DatabaseConfig.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps a sql.DB connection with migration support, health checks,
// placeholder rebinding and lifecycle management.
//
// Queries are written with ? placeholders; on PostgreSQL they are rebound
// to $1, $2, ... before execution.
type DB struct {
	*sql.DB
	driver string
	path   string
	logger Logger
}

// Logger receives migration progress.
type Logger interface {
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}

// SetLogger sets the logger for migration progress. Nil discards it.
func (db *DB) SetLogger(logger Logger) {
	db.logger = logger
}

func (db *DB) log() Logger {
	if db.logger == nil {
		return noopLogger{}
	}
	return db.logger
}

// Config contains database configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string

	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// DSN is the PostgreSQL connection string.
	DSN string

	// WALMode enables Write-Ahead Logging for better concurrent access (SQLite only).
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock in seconds (SQLite only).
	BusyTimeout int
}

// Open creates a new database connection with the specified configuration.
//
// For SQLite it creates the directory, applies WAL/busy-timeout pragmas,
// enables foreign keys and restricts file permissions. For PostgreSQL it opens
// a pgx-backed pool. Both verify the connection with a ping.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return openSQLite(ctx, cfg)
	case DriverPostgres:
		return openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openSQLite(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := &DB{DB: sqlDB, driver: DriverSQLite, path: cfg.Path}
	if err := db.verify(ctx); err != nil {
		return nil, err
	}

	// File might not exist yet on first run
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Intentional: first run creates file later

	return db, nil
}

func openPostgres(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	sqlDB, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(postgresMaxOpenConns)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := &DB{DB: sqlDB, driver: DriverPostgres}
	if err := db.verify(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// verify pings the database, closing it on failure.
func (db *DB) verify(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.DB.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("verifying database connection: %w", err)
	}
	return nil
}

// Close closes the database connection gracefully.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file (empty for PostgreSQL).
func (db *DB) Path() string {
	return db.path
}

// Driver returns the configured driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Rebind rewrites ? placeholders for the active driver.
// SQLite queries are returned unchanged; PostgreSQL gets $1, $2, ...
// Placeholders inside single-quoted literals are left alone.
func (db *DB) Rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// HealthCheck verifies the database is accessible and functioning.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats returns database connection pool statistics.
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// ExecContext executes a statement that doesn't return rows.
// Placeholders are rebound for the active driver.
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	result, err := db.DB.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return result, nil
}

// QueryContext executes a query that returns rows.
// Placeholders are rebound for the active driver.
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.DB.QueryContext(ctx, db.Rebind(query), args...)
}

// QueryRowContext executes a query that returns at most one row.
// Placeholders are rebound for the active driver.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.DB.QueryRowContext(ctx, db.Rebind(query), args...)
}

// BeginTx starts a new transaction with the given options.
// Statements executed on the returned transaction must call Rebind themselves.
//
// Example:
//
//	tx, err := db.BeginTx(ctx, nil)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback() // No-op if committed
//
//	// ... execute queries on tx ...
//
//	return tx.Commit()
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}
