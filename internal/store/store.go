package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names registered by the two supported SQLite drivers.
const (
	// DriverCGO is github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"

	// DriverPure is modernc.org/sqlite.
	DriverPure = "sqlite"
)

// DefaultBusyTimeout is how long a statement waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// Executor runs SQL statements. *sql.DB, *sql.Tx, *sql.Conn and *Store
// satisfy it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Option configures Open.
type Option func(*options)

type options struct {
	driver      string
	busyTimeout time.Duration
	migrations  []string
}

// WithDriver selects the database/sql driver name (DriverCGO or DriverPure).
func WithDriver(name string) Option {
	return func(o *options) {
		o.driver = name
	}
}

// WithBusyTimeout sets PRAGMA busy_timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.busyTimeout = d
	}
}

// WithMigrations applies scripts on open, tracked by PRAGMA user_version.
// Script i brings the database to version i+1.
func WithMigrations(scripts ...string) Option {
	return func(o *options) {
		o.migrations = append(o.migrations, scripts...)
	}
}

// Store is an open SQLite database.
type Store struct {
	db     *sql.DB
	driver string
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - a busy timeout for lock contention (DefaultBusyTimeout)
//   - foreign key enforcement
//
// The pool holds a single connection. Callers must close every *sql.Rows
// before issuing the next statement.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{driver: DriverCGO, busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	switch o.driver {
	case DriverCGO, DriverPure:
	default:
		return nil, fmt.Errorf("unknown sqlite driver %q (want %q or %q)", o.driver, DriverCGO, DriverPure)
	}

	db, err := sql.Open(o.driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, o.busyTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := &Store{db: db, driver: o.driver}
	if len(o.migrations) > 0 {
		if _, err := s.Migrate(context.Background(), o.migrations); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string {
	return s.driver
}

// ExecContext implements Executor.
func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

// QueryContext implements Executor.
// Callers are responsible for closing the returned rows.
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func applyPragmas(db *sql.DB, busyTimeout time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
