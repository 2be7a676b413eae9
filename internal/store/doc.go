// Package store opens SQLite databases and runs statements for the
// persistence layer.
//
// Two drivers are supported: github.com/mattn/go-sqlite3 (DriverCGO, the
// default) and modernc.org/sqlite (DriverPure). Both are registered by this
// package.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: Wait for locks, 5 seconds unless configured
//   - foreign_keys=ON: Enforce referential integrity
//   - one pooled connection: a single writer, and rows must be closed
//     before the next statement
//
// # Migrations
//
// Migrate applies an ordered list of SQL scripts, tracking progress in
// PRAGMA user_version. LoadMigrations reads them from a directory.
//
// # Rows
//
// ScanValues and ScanRows drain a result set into database values.
// SupportsReturning probes sqlite_version() for RETURNING support.
package store
