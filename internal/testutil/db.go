// Package testutil provides database fixtures for tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
	"github.com/stretchr/testify/require"
)

// Drivers lists the registered SQLite driver names, cgo first.
var Drivers = []string{"sqlite3", "sqlite"}

// OpenDB opens a fresh file-backed SQLite database in t.TempDir() with the
// cgo driver, applies ddl and registers cleanup.
//
// The pool is limited to one connection, like store.Open, so tests see the
// same single-writer behavior as production code.
func OpenDB(t *testing.T, ddl ...string) *sql.DB {
	t.Helper()
	return OpenDBWithDriver(t, "sqlite3", ddl...)
}

// OpenDBWithDriver is OpenDB with an explicit driver name.
func OpenDBWithDriver(t *testing.T, driver string, ddl ...string) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open(driver, path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range ddl {
		_, err := db.Exec(stmt)
		require.NoError(t, err, "ddl: %s", stmt)
	}
	return db
}

// Rows returns every row of query as a slice of column maps.
// Integers come back as int64, matching the drivers.
func Rows(t *testing.T, db *sql.DB, query string, args ...any) []map[string]any {
	t.Helper()

	rows, err := db.QueryContext(context.Background(), query, args...)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	require.NoError(t, rows.Err())
	return out
}

// Count returns SELECT COUNT(*) FROM table.
func Count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)).Scan(&n))
	return n
}
