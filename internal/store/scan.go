package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/persist/internal/container"
	"github.com/roach88/persist/internal/dbvalue"
)

// ReturningMinVersion is the first SQLite release with RETURNING.
const ReturningMinVersion = "3.35.0"

// ScanValues drains rows and returns the column names and every row's
// values by position. Rows is always closed.
//
// Positional access matters when a result repeats a column name, as in
// RETURNING *, "rowid" on a table whose rowid has an alias.
func ScanValues(rows *sql.Rows) ([]string, [][]dbvalue.Value, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	var out [][]dbvalue.Value
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		vals := make([]dbvalue.Value, len(cols))
		for i, v := range raw {
			vals[i] = dbvalue.FromDriver(v)
		}
		out = append(out, vals)
	}
	// Constraint violations of INSERT/UPDATE ... RETURNING surface here and
	// are returned as the driver reported them.
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return cols, out, nil
}

// ScanRows drains rows into one container per row. Rows is always closed.
func ScanRows(rows *sql.Rows) ([]*container.Container, error) {
	cols, vals, err := ScanValues(rows)
	if err != nil {
		return nil, err
	}
	out := make([]*container.Container, len(vals))
	for i, row := range vals {
		out[i] = RowContainer(cols, row)
	}
	return out, nil
}

// RowContainer pairs column names with values. A repeated name keeps its
// first position and takes the last value.
func RowContainer(cols []string, vals []dbvalue.Value) *container.Container {
	c := container.New()
	for i, col := range cols {
		c.SetValue(col, vals[i])
	}
	return c
}

// SQLiteVersion returns sqlite_version() of the linked library.
func SQLiteVersion(ctx context.Context, q Executor) (string, error) {
	rows, err := q.QueryContext(ctx, "SELECT sqlite_version()")
	if err != nil {
		return "", fmt.Errorf("query sqlite version: %w", err)
	}
	_, vals, err := ScanValues(rows)
	if err != nil {
		return "", fmt.Errorf("query sqlite version: %w", err)
	}
	if len(vals) != 1 || len(vals[0]) != 1 {
		return "", fmt.Errorf("query sqlite version: no result")
	}
	switch v := dbvalue.Native(vals[0][0]).(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("query sqlite version: unexpected %s", vals[0][0])
	}
}

// SupportsReturning reports whether the SQLite library behind q executes
// RETURNING clauses. It also returns the version it probed.
func SupportsReturning(ctx context.Context, q Executor) (bool, string, error) {
	v, err := SQLiteVersion(ctx, q)
	if err != nil {
		return false, "", err
	}
	return CompareVersions(v, ReturningMinVersion) >= 0, v, nil
}

// CompareVersions compares dotted numeric versions, returning -1, 0 or 1.
// Missing or non-numeric components count as zero.
func CompareVersions(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < max(len(pa), len(pb)); i++ {
		x, y := versionPart(pa, i), versionPart(pb, i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func versionPart(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return n
}
