// Package schema resolves the key strategy and candidate keys of SQLite
// tables by introspection, and extracts key values from containers.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/persist/internal/container"
	"github.com/roach88/persist/internal/dberr"
)

// Querier runs read queries. *sql.DB, *sql.Tx and *sql.Conn satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

var withoutRowID = regexp.MustCompile(`(?i)\)\s*(?:STRICT\s*,\s*)?WITHOUT\s+ROWID(?:\s*,\s*STRICT)?\s*;?\s*$`)

// Resolver introspects tables and caches the result per table name.
// Names are cached case-insensitively. Safe for concurrent use.
type Resolver struct {
	q      Querier
	mu     sync.Mutex
	tables map[string]*Table
}

// NewResolver creates a resolver reading schema through q.
func NewResolver(q Querier) *Resolver {
	return &Resolver{q: q, tables: make(map[string]*Table)}
}

// Table returns the metadata of the named table.
// An unknown table yields an UNKNOWN_TABLE configuration error.
func (r *Resolver) Table(ctx context.Context, name string) (*Table, error) {
	key := container.Fold(name)

	r.mu.Lock()
	if t, ok := r.tables[key]; ok {
		r.mu.Unlock()
		return t, nil
	}
	r.mu.Unlock()

	t, err := r.introspect(ctx, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.tables[key]; ok {
		return cached, nil
	}
	r.tables[key] = t
	return t, nil
}

// Invalidate drops the cached metadata of one table.
func (r *Resolver) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, container.Fold(name))
}

// Reset drops all cached metadata. Call it after schema changes.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = make(map[string]*Table)
}

// PrimaryKeyColumns returns the key columns of the named table.
func (r *Resolver) PrimaryKeyColumns(ctx context.Context, name string) ([]string, error) {
	t, err := r.Table(ctx, name)
	if err != nil {
		return nil, err
	}
	return t.PrimaryKey(), nil
}

// introspect reads table metadata. Each query's rows are fully consumed
// and closed before the next query runs, so a single-connection pool
// never deadlocks.
func (r *Resolver) introspect(ctx context.Context, name string) (*Table, error) {
	columns, err := r.columns(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, dberr.NewConfigurationError(dberr.ErrCodeUnknownTable, name, "no such table")
	}

	hasRowID, err := r.hasRowID(ctx, name)
	if err != nil {
		return nil, err
	}

	var pk []Column
	for _, c := range columns {
		if c.PrimaryKey > 0 {
			pk = append(pk, c)
		}
	}
	sort.Slice(pk, func(i, j int) bool { return pk[i].PrimaryKey < pk[j].PrimaryKey })

	t := &Table{Name: name, Columns: columns, HasRowID: hasRowID}
	switch {
	case hasRowID && len(pk) == 0:
		t.Key = ImplicitRowID{}
	case hasRowID && len(pk) == 1 && strings.EqualFold(pk[0].Type, "INTEGER"):
		t.Key = ImplicitRowID{Alias: pk[0].Name}
	default:
		names := make([]string, len(pk))
		for i, c := range pk {
			names[i] = c.Name
		}
		t.Key = ExplicitKey{Columns: names}
	}

	if len(pk) > 0 {
		t.UniqueKeys = append(t.UniqueKeys, t.Key.KeyColumns())
	}
	indexes, err := r.uniqueIndexes(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, cols := range indexes {
		if _, dup := t.IsUniqueKey(cols); !dup {
			t.UniqueKeys = append(t.UniqueKeys, cols)
		}
	}
	return t, nil
}

func (r *Resolver) columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var notNull int
		var dflt sql.NullString
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &dflt, &c.PrimaryKey); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		c.NotNull = notNull != 0
		if dflt.Valid {
			d := dflt.String
			c.Default = &d
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	return cols, nil
}

func (r *Resolver) hasRowID(ctx context.Context, table string) (bool, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`, table)
	if err != nil {
		return false, fmt.Errorf("table sql %s: %w", table, err)
	}
	defer rows.Close()

	hasRowID := true
	if rows.Next() {
		var ddl sql.NullString
		if err := rows.Scan(&ddl); err != nil {
			return false, fmt.Errorf("scan table sql %s: %w", table, err)
		}
		hasRowID = !withoutRowID.MatchString(ddl.String)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("table sql %s: %w", table, err)
	}
	return hasRowID, nil
}

// uniqueIndexes returns the columns of every non-partial unique index
// that covers only named columns.
func (r *Resolver) uniqueIndexes(ctx context.Context, table string) ([][]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT name, "unique", partial FROM pragma_index_list(?) ORDER BY name`, table)
	if err != nil {
		return nil, fmt.Errorf("index list %s: %w", table, err)
	}
	var names []string
	for rows.Next() {
		var name string
		var unique, partial int
		if err := rows.Scan(&name, &unique, &partial); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan index list %s: %w", table, err)
		}
		if unique != 0 && partial == 0 {
			names = append(names, name)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("index list %s: %w", table, err)
	}

	var keys [][]string
	for _, index := range names {
		cols, ok, err := r.indexColumns(ctx, index)
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, cols)
		}
	}
	return keys, nil
}

// indexColumns returns the columns of an index. ok is false for indexes
// on expressions.
func (r *Resolver) indexColumns(ctx context.Context, index string) ([]string, bool, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT name FROM pragma_index_info(?) ORDER BY seqno`, index)
	if err != nil {
		return nil, false, fmt.Errorf("index info %s: %w", index, err)
	}
	defer rows.Close()

	var cols []string
	ok := true
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, false, fmt.Errorf("scan index info %s: %w", index, err)
		}
		if !name.Valid {
			ok = false
			continue
		}
		cols = append(cols, name.String)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("index info %s: %w", index, err)
	}
	return cols, ok && len(cols) > 0, nil
}
