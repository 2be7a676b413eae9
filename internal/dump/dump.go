// Package dump prints query results, tables and whole databases for
// debugging and the persist dump command.
package dump

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/persist/internal/dbvalue"
	"github.com/roach88/persist/internal/querysql"
	"github.com/roach88/persist/internal/schema"
	"github.com/roach88/persist/internal/store"
)

// Header controls table name lines in Tables.
type Header int

const (
	// HeaderAutomatic prints table names when more than one table is dumped.
	HeaderAutomatic Header = iota

	// HeaderAlways prints table names even for a single table.
	HeaderAlways
)

// SQL runs every statement of script and writes the rows each returns.
func SQL(ctx context.Context, q store.Executor, w io.Writer, script string, format Format) error {
	for _, stmt := range SplitStatements(script) {
		if err := statement(ctx, q, w, stmt, format); err != nil {
			return err
		}
	}
	return nil
}

func statement(ctx context.Context, q store.Executor, w io.Writer, query string, format Format) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("dump %q: %w", query, err)
	}
	cols, vals, err := store.ScanValues(rows)
	if err != nil {
		return fmt.Errorf("dump %q: %w", query, err)
	}
	if len(cols) == 0 {
		return nil
	}
	return format.Write(w, cols, vals)
}

// Tables writes the rows of each table, ordered by primary key.
func Tables(ctx context.Context, q store.Executor, w io.Writer, tables []string, format Format, header Header) error {
	resolver := schema.NewResolver(q)
	withHeader := header == HeaderAlways || len(tables) > 1

	for i, name := range tables {
		if withHeader {
			if i > 0 {
				if _, err := io.WriteString(w, "\n"); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(w, name); err != nil {
				return err
			}
		}
		t, err := resolver.Table(ctx, name)
		if err != nil {
			return err
		}
		if err := statement(ctx, q, w, tableQuery(t), format); err != nil {
			return err
		}
	}
	return nil
}

// Content writes the schema, then every table.
// Internal sqlite_ objects are skipped.
//
//	sqlite_master
//	CREATE TABLE player (id INTEGER PRIMARY KEY, name TEXT, score INTEGER);
//
//	player
//	1|Arthur|500
func Content(ctx context.Context, q store.Executor, w io.Writer, format Format) error {
	rows, err := q.QueryContext(ctx, `
		SELECT sql FROM sqlite_master
		WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%'
		ORDER BY tbl_name COLLATE NOCASE,
			CASE type WHEN 'table' THEN 'a' WHEN 'index' THEN 'aa' ELSE type END,
			name COLLATE NOCASE`)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	_, ddl, err := store.ScanValues(rows)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	var b strings.Builder
	b.WriteString("sqlite_master\n")
	for _, row := range ddl {
		b.WriteString(strings.TrimSpace(text(row[0])))
		b.WriteString(";\n")
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	tables, err := tableNames(ctx, q)
	if err != nil {
		return err
	}
	resolver := schema.NewResolver(q)
	for _, name := range tables {
		if _, err := fmt.Fprintf(w, "\n%s\n", name); err != nil {
			return err
		}
		t, err := resolver.Table(ctx, name)
		if err != nil {
			return err
		}
		if err := statement(ctx, q, w, tableQuery(t), format); err != nil {
			return err
		}
	}
	return nil
}

func tableNames(ctx context.Context, q store.Executor) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	_, vals, err := store.ScanValues(rows)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	names := make([]string, len(vals))
	for i, row := range vals {
		names[i] = text(row[0])
	}
	return names, nil
}

func text(v dbvalue.Value) string {
	if s, ok := v.(dbvalue.Text); ok {
		return string(s)
	}
	return ""
}

func tableQuery(t *schema.Table) string {
	keys := t.PrimaryKey()
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = querysql.QuoteIdent(k)
	}
	return fmt.Sprintf("SELECT * FROM %s ORDER BY %s", querysql.QuoteIdent(t.Name), strings.Join(quoted, ", "))
}
