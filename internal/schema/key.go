package schema

import (
	"github.com/roach88/persist/internal/container"
	"github.com/roach88/persist/internal/dberr"
	"github.com/roach88/persist/internal/dbvalue"
)

// RowIDColumn is the name of SQLite's hidden row identifier.
const RowIDColumn = "rowid"

// KeyStrategy describes how rows of a table are identified.
// Only ExplicitKey and ImplicitRowID implement it.
type KeyStrategy interface {
	keyStrategy()

	// KeyColumns returns the columns matched in WHERE clauses.
	KeyColumns() []string
}

// ExplicitKey identifies rows by a declared primary key that is not a
// rowid alias: a TEXT key, a composite key, or any key of a WITHOUT
// ROWID table.
type ExplicitKey struct {
	Columns []string
}

func (ExplicitKey) keyStrategy() {}

// KeyColumns returns the declared key columns.
func (k ExplicitKey) KeyColumns() []string {
	return append([]string(nil), k.Columns...)
}

// ImplicitRowID identifies rows by the SQLite rowid.
// Alias is the INTEGER PRIMARY KEY column, or empty when the table has none.
type ImplicitRowID struct {
	Alias string
}

func (ImplicitRowID) keyStrategy() {}

// KeyColumns returns the alias, or "rowid" when the table has no alias.
func (k ImplicitRowID) KeyColumns() []string {
	if k.Alias == "" {
		return []string{RowIDColumn}
	}
	return []string{k.Alias}
}

// ExtractKey returns the key columns of t and their values in c.
//
// Columns are spelled as declared by the table. Every key column must be
// present in c, otherwise a MISSING_KEY configuration error is returned.
// Explicit key columns must also be non-NULL (NULL_KEY). A NULL rowid is
// accepted: it is a valid key that matches no row, and callers treat it
// as not found.
func ExtractKey(c *container.Container, t *Table) (*container.Container, error) {
	cols := t.Key.KeyColumns()
	key := container.New()
	var missing, null []string
	for _, col := range cols {
		v, ok := c.Value(col)
		if !ok {
			missing = append(missing, col)
			continue
		}
		if _, explicit := t.Key.(ExplicitKey); explicit && dbvalue.IsNull(v) {
			null = append(null, col)
		}
		key.SetValue(col, v)
	}
	if len(missing) > 0 {
		return nil, dberr.NewMissingKeyError(t.Name, missing)
	}
	if len(null) > 0 {
		return nil, dberr.NewNullKeyError(t.Name, null)
	}
	return key, nil
}

// IsKeyColumn reports whether column is one of t's key columns.
func IsKeyColumn(t *Table, column string) bool {
	for _, k := range t.Key.KeyColumns() {
		if container.EqualFold(k, column) {
			return true
		}
	}
	return false
}
