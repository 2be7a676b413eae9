package schema

import "github.com/roach88/persist/internal/container"

// Column describes one declared column.
type Column struct {
	Name    string
	Type    string
	NotNull bool
	// PrimaryKey is the 1-based position in the primary key, 0 if not part of it.
	PrimaryKey int
	Default    *string
}

// Table is the metadata the persistence layer needs about one table.
type Table struct {
	// Name is the name the table was resolved with.
	Name string

	// Columns in declaration order.
	Columns []Column

	// Key is the row identification strategy.
	Key KeyStrategy

	// HasRowID is false for WITHOUT ROWID tables.
	HasRowID bool

	// UniqueKeys lists candidate keys: the primary key first (when the table
	// declares one), then each non-partial unique index, in index order.
	UniqueKeys [][]string
}

// PrimaryKey returns the columns matched by key lookups.
func (t *Table) PrimaryKey() []string {
	return t.Key.KeyColumns()
}

// RowIDAlias returns the INTEGER PRIMARY KEY column, or "".
func (t *Table) RowIDAlias() string {
	if k, ok := t.Key.(ImplicitRowID); ok {
		return k.Alias
	}
	return ""
}

// HasImplicitRowID reports whether rows are identified by rowid, and the
// alias column if there is one.
func (t *Table) HasImplicitRowID() (bool, string) {
	k, ok := t.Key.(ImplicitRowID)
	if !ok {
		return false, ""
	}
	return true, k.Alias
}

// Canonical returns the declared spelling of column. The hidden rowid
// column resolves to "rowid" on tables that have one.
func (t *Table) Canonical(column string) (string, bool) {
	for _, c := range t.Columns {
		if container.EqualFold(c.Name, column) {
			return c.Name, true
		}
	}
	if t.HasRowID && container.EqualFold(column, RowIDColumn) {
		return RowIDColumn, true
	}
	return "", false
}

// CanonicalOrSelf returns the declared spelling of column, or column
// itself when the table does not declare it.
func (t *Table) CanonicalOrSelf(column string) string {
	if name, ok := t.Canonical(column); ok {
		return name
	}
	return column
}

// HasColumn reports whether the table declares column.
func (t *Table) HasColumn(column string) bool {
	_, ok := t.Canonical(column)
	return ok
}

// IsUniqueKey reports whether columns, in any order and case, form one of
// the table's candidate keys. It returns the matching key as declared.
func (t *Table) IsUniqueKey(columns []string) ([]string, bool) {
	for _, key := range t.UniqueKeys {
		if sameColumns(key, columns) {
			return key, true
		}
	}
	return nil, false
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, c := range a {
		seen[container.Fold(c)]++
	}
	for _, c := range b {
		f := container.Fold(c)
		if seen[f] == 0 {
			return false
		}
		seen[f]--
	}
	return true
}
