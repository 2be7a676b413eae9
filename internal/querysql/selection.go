package querysql

import (
	"strings"

	"github.com/roach88/persist/internal/dberr"
	"github.com/roach88/persist/internal/schema"
)

// Selection is the projection of a RETURNING clause.
// The zero Selection selects nothing and omits the clause.
type Selection struct {
	all     bool
	columns []string
}

// AllColumns selects every declared column (RETURNING *).
var AllColumns = Selection{all: true}

// Columns selects the given columns, in order.
func Columns(columns ...string) Selection {
	return Selection{columns: append([]string(nil), columns...)}
}

// IsZero reports whether the selection selects nothing.
func (s Selection) IsZero() bool {
	return !s.all && len(s.columns) == 0
}

func (s Selection) sql(t *schema.Table) string {
	if s.all {
		return "*"
	}
	quoted := make([]string, len(s.columns))
	for i, c := range s.columns {
		quoted[i] = QuoteIdent(t.CanonicalOrSelf(c))
	}
	return strings.Join(quoted, ", ")
}

type conflictKind int

const (
	conflictDefault conflictKind = iota
	conflictKey
	conflictColumns
)

// Conflict selects the ON CONFLICT target of an upsert.
// The zero Conflict is DefaultConflict.
type Conflict struct {
	kind    conflictKind
	columns []string
}

// DefaultConflict targets the table's only candidate key, or leaves the
// clause untargeted when the table has several, so that a violation of any
// unique constraint turns into an update.
func DefaultConflict() Conflict {
	return Conflict{}
}

// ConflictOnKey targets the table's single candidate key. It fails with
// AMBIGUOUS_CONFLICT_TARGET when the table has more than one.
func ConflictOnKey() Conflict {
	return Conflict{kind: conflictKey}
}

// ConflictOn targets the given columns, which must match the primary key
// or a unique index.
func ConflictOn(columns ...string) Conflict {
	return Conflict{kind: conflictColumns, columns: append([]string(nil), columns...)}
}

// resolve returns the conflict target columns, nil for an untargeted
// clause.
func (c Conflict) resolve(t *schema.Table) ([]string, error) {
	switch c.kind {
	case conflictKey:
		switch len(t.UniqueKeys) {
		case 0:
			return nil, dberr.NewConfigurationError(dberr.ErrCodeUnknownConflictTarget, t.Name,
				"table has no primary key or unique index")
		case 1:
			return t.UniqueKeys[0], nil
		default:
			return nil, dberr.NewConfigurationError(dberr.ErrCodeAmbiguousConflictTarget, t.Name,
				"table has %d candidate keys: %s", len(t.UniqueKeys), formatKeys(t.UniqueKeys))
		}
	case conflictColumns:
		key, ok := t.IsUniqueKey(c.columns)
		if !ok {
			return nil, dberr.NewConfigurationError(dberr.ErrCodeUnknownConflictTarget, t.Name,
				"columns (%s) are not a primary key or unique index", strings.Join(c.columns, ", "))
		}
		return key, nil
	default:
		if len(t.UniqueKeys) == 1 {
			return t.UniqueKeys[0], nil
		}
		return nil, nil
	}
}

func formatKeys(keys [][]string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = "(" + strings.Join(k, ", ") + ")"
	}
	return strings.Join(parts, ", ")
}
