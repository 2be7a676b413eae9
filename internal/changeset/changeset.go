// Package changeset computes which columns an UPDATE or UPSERT assigns.
//
// Key columns are never part of a change set: they only appear in WHERE
// clauses. An empty set is valid here; the statement synthesizer turns it
// into a key self-assignment.
package changeset

import (
	"github.com/roach88/persist/internal/container"
	"github.com/roach88/persist/internal/dbvalue"
)

// Set is an ordered, case-insensitive set of column names.
type Set struct {
	columns []string
	index   map[string]struct{}
}

// Of builds a set from names, dropping case-insensitive duplicates.
func Of(columns ...string) Set {
	var s Set
	for _, c := range columns {
		s.add(c)
	}
	return s
}

func (s *Set) add(column string) {
	f := container.Fold(column)
	if _, ok := s.index[f]; ok {
		return
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	s.index[f] = struct{}{}
	s.columns = append(s.columns, column)
}

// Columns returns the names in order.
func (s Set) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Len returns the number of columns.
func (s Set) Len() int {
	return len(s.columns)
}

// Empty reports whether the set has no columns.
func (s Set) Empty() bool {
	return len(s.columns) == 0
}

// Contains reports whether column is in the set, ignoring case.
func (s Set) Contains(column string) bool {
	_, ok := s.index[container.Fold(column)]
	return ok
}

// All returns every non-key column of c, in container order.
func All(c *container.Container, key []string) Set {
	keys := Of(key...)
	var s Set
	for col := range c.All() {
		if !keys.Contains(col) {
			s.add(col)
		}
	}
	return s
}

// Restrict returns the requested columns that c encodes, minus key
// columns, in container order and spelled as in c. Requested names
// match case-insensitively; names c does not encode are ignored.
func Restrict(c *container.Container, requested []string, key []string) Set {
	want := Of(requested...)
	keys := Of(key...)
	var s Set
	for col := range c.All() {
		if want.Contains(col) && !keys.Contains(col) {
			s.add(col)
		}
	}
	return s
}

// Diff returns the non-key columns of after whose value differs from
// before, in after's order. A column absent from before counts as changed.
func Diff(before, after *container.Container, key []string) Set {
	keys := Of(key...)
	var s Set
	for col, v := range after.All() {
		if keys.Contains(col) {
			continue
		}
		old, ok := before.Value(col)
		if !ok || !dbvalue.Equal(old, v) {
			s.add(col)
		}
	}
	return s
}
