// Package container holds the ordered, case-insensitive column/value
// mapping that records encode into and rows decode from.
package container

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/roach88/persist/internal/dbvalue"
)

// Encoder is implemented by anything that can describe its persisted state
// as columns and values.
type Encoder interface {
	Encode(c *Container)
}

// Container is an ordered sequence of (column, value) pairs.
//
// Column lookups ignore ASCII case, matching SQLite identifier rules.
// Setting a column that already exists replaces its value in place: the
// position and spelling of the first occurrence are kept.
//
// The zero value is ready to use.
type Container struct {
	columns []string
	values  []dbvalue.Value
	index   map[string]int // folded name -> position
	err     error
}

// New creates an empty container.
func New() *Container {
	return &Container{}
}

// Pair is a column/value pair for container construction.
type Pair struct {
	Column string
	Value  any
}

// P is a shorthand for Pair.
// Example: container.Of(container.P("id", 1), container.P("name", "Arthur"))
func P(column string, value any) Pair {
	return Pair{Column: column, Value: value}
}

// Of builds a container from pairs, in order.
// Conversion failures are reported by Err.
func Of(pairs ...Pair) *Container {
	c := New()
	for _, p := range pairs {
		c.Set(p.Column, p.Value)
	}
	return c
}

// Encode produces a fresh container from an encoder.
// It returns the first value conversion error recorded during encoding.
func Encode(e Encoder) (*Container, error) {
	c := New()
	e.Encode(c)
	if c.err != nil {
		return nil, c.err
	}
	return c, nil
}

// Set stores a Go value under column, converting it with dbvalue.From.
// A conversion failure is latched and reported by Err; the column is
// left unchanged.
func (c *Container) Set(column string, value any) {
	v, err := dbvalue.From(value)
	if err != nil {
		c.err = errors.Join(c.err, fmt.Errorf("column %q: %w", column, err))
		return
	}
	c.SetValue(column, v)
}

// SetValue stores a database value under column.
func (c *Container) SetValue(column string, value dbvalue.Value) {
	if value == nil {
		value = dbvalue.Null{}
	}
	key := Fold(column)
	if i, ok := c.index[key]; ok {
		c.values[i] = value
		return
	}
	if c.index == nil {
		c.index = make(map[string]int)
	}
	c.index[key] = len(c.columns)
	c.columns = append(c.columns, column)
	c.values = append(c.values, value)
}

// Value returns the value stored under column.
// The boolean distinguishes an absent column from a stored NULL.
func (c *Container) Value(column string) (dbvalue.Value, bool) {
	i, ok := c.index[Fold(column)]
	if !ok {
		return nil, false
	}
	return c.values[i], true
}

// Has reports whether column is present.
func (c *Container) Has(column string) bool {
	_, ok := c.index[Fold(column)]
	return ok
}

// Column returns the stored spelling of column, if present.
func (c *Container) Column(column string) (string, bool) {
	i, ok := c.index[Fold(column)]
	if !ok {
		return "", false
	}
	return c.columns[i], true
}

// Columns returns column names in encoding order.
func (c *Container) Columns() []string {
	return append([]string(nil), c.columns...)
}

// Len returns the number of columns.
func (c *Container) Len() int {
	return len(c.columns)
}

// All iterates columns and values in encoding order.
func (c *Container) All() iter.Seq2[string, dbvalue.Value] {
	return func(yield func(string, dbvalue.Value) bool) {
		for i, col := range c.columns {
			if !yield(col, c.values[i]) {
				return
			}
		}
	}
}

// Clone returns an independent copy.
func (c *Container) Clone() *Container {
	out := &Container{
		columns: append([]string(nil), c.columns...),
		values:  append([]dbvalue.Value(nil), c.values...),
		index:   make(map[string]int, len(c.index)),
		err:     c.err,
	}
	for k, v := range c.index {
		out.index[k] = v
	}
	return out
}

// HasNull reports whether any stored value is NULL.
func (c *Container) HasNull() bool {
	for _, v := range c.values {
		if dbvalue.IsNull(v) {
			return true
		}
	}
	return false
}

// Err returns conversion errors recorded by Set.
func (c *Container) Err() error {
	return c.err
}

// String renders the container as [col:value, ...].
func (c *Container) String() string {
	parts := make([]string, len(c.columns))
	for i, col := range c.columns {
		parts[i] = col + ":" + c.values[i].String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Fold lower-cases ASCII letters only. SQLite folds identifiers the same way.
func Fold(name string) string {
	for i := 0; i < len(name); i++ {
		if b := name[i]; b >= 'A' && b <= 'Z' {
			buf := []byte(name)
			for j := i; j < len(buf); j++ {
				if buf[j] >= 'A' && buf[j] <= 'Z' {
					buf[j] += 'a' - 'A'
				}
			}
			return string(buf)
		}
	}
	return name
}

// EqualFold reports whether two column names are the same identifier.
func EqualFold(a, b string) bool {
	return Fold(a) == Fold(b)
}
