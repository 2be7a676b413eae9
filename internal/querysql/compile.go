package querysql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/persist/internal/changeset"
	"github.com/roach88/persist/internal/container"
	"github.com/roach88/persist/internal/dberr"
	"github.com/roach88/persist/internal/dbvalue"
	"github.com/roach88/persist/internal/schema"
)

// Compiler synthesizes parameterized SQLite statements for record
// persistence. It holds no state and is safe for concurrent use.
//
// All values are bound as parameters, never interpolated. Identifiers are
// double-quoted and spelled as the table declares them.
type Compiler struct{}

// NewCompiler creates a new Compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Insert compiles an INSERT of every column in c, in encoding order.
//
// A rowid alias holding NULL is left out so SQLite generates the
// identifier. When no column remains the statement uses DEFAULT VALUES.
// A non-zero selection adds a RETURNING clause; on tables with a rowid
// the rowid is returned as the last column (Statement.TrailingRowID).
func (c *Compiler) Insert(t *schema.Table, values *container.Container, sel Selection) (Statement, error) {
	b := newBuilder()
	cols, vals := insertColumns(t, values, false)

	b.write("INSERT INTO ")
	b.write(QuoteIdent(t.Name))
	if len(cols) == 0 {
		b.write(" DEFAULT VALUES")
	} else {
		b.writeInsertValues(cols, vals)
	}
	trailing := b.writeReturning(t, sel, !sel.IsZero() && t.HasRowID)
	return b.statement(trailing), nil
}

// Update compiles an UPDATE by key assigning the columns of set.
//
// Assignments are sorted by column name. An empty set assigns each key
// column its own value, so the statement still reports whether the key
// exists through its affected row count.
func (c *Compiler) Update(t *schema.Table, values *container.Container, set changeset.Set, sel Selection) (Statement, error) {
	key, err := schema.ExtractKey(values, t)
	if err != nil {
		return Statement{}, err
	}

	b := newBuilder()
	b.write("UPDATE ")
	b.write(QuoteIdent(t.Name))
	b.write(" SET ")

	assigned := sortedColumns(t, set.Columns())
	if len(assigned) == 0 {
		b.writeKeyAssignments(key)
	} else {
		for i, col := range assigned {
			if i > 0 {
				b.write(", ")
			}
			v, _ := values.Value(col)
			b.write(QuoteIdent(t.CanonicalOrSelf(col)))
			b.write("=")
			b.bind(v)
		}
	}
	b.writeWhereKey(key)
	b.writeReturning(t, sel, false)
	return b.statement(false), nil
}

// Delete compiles a DELETE by key.
func (c *Compiler) Delete(t *schema.Table, values *container.Container) (Statement, error) {
	key, err := schema.ExtractKey(values, t)
	if err != nil {
		return Statement{}, err
	}
	b := newBuilder()
	b.write("DELETE FROM ")
	b.write(QuoteIdent(t.Name))
	b.writeWhereKey(key)
	return b.statement(false), nil
}

// Exists compiles a SELECT 1 ... LIMIT 1 by key.
func (c *Compiler) Exists(t *schema.Table, values *container.Container) (Statement, error) {
	key, err := schema.ExtractKey(values, t)
	if err != nil {
		return Statement{}, err
	}
	b := newBuilder()
	b.write("SELECT 1 FROM ")
	b.write(QuoteIdent(t.Name))
	b.writeWhereKey(key)
	b.write(" LIMIT 1")
	return b.statement(false), nil
}

// Upsert compiles an INSERT ... ON CONFLICT DO UPDATE.
//
// The update assigns every inserted non-key column that is not part of the
// conflict target, sorted by name; when none remain the first key column is
// assigned to itself. Tables with a rowid always return it as the last
// column so the caller learns the identifier of the inserted or updated row
// in the same round trip.
func (c *Compiler) Upsert(t *schema.Table, values *container.Container, conflict Conflict, sel Selection) (Statement, error) {
	target, err := conflict.resolve(t)
	if err != nil {
		return Statement{}, err
	}

	cols, vals := insertColumns(t, values, true)
	if len(cols) == 0 {
		return Statement{}, dberr.NewConfigurationError(dberr.ErrCodeEmptyRecord, t.Name,
			"upsert requires at least one column")
	}

	b := newBuilder()
	b.write("INSERT INTO ")
	b.write(QuoteIdent(t.Name))
	b.writeInsertValues(cols, vals)

	b.write(" ON CONFLICT")
	if len(target) > 0 {
		b.write(" (")
		b.writeIdents(target)
		b.write(")")
	}
	b.write(" DO UPDATE SET ")

	excluded := append(t.PrimaryKey(), target...)
	var assigned []string
	for _, col := range cols {
		if !containsFold(excluded, col) {
			assigned = append(assigned, col)
		}
	}
	assigned = sortedColumns(t, assigned)
	if len(assigned) == 0 {
		k := QuoteIdent(t.PrimaryKey()[0])
		b.write(k + "=" + k)
	} else {
		for i, col := range assigned {
			if i > 0 {
				b.write(", ")
			}
			v, _ := values.Value(col)
			b.write(QuoteIdent(col))
			b.write("=")
			b.bind(v)
		}
	}

	trailing := b.writeReturning(t, sel, t.HasRowID)
	return b.statement(trailing), nil
}

// insertColumns returns the canonical column names and values to insert.
// A NULL rowid alias is dropped, unless keepAlone is set and it is the only
// column.
func insertColumns(t *schema.Table, values *container.Container, keepAlone bool) ([]string, []dbvalue.Value) {
	alias := t.RowIDAlias()
	var cols []string
	var vals []dbvalue.Value
	var nullAlias string
	for col, v := range values.All() {
		if alias != "" && container.EqualFold(col, alias) && dbvalue.IsNull(v) {
			nullAlias = alias
			continue
		}
		cols = append(cols, t.CanonicalOrSelf(col))
		vals = append(vals, v)
	}
	if len(cols) == 0 && keepAlone && nullAlias != "" {
		return []string{nullAlias}, []dbvalue.Value{dbvalue.Null{}}
	}
	return cols, vals
}

// sortedColumns canonicalizes and sorts column names, ignoring case.
func sortedColumns(t *schema.Table, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = t.CanonicalOrSelf(c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return container.Fold(out[i]) < container.Fold(out[j])
	})
	return out
}

func containsFold(list []string, name string) bool {
	for _, s := range list {
		if container.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// QuoteIdent double-quotes an SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// builder accumulates SQL text and bound values.
type builder struct {
	sql    strings.Builder
	values []dbvalue.Value
}

func newBuilder() *builder {
	return &builder{}
}

func (b *builder) write(s string) {
	b.sql.WriteString(s)
}

func (b *builder) bind(v dbvalue.Value) {
	if v == nil {
		v = dbvalue.Null{}
	}
	b.sql.WriteByte('?')
	b.values = append(b.values, v)
}

func (b *builder) writeIdents(cols []string) {
	for i, c := range cols {
		if i > 0 {
			b.write(", ")
		}
		b.write(QuoteIdent(c))
	}
}

func (b *builder) writeInsertValues(cols []string, vals []dbvalue.Value) {
	b.write(" (")
	b.writeIdents(cols)
	b.write(") VALUES (")
	for i, v := range vals {
		if i > 0 {
			b.write(",")
		}
		b.bind(v)
	}
	b.write(")")
}

func (b *builder) writeKeyAssignments(key *container.Container) {
	i := 0
	for col, v := range key.All() {
		if i > 0 {
			b.write(", ")
		}
		b.write(QuoteIdent(col))
		b.write("=")
		b.bind(v)
		i++
	}
}

func (b *builder) writeWhereKey(key *container.Container) {
	b.write(" WHERE ")
	i := 0
	for col, v := range key.All() {
		if i > 0 {
			b.write(" AND ")
		}
		b.write(QuoteIdent(col))
		b.write("=")
		b.bind(v)
		i++
	}
}

// writeReturning appends a RETURNING clause for sel, plus the rowid when
// rowid is set. It reports whether the rowid was appended.
func (b *builder) writeReturning(t *schema.Table, sel Selection, rowid bool) bool {
	if sel.IsZero() && !rowid {
		return false
	}
	b.write(" RETURNING ")
	if !sel.IsZero() {
		b.write(sel.sql(t))
		if rowid {
			b.write(", ")
		}
	}
	if rowid {
		b.write(QuoteIdent(schema.RowIDColumn))
	}
	return rowid
}

func (b *builder) statement(trailingRowID bool) Statement {
	args := make([]any, len(b.values))
	for i, v := range b.values {
		args[i] = dbvalue.DriverValue(v)
	}
	return Statement{
		SQL:           b.sql.String(),
		Args:          args,
		Values:        b.values,
		TrailingRowID: trailingRowID,
	}
}

// Statement is a compiled SQL statement with its bound values.
type Statement struct {
	SQL string

	// Args are the driver arguments, in placeholder order.
	Args []any

	// Values are the same arguments as database values.
	Values []dbvalue.Value

	// TrailingRowID is set when the last RETURNING column is the rowid,
	// appended for the engine's benefit rather than the caller's.
	TrailingRowID bool
}

// Literal renders the statement with every placeholder replaced by its
// SQL literal. It is meant for logs and tests, never for execution.
func (s Statement) Literal() string {
	var out strings.Builder
	next := 0
	var quote byte
	for i := 0; i < len(s.SQL); i++ {
		ch := s.SQL[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
			out.WriteByte(ch)
		case ch == '"' || ch == '\'':
			quote = ch
			out.WriteByte(ch)
		case ch == '?' && next < len(s.Values):
			out.WriteString(dbvalue.SQLLiteral(s.Values[next]))
			next++
		default:
			out.WriteByte(ch)
		}
	}
	return out.String()
}

// String implements fmt.Stringer.
func (s Statement) String() string {
	return fmt.Sprintf("%s %v", s.SQL, s.Args)
}
