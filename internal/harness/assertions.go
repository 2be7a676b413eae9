package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/persist/internal/container"
	"github.com/roach88/persist/internal/dbvalue"
	"github.com/roach88/persist/internal/querysql"
	"github.com/roach88/persist/internal/schema"
	"github.com/roach88/persist/internal/store"
)

// AssertionContext gives assertions access to the final database.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string

	// Trace is the full run trace, for context.
	Trace []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nStatements:\n")
		for _, ev := range e.Trace {
			if ev.Type == EventStatement {
				fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, ev.SQL)
			}
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTableRows:
			err = assertTableRows(actx, a, result.Trace)
		case AssertStatementCount:
			err = assertStatementCount(result.Trace, a)
		case AssertHookCount:
			err = assertHookCount(result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertStatementCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == EventStatement && (a.Op == "" || ev.Name == a.Op) {
			count++
		}
	}
	if count != *a.Count {
		what := "statements"
		if a.Op != "" {
			what = a.Op + " statements"
		}
		return &AssertionError{
			Type:     AssertStatementCount,
			Expected: fmt.Sprintf("%d %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d %s", count, what),
			Trace:    trace,
		}
	}
	return nil
}

func assertHookCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == EventHook && ev.Name == a.Hook {
			count++
		}
	}
	if count != *a.Count {
		return &AssertionError{
			Type:     AssertHookCount,
			Expected: fmt.Sprintf("%d calls of %s", *a.Count, a.Hook),
			Actual:   fmt.Sprintf("%d calls", count),
		}
	}
	return nil
}

// assertTableRows compares the table, ordered by primary key, with the
// expected rows. Each expected row must hold exactly the table's columns.
func assertTableRows(actx *AssertionContext, a Assertion, trace []TraceEvent) error {
	rows, err := tableRows(actx, a.Table)
	if err != nil {
		return &AssertionError{
			Type:     AssertTableRows,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	if a.Count != nil && len(rows) != *a.Count {
		return &AssertionError{
			Type:     AssertTableRows,
			Expected: fmt.Sprintf("%d rows in %s", *a.Count, a.Table),
			Actual:   fmt.Sprintf("%d rows", len(rows)),
			Trace:    trace,
		}
	}
	if a.Rows == nil {
		return nil
	}

	want := make([]string, len(a.Rows))
	for i, r := range a.Rows {
		c := container.New()
		for _, f := range r {
			c.Set(f.Column, f.Value)
		}
		if err := c.Err(); err != nil {
			return fmt.Errorf("rows[%d]: %w", i, err)
		}
		want[i] = c.String()
	}
	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r.String()
	}

	if !equalRows(rows, a.Rows) {
		return &AssertionError{
			Type:     AssertTableRows,
			Expected: strings.Join(want, ", "),
			Actual:   strings.Join(got, ", "),
			Trace:    trace,
		}
	}
	return nil
}

func equalRows(got []*container.Container, want []Values) bool {
	if len(got) != len(want) {
		return false
	}
	for i, row := range got {
		if row.Len() != len(want[i]) {
			return false
		}
		for _, f := range want[i] {
			expected, err := dbvalue.From(f.Value)
			if err != nil {
				return false
			}
			v, ok := row.Value(f.Column)
			if !ok || !dbvalue.Equal(v, expected) {
				return false
			}
		}
	}
	return true
}

func tableRows(actx *AssertionContext, table string) ([]*container.Container, error) {
	t, err := schema.NewResolver(actx.Store).Table(actx.Ctx, table)
	if err != nil {
		return nil, err
	}
	keys := t.PrimaryKey()
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = querysql.QuoteIdent(k)
	}
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", querysql.QuoteIdent(t.Name), strings.Join(quoted, ", "))

	rows, err := actx.Store.QueryContext(actx.Ctx, query)
	if err != nil {
		return nil, err
	}
	return store.ScanRows(rows)
}
