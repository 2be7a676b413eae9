package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/persist/internal/container"
	"github.com/roach88/persist/internal/dberr"
	"github.com/roach88/persist/internal/dbvalue"
	"github.com/roach88/persist/internal/querysql"
	"github.com/roach88/persist/internal/record"
	"github.com/roach88/persist/internal/store"
)

// Error classes reported in traces and matched by Expect.Error.
const (
	ErrorRecordNotFound = "RECORD_NOT_FOUND"
	ErrorConstraint     = "CONSTRAINT"
	ErrorHookFailed     = "HOOK_FAILED"
	ErrorOther          = "ERROR"
)

// Option configures a run.
type Option func(*Harness)

// WithLogger sets the run logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// WithIDGenerator sets the run ID generator. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(h *Harness) {
		h.ids = g
	}
}

// WithDriver sets the driver used when the scenario does not name one.
func WithDriver(name string) Option {
	return func(h *Harness) {
		h.driver = name
	}
}

// Harness executes scenarios.
type Harness struct {
	logger *slog.Logger
	ids    IDGenerator
	driver string

	store *store.Store
	db    *record.Database
	rec   *recorder
}

// Run executes a scenario in a fresh in-memory database.
//
// Failed expectations and assertions are reported in the result. An error
// is returned only when the scenario cannot run at all.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:    UUIDv7Generator{},
		driver: store.DriverCGO,
	}
	for _, opt := range opts {
		opt(h)
	}
	if scenario.Driver != "" {
		h.driver = scenario.Driver
	}

	st, err := store.Open(":memory:", store.WithDriver(h.driver), store.WithMigrations(scenario.Schema...))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	result := NewResult(h.ids.Generate())
	h.store = st
	h.rec = &recorder{result: result}

	dbOpts := []record.DatabaseOption{
		record.WithLogger(h.logger),
		record.WithObserver(func(op string, stmt querysql.Statement) {
			h.rec.statement(op, stmt.Literal())
		}),
	}
	if scenario.Returning != nil {
		dbOpts = append(dbOpts, record.WithReturning(*scenario.Returning))
	}
	h.db = record.New(st, dbOpts...)

	logger := h.logger.With("run_id", result.RunID, "scenario", scenario.Name)
	for i, step := range scenario.Steps {
		h.rec.step = i
		h.rec.add(TraceEvent{Type: EventStep, Name: step.Op, Table: step.Table})

		out, stepErr := h.execute(ctx, step)
		detail := out.detail()
		if stepErr != nil {
			detail = map[string]any{"error": classify(stepErr)}
		}
		h.rec.add(TraceEvent{Type: EventResult, Name: step.Op, Detail: detail})

		for _, msg := range checkExpect(step, out, stepErr) {
			result.AddError(fmt.Sprintf("step %d (%s %s): %s", i, step.Op, step.Table, msg))
		}
		logger.Info("step completed", "step", i, "op", step.Op, "table", step.Table, "error", stepErr)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// outcome is what a step returned.
type outcome struct {
	rowID   *int64
	flag    *bool
	row     *container.Container
	fetched bool
}

func (o outcome) detail() map[string]any {
	d := map[string]any{}
	if o.rowID != nil {
		d["rowid"] = *o.rowID
	}
	if o.flag != nil {
		d["result"] = *o.flag
	}
	if o.row != nil {
		row := make(map[string]any, o.row.Len())
		for col, v := range o.row.All() {
			row[col] = v
		}
		d["row"] = row
	}
	if len(d) == 0 {
		return nil
	}
	return d
}

func (h *Harness) execute(ctx context.Context, step Step) (outcome, error) {
	d := newDynamic(step, h.rec)
	var out outcome

	var opts []record.Option
	if len(step.Selection) > 0 {
		opts = append(opts, record.WithColumns(step.Selection...))
	}
	if len(step.Conflict) == 1 && step.Conflict[0] == "key" {
		opts = append(opts, record.OnConflictKey())
	} else if len(step.Conflict) > 0 {
		opts = append(opts, record.WithConflictTarget(step.Conflict...))
	}
	dest := record.RowDecoderFunc(func(row *container.Container) error {
		out.row = row
		return nil
	})
	flag := func(b bool, err error) (outcome, error) {
		out.flag = &b
		return out, err
	}
	inserted := func(r record.InsertionResult, err error) (outcome, error) {
		if err == nil {
			out.rowID = &r.RowID
		}
		return out, err
	}

	switch step.Op {
	case OpInsert:
		return inserted(record.Insert(ctx, h.db, d))
	case OpUpdate:
		return out, record.Update(ctx, h.db, d)
	case OpUpdateColumns:
		return out, record.UpdateColumns(ctx, h.db, d, step.Columns...)
	case OpUpdateChanges:
		return flag(record.UpdateChanges(ctx, h.db, d, func() error {
			d.apply(step.Changes)
			return nil
		}))
	case OpDelete:
		return flag(record.Delete(ctx, h.db, d))
	case OpExists:
		return flag(record.Exists(ctx, h.db, d))
	case OpSave:
		return out, record.Save(ctx, h.db, d)
	case OpUpsert:
		return inserted(record.Upsert(ctx, h.db, d, opts...))
	case OpInsertAndFetch:
		return flag(record.InsertAndFetch(ctx, h.db, d, dest, opts...))
	case OpUpdateAndFetch:
		return flag(record.UpdateAndFetch(ctx, h.db, d, dest, opts...))
	case OpSaveAndFetch:
		return flag(record.SaveAndFetch(ctx, h.db, d, dest, opts...))
	case OpUpsertAndFetch:
		return flag(record.UpsertAndFetch(ctx, h.db, d, dest, opts...))
	default:
		return out, fmt.Errorf("unknown op %q", step.Op)
	}
}

// classify maps an error to its class name.
func classify(err error) string {
	var ce *dberr.ConfigurationError
	switch {
	case dberr.IsRecordNotFound(err):
		return ErrorRecordNotFound
	case errors.As(err, &ce):
		return string(ce.Code)
	case errors.Is(err, errHookFailed):
		return ErrorHookFailed
	case dberr.IsConstraint(err):
		return ErrorConstraint
	default:
		return ErrorOther
	}
}

func checkExpect(step Step, out outcome, err error) []string {
	exp := step.Expect
	if exp == nil || exp.Error == "" {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
	} else {
		if err == nil {
			return []string{fmt.Sprintf("expected error %s, got success", exp.Error)}
		}
		if got := classify(err); got != exp.Error {
			return []string{fmt.Sprintf("expected error %s, got %s: %v", exp.Error, got, err)}
		}
		return nil
	}
	if exp == nil {
		return nil
	}

	var errs []string
	if exp.RowID != nil {
		if out.rowID == nil || *out.rowID != *exp.RowID {
			errs = append(errs, fmt.Sprintf("expected rowid %d, got %s", *exp.RowID, formatPtr(out.rowID)))
		}
	}
	if exp.Result != nil {
		if out.flag == nil || *out.flag != *exp.Result {
			errs = append(errs, fmt.Sprintf("expected result %t, got %s", *exp.Result, formatPtr(out.flag)))
		}
	}
	if exp.Row != nil {
		if out.row == nil {
			errs = append(errs, "expected a fetched row, got none")
		} else if msg := matchRow(out.row, exp.Row); msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}

// matchRow checks that row holds every expected value.
func matchRow(row *container.Container, want Values) string {
	var diffs []string
	for _, f := range want {
		expected, err := dbvalue.From(f.Value)
		if err != nil {
			diffs = append(diffs, fmt.Sprintf("%s: %v", f.Column, err))
			continue
		}
		got, ok := row.Value(f.Column)
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: missing", f.Column))
			continue
		}
		if !dbvalue.Equal(got, expected) {
			diffs = append(diffs, fmt.Sprintf("%s: expected %s, got %s", f.Column, expected, got))
		}
	}
	if len(diffs) == 0 {
		return ""
	}
	return "row mismatch: " + strings.Join(diffs, "; ") + " in " + row.String()
}

func formatPtr[T any](p *T) string {
	if p == nil {
		return "nothing"
	}
	return fmt.Sprint(*p)
}
