package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/persist/internal/container"
	"github.com/roach88/persist/internal/record"
)

// errHookFailed is returned by will hooks listed in HookBehavior.Fail.
var errHookFailed = errors.New("hook failed")

// dynamic is a record built from scenario values. It implements every
// hook and logs each call to the recorder.
type dynamic struct {
	table    string
	values   Values
	rec      *recorder
	suppress map[string]bool
	fail     map[string]bool
}

func newDynamic(step Step, rec *recorder) *dynamic {
	d := &dynamic{
		table:    step.Table,
		values:   slices.Clone(step.Values),
		rec:      rec,
		suppress: map[string]bool{},
		fail:     map[string]bool{},
	}
	if h := step.Hooks; h != nil {
		for _, p := range h.Suppress {
			d.suppress[p] = true
		}
		for _, name := range h.Fail {
			d.fail[name] = true
		}
	}
	return d
}

func (d *dynamic) TableName() string { return d.table }

func (d *dynamic) Encode(c *container.Container) {
	for _, f := range d.values {
		c.Set(f.Column, f.Value)
	}
}

// set overwrites a value or appends it.
func (d *dynamic) set(column string, value any) {
	for i, f := range d.values {
		if container.EqualFold(f.Column, column) {
			d.values[i].Value = value
			return
		}
	}
	d.values = append(d.values, Field{Column: column, Value: value})
}

func (d *dynamic) apply(changes Values) {
	for _, f := range changes {
		d.set(f.Column, f.Value)
	}
}

func (d *dynamic) will(name string, detail map[string]any) error {
	d.rec.hook(name, detail)
	if d.fail[name] {
		return fmt.Errorf("%s: %w", name, errHookFailed)
	}
	return nil
}

// around logs entry, calls inner unless the phase is suppressed, and
// logs exit only when inner succeeded. The inner error is returned as is.
func around[T any](d *dynamic, phase string, detail map[string]any, inner func() (T, error)) error {
	d.rec.hook("around_"+phase+"_enter", detail)
	if !d.suppress[phase] {
		if _, err := inner(); err != nil {
			return err
		}
	}
	d.rec.hook("around_"+phase+"_exit", nil)
	return nil
}

func columnsDetail(columns []string) map[string]any {
	if columns == nil {
		return nil
	}
	return map[string]any{"columns": slices.Clone(columns)}
}

func (d *dynamic) WillInsert(context.Context, *record.Database) error {
	return d.will("will_insert", nil)
}

func (d *dynamic) AroundInsert(_ context.Context, _ *record.Database, insert func() (record.InsertionResult, error)) error {
	return around(d, "insert", nil, insert)
}

func (d *dynamic) DidInsert(r record.InsertionResult) {
	if r.RowIDColumn != "" {
		for _, f := range d.values {
			if container.EqualFold(f.Column, r.RowIDColumn) {
				d.set(f.Column, r.RowID)
				break
			}
		}
	}
	d.rec.hook("did_insert", map[string]any{"rowid": r.RowID})
}

func (d *dynamic) WillUpdate(_ context.Context, _ *record.Database, columns []string) error {
	return d.will("will_update", columnsDetail(columns))
}

func (d *dynamic) AroundUpdate(_ context.Context, _ *record.Database, columns []string, update func() (record.PersistenceResult, error)) error {
	return around(d, "update", columnsDetail(columns), update)
}

func (d *dynamic) DidUpdate(record.PersistenceResult) {
	d.rec.hook("did_update", nil)
}

func (d *dynamic) WillSave(context.Context, *record.Database) error {
	return d.will("will_save", nil)
}

func (d *dynamic) AroundSave(_ context.Context, _ *record.Database, save func() (record.PersistenceResult, error)) error {
	return around(d, "save", nil, save)
}

func (d *dynamic) DidSave(record.PersistenceResult) {
	d.rec.hook("did_save", nil)
}

func (d *dynamic) WillDelete(context.Context, *record.Database) error {
	return d.will("will_delete", nil)
}

func (d *dynamic) AroundDelete(_ context.Context, _ *record.Database, del func() (bool, error)) error {
	return around(d, "delete", nil, del)
}

func (d *dynamic) DidDelete(deleted bool) {
	d.rec.hook("did_delete", map[string]any{"deleted": deleted})
}
