package record

import (
	"context"
)

// phase is one will/around/did triple. Nil members are no-ops.
type phase[T any] struct {
	will   func() error
	around func(inner func() (T, error)) error
	did    func(T)
}

// run executes the hook protocol around inner.
//
// inner reports whether it had an effect. The result is the inner result,
// whether the operation had an effect, and the first error in protocol
// order: will, then around (which must return inner's error), then inner.
// The did hook only runs when inner ran, succeeded and had an effect.
func (p phase[T]) run(inner func() (T, bool, error)) (T, bool, error) {
	var zero T

	if p.will != nil {
		if err := p.will(); err != nil {
			return zero, false, err
		}
	}

	var (
		ran      bool
		effect   bool
		out      T
		innerErr error
	)
	wrapped := func() (T, error) {
		ran = true
		out, effect, innerErr = inner()
		return out, innerErr
	}

	var err error
	if p.around != nil {
		err = p.around(wrapped)
	} else {
		_, err = wrapped()
	}
	switch {
	case err != nil:
		return zero, false, err
	case innerErr != nil:
		return zero, false, innerErr
	case !ran || !effect:
		return zero, false, nil
	}

	if p.did != nil {
		p.did(out)
	}
	return out, true, nil
}

// step is one hook-wrapped write, composable with saveStep.
type step interface {
	run(ctx context.Context, db *Database, rec Record) (PersistenceResult, bool, error)
}

// insertStep wraps an INSERT or UPSERT in the insert hooks.
type insertStep struct {
	exec func(ctx context.Context) (InsertionResult, bool, error)
}

func (s insertStep) run(ctx context.Context, db *Database, rec Record) (PersistenceResult, bool, error) {
	var p phase[InsertionResult]
	if h, ok := rec.(WillInserter); ok {
		p.will = func() error { return h.WillInsert(ctx, db) }
	}
	if h, ok := rec.(AroundInserter); ok {
		p.around = func(inner func() (InsertionResult, error)) error {
			return h.AroundInsert(ctx, db, inner)
		}
	}
	if h, ok := rec.(DidInserter); ok {
		p.did = h.DidInsert
	}

	res, effect, err := p.run(func() (InsertionResult, bool, error) { return s.exec(ctx) })
	if err != nil || !effect {
		return PersistenceResult{}, effect, err
	}
	return PersistenceResult{Container: res.Container}, true, nil
}

// updateStep wraps an UPDATE in the update hooks.
type updateStep struct {
	columns []string
	exec    func(ctx context.Context) (PersistenceResult, bool, error)
}

func (s updateStep) run(ctx context.Context, db *Database, rec Record) (PersistenceResult, bool, error) {
	var p phase[PersistenceResult]
	if h, ok := rec.(WillUpdater); ok {
		p.will = func() error { return h.WillUpdate(ctx, db, s.columns) }
	}
	if h, ok := rec.(AroundUpdater); ok {
		p.around = func(inner func() (PersistenceResult, error)) error {
			return h.AroundUpdate(ctx, db, s.columns, inner)
		}
	}
	if h, ok := rec.(DidUpdater); ok {
		p.did = h.DidUpdate
	}
	return p.run(func() (PersistenceResult, bool, error) { return s.exec(ctx) })
}

// saveStep wraps an insert or update step in the save hooks.
type saveStep struct {
	inner step
}

func (s saveStep) run(ctx context.Context, db *Database, rec Record) (PersistenceResult, bool, error) {
	var p phase[PersistenceResult]
	if h, ok := rec.(WillSaver); ok {
		p.will = func() error { return h.WillSave(ctx, db) }
	}
	if h, ok := rec.(AroundSaver); ok {
		p.around = func(inner func() (PersistenceResult, error)) error {
			return h.AroundSave(ctx, db, inner)
		}
	}
	if h, ok := rec.(DidSaver); ok {
		p.did = h.DidSave
	}
	return p.run(func() (PersistenceResult, bool, error) { return s.inner.run(ctx, db, rec) })
}

// deletePhase runs the delete hooks around exec.
func deletePhase(ctx context.Context, db *Database, rec Record, exec func() (bool, error)) (bool, error) {
	var p phase[bool]
	if h, ok := rec.(WillDeleter); ok {
		p.will = func() error { return h.WillDelete(ctx, db) }
	}
	if h, ok := rec.(AroundDeleter); ok {
		p.around = func(inner func() (bool, error)) error {
			return h.AroundDelete(ctx, db, inner)
		}
	}
	if h, ok := rec.(DidDeleter); ok {
		p.did = h.DidDelete
	}
	deleted, _, err := p.run(func() (bool, bool, error) {
		deleted, err := exec()
		return deleted, true, err
	})
	return deleted, err
}
