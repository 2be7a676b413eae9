package record

import (
	"context"

	"github.com/roach88/persist/internal/container"
)

// Record is an entity persisted as one row of a table.
//
// Encode must describe the entity's current state; it is called again on
// every persistence call, after will hooks had a chance to mutate the
// entity. Records with hooks that write back generated identifiers are
// normally pointers.
type Record interface {
	container.Encoder
	TableName() string
}

// RowDecoder receives the row returned by a fetch variant.
// A record can decode into itself, or the caller can pass another type.
type RowDecoder interface {
	DecodeRow(row *container.Container) error
}

// RowDecoderFunc adapts a function to RowDecoder.
type RowDecoderFunc func(row *container.Container) error

// DecodeRow implements RowDecoder.
func (f RowDecoderFunc) DecodeRow(row *container.Container) error {
	return f(row)
}

// InsertionResult describes a successful INSERT or UPSERT.
type InsertionResult struct {
	// RowID is the rowid of the written row. It is zero for WITHOUT ROWID
	// tables.
	RowID int64

	// RowIDColumn is the INTEGER PRIMARY KEY column, "rowid" when the
	// table has no alias, or empty for WITHOUT ROWID tables.
	RowIDColumn string

	// Container is what was written. When the record encoded its rowid
	// alias, the alias holds RowID.
	Container *container.Container
}

// PersistenceResult describes a completed update or save.
type PersistenceResult struct {
	// Container is what was written.
	Container *container.Container
}

// Hook interfaces. Records implement the ones they need; a missing will or
// did hook does nothing and a missing around hook just calls the inner
// function.
//
// An around hook receives the persistence action as a single-use function.
// It must call it at most once: calling it zero times suppresses the
// write, and the operation then reports no effect and skips the did hook.
// Errors returned by the inner function must be returned by the hook.

// WillInserter runs before an insert or upsert.
type WillInserter interface {
	WillInsert(ctx context.Context, db *Database) error
}

// AroundInserter wraps the INSERT statement.
type AroundInserter interface {
	AroundInsert(ctx context.Context, db *Database, insert func() (InsertionResult, error)) error
}

// DidInserter runs after a successful insert. It is where a record stores
// its generated identifier.
type DidInserter interface {
	DidInsert(result InsertionResult)
}

// WillUpdater runs before an update, with the columns about to be assigned.
type WillUpdater interface {
	WillUpdate(ctx context.Context, db *Database, columns []string) error
}

// AroundUpdater wraps the UPDATE statement.
type AroundUpdater interface {
	AroundUpdate(ctx context.Context, db *Database, columns []string, update func() (PersistenceResult, error)) error
}

// DidUpdater runs after a successful update.
type DidUpdater interface {
	DidUpdate(result PersistenceResult)
}

// WillSaver runs before every insert, upsert or update.
type WillSaver interface {
	WillSave(ctx context.Context, db *Database) error
}

// AroundSaver wraps every insert, upsert or update, including their own
// hooks.
type AroundSaver interface {
	AroundSave(ctx context.Context, db *Database, save func() (PersistenceResult, error)) error
}

// DidSaver runs after every successful insert, upsert or update.
type DidSaver interface {
	DidSave(result PersistenceResult)
}

// WillDeleter runs before a delete.
type WillDeleter interface {
	WillDelete(ctx context.Context, db *Database) error
}

// AroundDeleter wraps the DELETE statement.
type AroundDeleter interface {
	AroundDelete(ctx context.Context, db *Database, delete func() (bool, error)) error
}

// DidDeleter runs after a delete, with whether a row was removed.
type DidDeleter interface {
	DidDelete(deleted bool)
}
