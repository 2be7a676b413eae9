package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/persist/internal/changeset"
	"github.com/roach88/persist/internal/container"
	"github.com/roach88/persist/internal/dberr"
	"github.com/roach88/persist/internal/dbvalue"
	"github.com/roach88/persist/internal/querysql"
	"github.com/roach88/persist/internal/schema"
	"github.com/roach88/persist/internal/store"
)

// fetch describes the RETURNING part of a fetch variant.
// A nil *fetch means a plain write.
type fetch struct {
	selection querysql.Selection
	dest      RowDecoder
}

func (f *fetch) sel() querysql.Selection {
	if f == nil {
		return querysql.Selection{}
	}
	return f.selection
}

// Insert inserts rec, running the save and insert hooks.
//
// A NULL rowid alias is left for SQLite to generate. Constraint violations
// are returned exactly as the driver reported them. The result is zero when
// an around hook suppressed the write.
func Insert(ctx context.Context, db *Database, rec Record) (InsertionResult, error) {
	t, err := db.table(ctx, rec)
	if err != nil {
		return InsertionResult{}, err
	}
	res, _, err := db.insertWithHooks(ctx, t, rec, nil)
	return res, err
}

// InsertAndFetch inserts rec and decodes the inserted row into dest in the
// same statement. It reports whether a row was written.
func InsertAndFetch(ctx context.Context, db *Database, rec Record, dest RowDecoder, opts ...Option) (bool, error) {
	t, f, err := db.prepareFetch(ctx, rec, dest, opts)
	if err != nil {
		return false, err
	}
	_, effect, err := db.insertWithHooks(ctx, t, rec, f)
	return effect, err
}

// Update updates every non-key column of rec by primary key, running the
// save and update hooks. It fails with a RecordNotFoundError when no row
// has the key.
func Update(ctx context.Context, db *Database, rec Record) error {
	t, err := db.table(ctx, rec)
	if err != nil {
		return err
	}
	columns, err := allColumns(t, rec)
	if err != nil {
		return err
	}
	_, err = db.updateWithHooks(ctx, t, rec, columns, nil)
	return err
}

// UpdateAndFetch is Update, decoding the updated row into dest.
func UpdateAndFetch(ctx context.Context, db *Database, rec Record, dest RowDecoder, opts ...Option) (bool, error) {
	t, f, err := db.prepareFetch(ctx, rec, dest, opts)
	if err != nil {
		return false, err
	}
	columns, err := allColumns(t, rec)
	if err != nil {
		return false, err
	}
	return db.updateWithHooks(ctx, t, rec, columns, f)
}

// UpdateColumns updates the given columns of rec by primary key.
//
// Column names match the encoded columns ignoring case. Key columns and
// names rec does not encode are ignored; when nothing remains the
// statement assigns the key to itself, so a missing row is still reported.
func UpdateColumns(ctx context.Context, db *Database, rec Record, columns ...string) error {
	t, err := db.table(ctx, rec)
	if err != nil {
		return err
	}
	_, err = db.updateWithHooks(ctx, t, rec, columns, nil)
	return err
}

// UpdateChanges applies modify to rec and updates the columns whose value
// changed. It reports whether an UPDATE ran.
//
// The mutation is kept whatever happens next. When nothing changed no SQL
// is issued and no hook runs.
func UpdateChanges(ctx context.Context, db *Database, rec Record, modify func() error) (bool, error) {
	return updateChanges(ctx, db, rec, modify, nil, nil)
}

// UpdateChangesAndFetch is UpdateChanges, decoding the updated row into
// dest. It returns false without touching dest when nothing changed.
func UpdateChangesAndFetch(ctx context.Context, db *Database, rec Record, modify func() error, dest RowDecoder, opts ...Option) (bool, error) {
	return updateChanges(ctx, db, rec, modify, dest, opts)
}

func updateChanges(ctx context.Context, db *Database, rec Record, modify func() error, dest RowDecoder, opts []Option) (bool, error) {
	var (
		t   *schema.Table
		f   *fetch
		err error
	)
	if dest != nil {
		t, f, err = db.prepareFetch(ctx, rec, dest, opts)
	} else {
		t, err = db.table(ctx, rec)
	}
	if err != nil {
		return false, err
	}

	before, err := encode(rec, t.Name)
	if err != nil {
		return false, err
	}
	if err := modify(); err != nil {
		return false, err
	}
	return db.updateChangesFrom(ctx, t, before, rec, f)
}

// UpdateChangesFrom updates the columns of rec whose value differs from
// previous, another encoding of the same row. It reports whether an
// UPDATE ran.
func UpdateChangesFrom(ctx context.Context, db *Database, previous container.Encoder, rec Record) (bool, error) {
	t, err := db.table(ctx, rec)
	if err != nil {
		return false, err
	}
	before, err := encode(previous, t.Name)
	if err != nil {
		return false, err
	}
	return db.updateChangesFrom(ctx, t, before, rec, nil)
}

func (db *Database) updateChangesFrom(ctx context.Context, t *schema.Table, before *container.Container, rec Record, f *fetch) (bool, error) {
	after, err := encode(rec, t.Name)
	if err != nil {
		return false, err
	}
	changes := changeset.Diff(before, after, t.PrimaryKey())
	if changes.Empty() {
		return false, nil
	}
	return db.updateWithHooks(ctx, t, rec, changes.Columns(), f)
}

// Save updates rec, or inserts it when no row has its key.
//
// Records of rowid tables whose identifier is missing or NULL are inserted
// directly. Otherwise the update runs first, wrapped in the save hooks; on
// RecordNotFoundError an insert follows, wrapped in the save hooks again.
func Save(ctx context.Context, db *Database, rec Record) error {
	t, err := db.table(ctx, rec)
	if err != nil {
		return err
	}
	_, err = db.save(ctx, t, rec, nil)
	return err
}

// SaveAndFetch is Save, decoding the written row into dest.
func SaveAndFetch(ctx context.Context, db *Database, rec Record, dest RowDecoder, opts ...Option) (bool, error) {
	t, f, err := db.prepareFetch(ctx, rec, dest, opts)
	if err != nil {
		return false, err
	}
	return db.save(ctx, t, rec, f)
}

func (db *Database) save(ctx context.Context, t *schema.Table, rec Record, f *fetch) (bool, error) {
	c, err := encode(rec, t.Name)
	if err != nil {
		return false, err
	}
	if lacksRowID(t, c) {
		_, effect, err := db.insertWithHooks(ctx, t, rec, f)
		return effect, err
	}

	columns := changeset.All(c, t.PrimaryKey()).Columns()
	effect, err := db.updateWithHooks(ctx, t, rec, columns, f)
	if !dberr.IsRecordNotFound(err) {
		return effect, err
	}
	_, effect, err = db.insertWithHooks(ctx, t, rec, f)
	return effect, err
}

// Upsert inserts rec, or updates the row it conflicts with.
//
// The conflict target defaults to the table's only candidate key; tables
// with several keys get an untargeted ON CONFLICT clause. The save and
// insert hooks run, and the result carries the rowid of the inserted or
// updated row. Tables with a rowid require RETURNING support.
func Upsert(ctx context.Context, db *Database, rec Record, opts ...Option) (InsertionResult, error) {
	o := newCallOptions(opts)
	t, err := db.table(ctx, rec)
	if err != nil {
		return InsertionResult{}, err
	}
	if t.HasRowID {
		if err := db.requireReturning(ctx); err != nil {
			return InsertionResult{}, err
		}
	}
	res, _, err := db.upsertWithHooks(ctx, t, rec, o.conflict, nil)
	return res, err
}

// UpsertAndFetch is Upsert, decoding the written row into dest.
func UpsertAndFetch(ctx context.Context, db *Database, rec Record, dest RowDecoder, opts ...Option) (bool, error) {
	o := newCallOptions(opts)
	t, f, err := db.prepareFetch(ctx, rec, dest, opts)
	if err != nil {
		return false, err
	}
	_, effect, err := db.upsertWithHooks(ctx, t, rec, o.conflict, f)
	return effect, err
}

// Delete deletes rec by primary key, running the delete hooks. It reports
// whether a row was removed; a missing row is not an error.
func Delete(ctx context.Context, db *Database, rec Record) (bool, error) {
	t, err := db.table(ctx, rec)
	if err != nil {
		return false, err
	}
	return deletePhase(ctx, db, rec, func() (bool, error) {
		c, key, err := encodeWithKey(rec, t)
		if err != nil || key.HasNull() {
			return false, err
		}
		stmt, err := db.compiler.Delete(t, c)
		if err != nil {
			return false, err
		}
		res, err := db.execStatement(ctx, "delete", t.Name, stmt)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("delete: rows affected: %w", err)
		}
		return n > 0, nil
	})
}

// Exists reports whether a row has rec's primary key. No hook runs.
func Exists(ctx context.Context, db *Database, rec Record) (bool, error) {
	t, err := db.table(ctx, rec)
	if err != nil {
		return false, err
	}
	c, key, err := encodeWithKey(rec, t)
	if err != nil || key.HasNull() {
		return false, err
	}
	stmt, err := db.compiler.Exists(t, c)
	if err != nil {
		return false, err
	}
	_, rows, err := db.queryStatement(ctx, "exists", t.Name, stmt)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (db *Database) table(ctx context.Context, rec Record) (*schema.Table, error) {
	return db.schema.Table(ctx, rec.TableName())
}

// prepareFetch resolves the table and checks RETURNING support before any
// hook runs.
func (db *Database) prepareFetch(ctx context.Context, rec Record, dest RowDecoder, opts []Option) (*schema.Table, *fetch, error) {
	o := newCallOptions(opts)
	t, err := db.table(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	if dest == nil {
		return nil, nil, errors.New("fetch: nil row decoder")
	}
	if o.selection.IsZero() {
		o.selection = querysql.AllColumns
	}
	if err := db.requireReturning(ctx); err != nil {
		return nil, nil, err
	}
	return t, &fetch{selection: o.selection, dest: dest}, nil
}

func (db *Database) insertWithHooks(ctx context.Context, t *schema.Table, rec Record, f *fetch) (InsertionResult, bool, error) {
	var result InsertionResult
	s := saveStep{inner: insertStep{exec: func(ctx context.Context) (InsertionResult, bool, error) {
		res, err := db.insert(ctx, t, rec, f)
		if err != nil {
			return InsertionResult{}, false, err
		}
		result = res
		return res, true, nil
	}}}
	_, effect, err := s.run(ctx, db, rec)
	if err != nil || !effect {
		return InsertionResult{}, false, err
	}
	return result, true, nil
}

func (db *Database) upsertWithHooks(ctx context.Context, t *schema.Table, rec Record, conflict querysql.Conflict, f *fetch) (InsertionResult, bool, error) {
	var result InsertionResult
	s := saveStep{inner: insertStep{exec: func(ctx context.Context) (InsertionResult, bool, error) {
		res, err := db.upsert(ctx, t, rec, conflict, f)
		if err != nil {
			return InsertionResult{}, false, err
		}
		result = res
		return res, true, nil
	}}}
	_, effect, err := s.run(ctx, db, rec)
	if err != nil || !effect {
		return InsertionResult{}, false, err
	}
	return result, true, nil
}

func (db *Database) updateWithHooks(ctx context.Context, t *schema.Table, rec Record, columns []string, f *fetch) (bool, error) {
	s := saveStep{inner: updateStep{
		columns: columns,
		exec: func(ctx context.Context) (PersistenceResult, bool, error) {
			res, err := db.update(ctx, t, rec, columns, f)
			if err != nil {
				return PersistenceResult{}, false, err
			}
			return res, true, nil
		},
	}}
	_, effect, err := s.run(ctx, db, rec)
	return effect, err
}

func (db *Database) insert(ctx context.Context, t *schema.Table, rec Record, f *fetch) (InsertionResult, error) {
	c, err := encode(rec, t.Name)
	if err != nil {
		return InsertionResult{}, err
	}
	stmt, err := db.compiler.Insert(t, c, f.sel())
	if err != nil {
		return InsertionResult{}, err
	}

	if f == nil {
		res, err := db.execStatement(ctx, "insert", t.Name, stmt)
		if err != nil {
			return InsertionResult{}, err
		}
		var rowID int64
		if t.HasRowID {
			if rowID, err = res.LastInsertId(); err != nil {
				return InsertionResult{}, fmt.Errorf("insert: last insert id: %w", err)
			}
		}
		return insertionResult(t, c, rowID), nil
	}

	rowID, err := db.writeReturning(ctx, "insert", t, stmt, f)
	if err != nil {
		return InsertionResult{}, err
	}
	return insertionResult(t, c, rowID), nil
}

func (db *Database) upsert(ctx context.Context, t *schema.Table, rec Record, conflict querysql.Conflict, f *fetch) (InsertionResult, error) {
	c, err := encode(rec, t.Name)
	if err != nil {
		return InsertionResult{}, err
	}
	stmt, err := db.compiler.Upsert(t, c, conflict, f.sel())
	if err != nil {
		return InsertionResult{}, err
	}

	if !t.HasRowID && f == nil {
		if _, err := db.execStatement(ctx, "upsert", t.Name, stmt); err != nil {
			return InsertionResult{}, err
		}
		return insertionResult(t, c, 0), nil
	}

	rowID, err := db.writeReturning(ctx, "upsert", t, stmt, f)
	if err != nil {
		return InsertionResult{}, err
	}
	return insertionResult(t, c, rowID), nil
}

func (db *Database) update(ctx context.Context, t *schema.Table, rec Record, columns []string, f *fetch) (PersistenceResult, error) {
	c, key, err := encodeWithKey(rec, t)
	if err != nil {
		return PersistenceResult{}, err
	}
	if key.HasNull() {
		return PersistenceResult{}, dberr.NewRecordNotFound(t.Name, key)
	}

	set := changeset.Restrict(c, columns, t.PrimaryKey())
	stmt, err := db.compiler.Update(t, c, set, f.sel())
	if err != nil {
		return PersistenceResult{}, err
	}

	if f == nil {
		res, err := db.execStatement(ctx, "update", t.Name, stmt)
		if err != nil {
			return PersistenceResult{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return PersistenceResult{}, fmt.Errorf("update: rows affected: %w", err)
		}
		if n == 0 {
			return PersistenceResult{}, dberr.NewRecordNotFound(t.Name, key)
		}
		return PersistenceResult{Container: c}, nil
	}

	cols, rows, err := db.queryStatement(ctx, "update", t.Name, stmt)
	if err != nil {
		return PersistenceResult{}, err
	}
	if len(rows) == 0 {
		return PersistenceResult{}, dberr.NewRecordNotFound(t.Name, key)
	}
	if err := decode(t, f.dest, store.RowContainer(cols, rows[0])); err != nil {
		return PersistenceResult{}, err
	}
	return PersistenceResult{Container: c}, nil
}

// writeReturning runs an INSERT or UPSERT with a RETURNING clause, decodes
// the row into f.dest when f is set, and returns the trailing rowid.
func (db *Database) writeReturning(ctx context.Context, op string, t *schema.Table, stmt querysql.Statement, f *fetch) (int64, error) {
	cols, rows, err := db.queryStatement(ctx, op, t.Name, stmt)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("%s: no row returned", op)
	}

	row := rows[0]
	var rowID int64
	if stmt.TrailingRowID {
		last := len(row) - 1
		id, ok := row[last].(dbvalue.Integer)
		if !ok {
			return 0, fmt.Errorf("%s: unexpected rowid %s", op, row[last])
		}
		rowID = int64(id)
		cols, row = cols[:last], row[:last]
	}

	if f != nil {
		if err := decode(t, f.dest, store.RowContainer(cols, row)); err != nil {
			return 0, err
		}
	}
	return rowID, nil
}

func decode(t *schema.Table, dest RowDecoder, row *container.Container) error {
	if err := dest.DecodeRow(row); err != nil {
		return fmt.Errorf("decode %s row: %w", t.Name, err)
	}
	return nil
}

// insertionResult stores rowID in the encoded rowid column, if any.
func insertionResult(t *schema.Table, c *container.Container, rowID int64) InsertionResult {
	res := InsertionResult{RowID: rowID, Container: c}
	if implicit, _ := t.HasImplicitRowID(); implicit {
		res.RowIDColumn = t.PrimaryKey()[0]
		if c.Has(res.RowIDColumn) {
			c.SetValue(res.RowIDColumn, dbvalue.Integer(rowID))
		}
	}
	return res
}

// lacksRowID reports whether c belongs to a rowid table but carries no
// usable identifier.
func lacksRowID(t *schema.Table, c *container.Container) bool {
	implicit, _ := t.HasImplicitRowID()
	if !implicit {
		return false
	}
	v, ok := c.Value(t.PrimaryKey()[0])
	return !ok || dbvalue.IsNull(v)
}

func encode(e container.Encoder, table string) (*container.Container, error) {
	c, err := container.Encode(e)
	if err != nil {
		ce := dberr.NewConfigurationError(dberr.ErrCodeEncodeFailed, table, "cannot encode record")
		ce.Err = err
		return nil, ce
	}
	return c, nil
}

func encodeWithKey(rec Record, t *schema.Table) (*container.Container, *container.Container, error) {
	c, err := encode(rec, t.Name)
	if err != nil {
		return nil, nil, err
	}
	key, err := schema.ExtractKey(c, t)
	if err != nil {
		return nil, nil, err
	}
	return c, key, nil
}

// allColumns returns the non-key columns rec encodes.
func allColumns(t *schema.Table, rec Record) ([]string, error) {
	c, err := encode(rec, t.Name)
	if err != nil {
		return nil, err
	}
	return changeset.All(c, t.PrimaryKey()).Columns(), nil
}
