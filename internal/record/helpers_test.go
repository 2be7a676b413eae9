package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/persist/internal/container"
	"github.com/roach88/persist/internal/dbvalue"
	"github.com/roach88/persist/internal/querysql"
	"github.com/roach88/persist/internal/testutil"
)

var fixtureDDL = []string{
	`CREATE TABLE player (id INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE, score INTEGER NOT NULL DEFAULT 1000)`,
	`CREATE TABLE citizenships (personId INTEGER NOT NULL, countryCode TEXT NOT NULL, since INTEGER, PRIMARY KEY (personId, countryCode))`,
	`CREATE TABLE items (name TEXT, price REAL)`,
	`CREATE TABLE tags (code TEXT PRIMARY KEY, label TEXT) WITHOUT ROWID`,
	`CREATE TABLE audit (event TEXT NOT NULL)`,
}

// player is the entity most tests persist.
type player struct {
	ID    *int64
	Name  string
	Score int64
}

func newPlayer(name string, score int64) *player {
	return &player{Name: name, Score: score}
}

func (p *player) withID(id int64) *player {
	p.ID = &id
	return p
}

func (p *player) TableName() string { return "player" }

func (p *player) Encode(c *container.Container) {
	c.Set("id", p.ID)
	c.Set("name", p.Name)
	c.Set("score", p.Score)
}

func (p *player) DidInsert(r InsertionResult) {
	id := r.RowID
	p.ID = &id
}

func (p *player) DecodeRow(row *container.Container) error {
	for col, v := range row.All() {
		switch container.Fold(col) {
		case "id":
			id, ok := v.(dbvalue.Integer)
			if !ok {
				return fmt.Errorf("id: unexpected %s", v)
			}
			n := int64(id)
			p.ID = &n
		case "name":
			p.Name = string(v.(dbvalue.Text))
		case "score":
			p.Score = int64(v.(dbvalue.Integer))
		}
	}
	return nil
}

// citizenship has a composite primary key.
type citizenship struct {
	PersonID    int64
	CountryCode *string
	Since       int64
}

func (c *citizenship) TableName() string { return "citizenships" }

func (c *citizenship) Encode(ct *container.Container) {
	ct.Set("personId", c.PersonID)
	ct.Set("countryCode", c.CountryCode)
	ct.Set("since", c.Since)
}

// item lives in a table with a hidden rowid.
type item struct {
	RowID *int64
	Name  string
	Price float64
}

func (i *item) TableName() string { return "items" }

func (i *item) Encode(c *container.Container) {
	if i.RowID != nil {
		c.Set("rowid", *i.RowID)
	}
	c.Set("name", i.Name)
	c.Set("price", i.Price)
}

func (i *item) DidInsert(r InsertionResult) {
	id := r.RowID
	i.RowID = &id
}

// tag lives in a WITHOUT ROWID table.
type tag struct {
	Code  string
	Label string
}

func (t *tag) TableName() string { return "tags" }

func (t *tag) Encode(c *container.Container) {
	c.Set("code", t.Code)
	c.Set("label", t.Label)
}

// tracked wraps a player and records every hook call.
type tracked struct {
	*player

	events []string
	counts map[string]int

	// failWill makes the named will hook ("insert", "update", "save",
	// "delete") return an error.
	failWill map[string]error

	// suppress makes the named around hook skip its inner function.
	suppress map[string]bool

	// swallow makes the named around hook return nil whatever inner returns.
	swallow map[string]bool

	// audit makes WillInsert write to the audit table through the handle.
	audit bool
}

func track(p *player) *tracked {
	return &tracked{
		player:   p,
		counts:   map[string]int{},
		failWill: map[string]error{},
		suppress: map[string]bool{},
		swallow:  map[string]bool{},
	}
}

func (t *tracked) record(event string) {
	t.events = append(t.events, event)
	t.counts[event]++
}

func (t *tracked) will(kind string) error {
	t.record("will_" + kind)
	return t.failWill[kind]
}

func around[T any](t *tracked, kind string, inner func() (T, error)) error {
	t.record("around_" + kind + "_enter")
	if t.suppress[kind] {
		return nil
	}
	_, err := inner()
	if err != nil && !t.swallow[kind] {
		return err
	}
	if err == nil {
		t.record("around_" + kind + "_exit")
	}
	return nil
}

func (t *tracked) WillInsert(ctx context.Context, db *Database) error {
	if t.audit {
		if _, err := db.Exec(ctx, `INSERT INTO audit (event) VALUES (?)`, "insert "+t.Name); err != nil {
			return err
		}
	}
	return t.will("insert")
}

func (t *tracked) AroundInsert(_ context.Context, _ *Database, insert func() (InsertionResult, error)) error {
	return around(t, "insert", insert)
}

func (t *tracked) DidInsert(r InsertionResult) {
	t.record("did_insert")
	t.player.DidInsert(r)
}

func (t *tracked) WillUpdate(_ context.Context, _ *Database, _ []string) error {
	return t.will("update")
}

func (t *tracked) AroundUpdate(_ context.Context, _ *Database, _ []string, update func() (PersistenceResult, error)) error {
	return around(t, "update", update)
}

func (t *tracked) DidUpdate(PersistenceResult) { t.record("did_update") }

func (t *tracked) WillSave(context.Context, *Database) error { return t.will("save") }

func (t *tracked) AroundSave(_ context.Context, _ *Database, save func() (PersistenceResult, error)) error {
	return around(t, "save", save)
}

func (t *tracked) DidSave(PersistenceResult) { t.record("did_save") }

func (t *tracked) WillDelete(context.Context, *Database) error { return t.will("delete") }

func (t *tracked) AroundDelete(_ context.Context, _ *Database, del func() (bool, error)) error {
	return around(t, "delete", del)
}

func (t *tracked) DidDelete(deleted bool) {
	t.record(fmt.Sprintf("did_delete(%t)", deleted))
}

// statements collects the literal SQL of observed statements.
type statements struct {
	list []string
}

func (s *statements) observe(_ string, stmt querysql.Statement) {
	s.list = append(s.list, stmt.Literal())
}

type fixture struct {
	sqlDB *sql.DB
	db    *Database
	stmts *statements
}

func newFixture(t *testing.T, opts ...DatabaseOption) *fixture {
	t.Helper()
	return newFixtureWithDriver(t, "sqlite3", opts...)
}

func newFixtureWithDriver(t *testing.T, driver string, opts ...DatabaseOption) *fixture {
	t.Helper()
	sqlDB := testutil.OpenDBWithDriver(t, driver, fixtureDDL...)
	stmts := &statements{}
	base := []DatabaseOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithObserver(stmts.observe),
	}
	db := New(sqlDB, append(base, opts...)...)
	return &fixture{sqlDB: sqlDB, db: db, stmts: stmts}
}

// reset forgets observed statements.
func (f *fixture) reset() {
	f.stmts.list = nil
}

func (f *fixture) insertPlayer(t *testing.T, name string, score int64) *player {
	t.Helper()
	p := newPlayer(name, score)
	_, err := Insert(context.Background(), f.db, p)
	require.NoError(t, err)
	return p
}

var errHook = errors.New("hook failed")
