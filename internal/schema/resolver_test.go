package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/persist/internal/container"
	"github.com/roach88/persist/internal/dberr"
	"github.com/roach88/persist/internal/dbvalue"
	"github.com/roach88/persist/internal/testutil"
)

var fixtureDDL = []string{
	`CREATE TABLE persons (id INTEGER PRIMARY KEY, name NOT NULL, age INTEGER)`,
	`CREATE TABLE countries (isoCode TEXT NOT NULL PRIMARY KEY, name TEXT NOT NULL)`,
	`CREATE TABLE player (id INTEGER PRIMARY KEY, name NOT NULL UNIQUE, score INTEGER NOT NULL DEFAULT 1000)`,
	`CREATE TABLE items (name TEXT, price REAL)`,
	`CREATE TABLE citizenships (personId INTEGER NOT NULL, countryCode TEXT NOT NULL, PRIMARY KEY (personId, countryCode))`,
	`CREATE TABLE tags (code TEXT PRIMARY KEY, label TEXT) WITHOUT ROWID`,
	`CREATE TABLE bigints (id BIGINT PRIMARY KEY, v TEXT)`,
	`CREATE TABLE emails (id INTEGER PRIMARY KEY, address TEXT, domain TEXT, deleted INTEGER)`,
	`CREATE UNIQUE INDEX emails_address ON emails(address)`,
	`CREATE UNIQUE INDEX emails_live_domain ON emails(domain) WHERE deleted = 0`,
	`CREATE UNIQUE INDEX emails_lower ON emails(lower(address))`,
}

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	db := testutil.OpenDB(t, fixtureDDL...)
	return NewResolver(db)
}

func TestResolver_KeyStrategies(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()

	tests := []struct {
		table    string
		key      KeyStrategy
		hasRowID bool
	}{
		{"persons", ImplicitRowID{Alias: "id"}, true},
		{"countries", ExplicitKey{Columns: []string{"isoCode"}}, true},
		{"player", ImplicitRowID{Alias: "id"}, true},
		{"items", ImplicitRowID{}, true},
		{"citizenships", ExplicitKey{Columns: []string{"personId", "countryCode"}}, true},
		{"tags", ExplicitKey{Columns: []string{"code"}}, false},
		{"bigints", ExplicitKey{Columns: []string{"id"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			tbl, err := r.Table(ctx, tt.table)
			require.NoError(t, err)
			assert.Equal(t, tt.key, tbl.Key)
			assert.Equal(t, tt.hasRowID, tbl.HasRowID)
		})
	}
}

func TestResolver_PrimaryKeyColumns(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()

	cols, err := r.PrimaryKeyColumns(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, []string{"rowid"}, cols)

	cols, err = r.PrimaryKeyColumns(ctx, "citizenships")
	require.NoError(t, err)
	assert.Equal(t, []string{"personId", "countryCode"}, cols)
}

func TestResolver_ImplicitRowID(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()

	tbl, err := r.Table(ctx, "persons")
	require.NoError(t, err)
	ok, alias := tbl.HasImplicitRowID()
	assert.True(t, ok)
	assert.Equal(t, "id", alias)
	assert.Equal(t, "id", tbl.RowIDAlias())

	tbl, err = r.Table(ctx, "countries")
	require.NoError(t, err)
	ok, alias = tbl.HasImplicitRowID()
	assert.False(t, ok)
	assert.Empty(t, alias)
	assert.Empty(t, tbl.RowIDAlias())
}

func TestResolver_UniqueKeys(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()

	tbl, err := r.Table(ctx, "player")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id"}, {"name"}}, tbl.UniqueKeys)

	tbl, err = r.Table(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"code"}}, tbl.UniqueKeys, "primary key autoindex is not listed twice")

	// Partial and expression indexes are not candidate keys.
	tbl, err = r.Table(ctx, "emails")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id"}, {"address"}}, tbl.UniqueKeys)

	tbl, err = r.Table(ctx, "items")
	require.NoError(t, err)
	assert.Empty(t, tbl.UniqueKeys)
}

func TestResolver_UnknownTable(t *testing.T) {
	r := newResolver(t)
	_, err := r.Table(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, dberr.HasCode(err, dberr.ErrCodeUnknownTable))
}

func TestResolver_CacheIsCaseInsensitive(t *testing.T) {
	db := testutil.OpenDB(t, fixtureDDL...)
	r := NewResolver(db)
	ctx := context.Background()

	first, err := r.Table(ctx, "persons")
	require.NoError(t, err)
	second, err := r.Table(ctx, "PERSONS")
	require.NoError(t, err)
	assert.Same(t, first, second)

	// A schema change is only seen after invalidation.
	_, err = db.Exec(`ALTER TABLE persons ADD COLUMN email TEXT`)
	require.NoError(t, err)
	cached, err := r.Table(ctx, "persons")
	require.NoError(t, err)
	assert.False(t, cached.HasColumn("email"))

	r.Invalidate("Persons")
	fresh, err := r.Table(ctx, "persons")
	require.NoError(t, err)
	assert.True(t, fresh.HasColumn("email"))

	r.Reset()
	again, err := r.Table(ctx, "persons")
	require.NoError(t, err)
	assert.NotSame(t, fresh, again)
}

func TestTable_Canonical(t *testing.T) {
	r := newResolver(t)
	tbl, err := r.Table(context.Background(), "countries")
	require.NoError(t, err)

	name, ok := tbl.Canonical("ISOCODE")
	require.True(t, ok)
	assert.Equal(t, "isoCode", name)

	name, ok = tbl.Canonical("ROWID")
	require.True(t, ok)
	assert.Equal(t, "rowid", name)

	_, ok = tbl.Canonical("missing")
	assert.False(t, ok)
	assert.Equal(t, "missing", tbl.CanonicalOrSelf("missing"))
}

func TestTable_Columns(t *testing.T) {
	r := newResolver(t)
	tbl, err := r.Table(context.Background(), "player")
	require.NoError(t, err)

	require.Len(t, tbl.Columns, 3)
	score := tbl.Columns[2]
	assert.Equal(t, "score", score.Name)
	assert.Equal(t, "INTEGER", score.Type)
	assert.True(t, score.NotNull)
	require.NotNil(t, score.Default)
	assert.Equal(t, "1000", *score.Default)
	assert.Equal(t, 1, tbl.Columns[0].PrimaryKey)
}

func TestTable_IsUniqueKey(t *testing.T) {
	tbl := &Table{UniqueKeys: [][]string{{"personId", "countryCode"}}}
	key, ok := tbl.IsUniqueKey([]string{"COUNTRYCODE", "personid"})
	assert.True(t, ok)
	assert.Equal(t, []string{"personId", "countryCode"}, key)

	_, ok = tbl.IsUniqueKey([]string{"personId"})
	assert.False(t, ok)
}

func TestResolver_WithoutRowIDDetection(t *testing.T) {
	tests := []struct {
		ddl  string
		want bool
	}{
		{"CREATE TABLE t (a PRIMARY KEY, b) WITHOUT ROWID", true},
		{"CREATE TABLE t (a PRIMARY KEY, b)\nwithout   rowid", true},
		{"CREATE TABLE t (a TEXT PRIMARY KEY, b) STRICT, WITHOUT ROWID", true},
		{"CREATE TABLE t (a TEXT PRIMARY KEY, b) WITHOUT ROWID, STRICT", true},
		{"CREATE TABLE t (a PRIMARY KEY, without_rowid TEXT)", false},
		{"CREATE TABLE t (a PRIMARY KEY, b)", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withoutRowID.MatchString(tt.ddl), tt.ddl)
	}
}

func TestExtractKey(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()

	persons, err := r.Table(ctx, "persons")
	require.NoError(t, err)
	countries, err := r.Table(ctx, "countries")
	require.NoError(t, err)
	items, err := r.Table(ctx, "items")
	require.NoError(t, err)

	t.Run("rowid alias uses declared spelling", func(t *testing.T) {
		key, err := ExtractKey(container.Of(container.P("ID", 7), container.P("name", "x")), persons)
		require.NoError(t, err)
		assert.Equal(t, []string{"id"}, key.Columns())
		v, _ := key.Value("id")
		assert.Equal(t, dbvalue.Integer(7), v)
	})

	t.Run("null rowid is accepted", func(t *testing.T) {
		key, err := ExtractKey(container.Of(container.P("id", nil)), persons)
		require.NoError(t, err)
		assert.True(t, key.HasNull())
	})

	t.Run("missing rowid alias", func(t *testing.T) {
		_, err := ExtractKey(container.Of(container.P("name", "x")), persons)
		require.Error(t, err)
		assert.True(t, dberr.HasCode(err, dberr.ErrCodeMissingKey))
	})

	t.Run("hidden rowid", func(t *testing.T) {
		key, err := ExtractKey(container.Of(container.P("rowid", 3), container.P("name", "x")), items)
		require.NoError(t, err)
		assert.Equal(t, []string{"rowid"}, key.Columns())

		_, err = ExtractKey(container.Of(container.P("name", "x")), items)
		assert.True(t, dberr.HasCode(err, dberr.ErrCodeMissingKey))
	})

	t.Run("explicit key", func(t *testing.T) {
		key, err := ExtractKey(container.Of(container.P("name", "France"), container.P("isocode", "FR")), countries)
		require.NoError(t, err)
		assert.Equal(t, `[isoCode:"FR"]`, key.String())
	})

	t.Run("explicit null key", func(t *testing.T) {
		_, err := ExtractKey(container.Of(container.P("isoCode", nil)), countries)
		require.Error(t, err)
		assert.True(t, dberr.HasCode(err, dberr.ErrCodeNullKey))
		assert.False(t, dberr.IsRecordNotFound(err))
	})
}

func TestIsKeyColumn(t *testing.T) {
	tbl := &Table{Key: ImplicitRowID{Alias: "id"}}
	assert.True(t, IsKeyColumn(tbl, "ID"))
	assert.False(t, IsKeyColumn(tbl, "name"))

	hidden := &Table{Key: ImplicitRowID{}}
	assert.True(t, IsKeyColumn(hidden, "ROWID"))
}
