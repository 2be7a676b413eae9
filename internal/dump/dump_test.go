package dump

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/persist/internal/dbvalue"
	"github.com/roach88/persist/internal/testutil"
)

var playerDDL = []string{
	`CREATE TABLE player (id INTEGER PRIMARY KEY, name TEXT, score INTEGER)`,
	`INSERT INTO player VALUES (2, 'Barbara', 1000)`,
	`INSERT INTO player VALUES (1, 'Arthur', 500)`,
}

func TestSQL_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   string
	}{
		{"debug", Debug{}, "1|Arthur|500\n2|Barbara|1000\n"},
		{"debug header", Debug{Header: true}, "id|name|score\n1|Arthur|500\n2|Barbara|1000\n"},
		{"quote", Quote{}, "1,'Arthur',500\n2,'Barbara',1000\n"},
		{"quote header", Quote{Header: true, Separator: ";"}, "\"id\";\"name\";\"score\"\n1;'Arthur';500\n2;'Barbara';1000\n"},
		{"json", JSON{}, "[{\"id\":1,\"name\":\"Arthur\",\"score\":500},\n{\"id\":2,\"name\":\"Barbara\",\"score\":1000}]\n"},
	}

	for _, driver := range testutil.Drivers {
		db := testutil.OpenDBWithDriver(t, driver, playerDDL...)
		for _, tt := range tests {
			t.Run(driver+"/"+tt.name, func(t *testing.T) {
				var b strings.Builder
				err := SQL(context.Background(), db, &b, "SELECT * FROM player ORDER BY id", tt.format)
				require.NoError(t, err)
				assert.Equal(t, tt.want, b.String())
			})
		}
	}
}

func TestSQL_MultipleStatements(t *testing.T) {
	db := testutil.OpenDB(t, playerDDL...)

	var b strings.Builder
	err := SQL(context.Background(), db, &b, `
		UPDATE player SET score = 0 WHERE id = 1; -- no rows
		SELECT name FROM player WHERE id = 1;
		SELECT 'a;b', NULL, 1.5, x'00ff';
	`, Debug{})
	require.NoError(t, err)
	assert.Equal(t, "Arthur\na;b||1.5|X'00FF'\n", b.String())
}

func TestSQL_Error(t *testing.T) {
	db := testutil.OpenDB(t)
	err := SQL(context.Background(), db, &strings.Builder{}, "SELECT * FROM missing", Debug{})
	assert.ErrorContains(t, err, "missing")
}

func TestTables(t *testing.T) {
	db := testutil.OpenDB(t, append(playerDDL,
		`CREATE TABLE items (name TEXT)`,
		`INSERT INTO items VALUES ('b')`,
		`INSERT INTO items VALUES ('a')`,
	)...)
	ctx := context.Background()

	var one strings.Builder
	require.NoError(t, Tables(ctx, db, &one, []string{"player"}, Debug{}, HeaderAutomatic))
	assert.Equal(t, "1|Arthur|500\n2|Barbara|1000\n", one.String())

	var always strings.Builder
	require.NoError(t, Tables(ctx, db, &always, []string{"player"}, Debug{}, HeaderAlways))
	assert.Equal(t, "player\n1|Arthur|500\n2|Barbara|1000\n", always.String())

	var two strings.Builder
	require.NoError(t, Tables(ctx, db, &two, []string{"items", "player"}, Quote{}, HeaderAutomatic))
	assert.Equal(t, "items\n'b'\n'a'\n\nplayer\n1,'Arthur',500\n2,'Barbara',1000\n", two.String())

	err := Tables(ctx, db, &strings.Builder{}, []string{"missing"}, Debug{}, HeaderAutomatic)
	assert.Error(t, err)
}

func TestContent(t *testing.T) {
	for _, driver := range testutil.Drivers {
		t.Run(driver, func(t *testing.T) {
			db := testutil.OpenDBWithDriver(t, driver, append(playerDDL,
				`CREATE INDEX player_name ON player(name)`,
				`CREATE TABLE Albums (title TEXT PRIMARY KEY) WITHOUT ROWID`,
			)...)

			var b strings.Builder
			require.NoError(t, Content(context.Background(), db, &b, Debug{}))
			assert.Equal(t, strings.Join([]string{
				"sqlite_master",
				"CREATE TABLE Albums (title TEXT PRIMARY KEY) WITHOUT ROWID;",
				"CREATE TABLE player (id INTEGER PRIMARY KEY, name TEXT, score INTEGER);",
				"CREATE INDEX player_name ON player(name);",
				"",
				"Albums",
				"",
				"player",
				"1|Arthur|500",
				"2|Barbara|1000",
				"",
			}, "\n"), b.String())
		})
	}
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]Format{"": Debug{}, "debug": Debug{}, "QUOTE": Quote{}, "json": JSON{}} {
		got, err := ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("csv")
	assert.ErrorContains(t, err, "csv")
}

func TestDebug_NullAndBlob(t *testing.T) {
	var b strings.Builder
	rows := [][]dbvalue.Value{{dbvalue.Null{}, dbvalue.Blob{0xde, 0xad}, dbvalue.Real(2)}}
	require.NoError(t, Debug{Null: "NULL", Separator: "\t"}.Write(&b, []string{"a", "b", "c"}, rows))
	assert.Equal(t, "NULL\tX'DEAD'\t2\n", b.String())
}

func TestJSON_Values(t *testing.T) {
	var b strings.Builder
	rows := [][]dbvalue.Value{{dbvalue.Null{}, dbvalue.Blob("hi"), dbvalue.Text("<a&b>"), nil}}
	require.NoError(t, JSON{}.Write(&b, []string{"n", "b", "t", "z"}, rows))
	assert.Equal(t, `[{"n":null,"b":"aGk=","t":"<a&b>","z":null}]`+"\n", b.String())

	b.Reset()
	require.NoError(t, JSON{}.Write(&b, []string{"x"}, nil))
	assert.Equal(t, "[]\n", b.String())
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{"single", "SELECT 1", []string{"SELECT 1"}},
		{"trailing semicolon", "SELECT 1;", []string{"SELECT 1"}},
		{"two", "SELECT 1; SELECT 2", []string{"SELECT 1", "SELECT 2"}},
		{"string literal", "SELECT 'a;''b'; SELECT 2", []string{"SELECT 'a;''b'", "SELECT 2"}},
		{"quoted identifier", `SELECT "x;y" FROM t`, []string{`SELECT "x;y" FROM t`}},
		{"bracket identifier", "SELECT [x;y] FROM t", []string{"SELECT [x;y] FROM t"}},
		{"line comment", "SELECT 1 -- a;b\n; SELECT 2", []string{"SELECT 1 -- a;b", "SELECT 2"}},
		{"block comment", "SELECT /* ; */ 1", []string{"SELECT /* ; */ 1"}},
		{"only comments", "-- nothing\n; /* here */ ;", nil},
		{"empty", " ; ;", nil},
		{
			"trigger",
			"CREATE TRIGGER t AFTER INSERT ON a BEGIN UPDATE a SET n = 1; DELETE FROM b; END; SELECT 1",
			[]string{"CREATE TRIGGER t AFTER INSERT ON a BEGIN UPDATE a SET n = 1; DELETE FROM b; END", "SELECT 1"},
		},
		{
			"temp trigger with case",
			"create temp trigger t after update on a begin select case when new.n > 0 then 1 else 0 end; end;\nSELECT 2",
			[]string{"create temp trigger t after update on a begin select case when new.n > 0 then 1 else 0 end; end", "SELECT 2"},
		},
		{"begin transaction", "BEGIN; SELECT 1; END", []string{"BEGIN", "SELECT 1", "END"}},
		{"keyword in identifier", "CREATE TABLE begin_end (x); SELECT 1", []string{"CREATE TABLE begin_end (x)", "SELECT 1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(tt.script))
		})
	}
}
