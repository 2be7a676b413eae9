package dbvalue

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type score int

func TestFrom(t *testing.T) {
	name := "Arthur"
	var nilName *string
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input any
		want  Value
	}{
		{"nil", nil, Null{}},
		{"int", 42, Integer(42)},
		{"int8", int8(-3), Integer(-3)},
		{"uint16", uint16(7), Integer(7)},
		{"named int", score(1000), Integer(1000)},
		{"float32", float32(1.5), Real(1.5)},
		{"bool true", true, Integer(1)},
		{"bool false", false, Integer(0)},
		{"string", "Craig", Text("Craig")},
		{"bytes", []byte{0x00, 0xff}, Blob{0x00, 0xff}},
		{"nil bytes", []byte(nil), Null{}},
		{"pointer", &name, Text("Arthur")},
		{"nil pointer", nilName, Null{}},
		{"time", ts, Text("2024-03-01 12:30:00.000")},
		{"valuer valid", sql.NullInt64{Int64: 9, Valid: true}, Integer(9)},
		{"valuer null", sql.NullString{}, Null{}},
		{"value passthrough", Real(2.25), Real(2.25)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := From(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFrom_Unsupported(t *testing.T) {
	_, err := From(struct{ X int }{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")

	_, err = From(uint64(1 << 63))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflows")
}

func TestFrom_NilValuerPointer(t *testing.T) {
	var ns *sql.NullString
	got, err := From(ns)
	require.NoError(t, err)
	assert.Equal(t, Null{}, got)
}

func TestFromDriver(t *testing.T) {
	assert.Equal(t, Null{}, FromDriver(nil))
	assert.Equal(t, Integer(3), FromDriver(int64(3)))
	assert.Equal(t, Real(0.5), FromDriver(0.5))
	assert.Equal(t, Integer(1), FromDriver(true))
	assert.Equal(t, Text("x"), FromDriver("x"))
	assert.Equal(t, Blob("ab"), FromDriver([]byte("ab")))
}

func TestFromDriver_CopiesBytes(t *testing.T) {
	raw := []byte("abc")
	v := FromDriver(raw)
	raw[0] = 'z'
	assert.Equal(t, Blob("abc"), v)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null null", Null{}, Null{}, true},
		{"nil null", nil, Null{}, true},
		{"null int", Null{}, Integer(0), false},
		{"int int", Integer(1), Integer(1), true},
		{"int real", Integer(1), Real(1.0), true},
		{"real int", Real(2.5), Integer(2), false},
		{"text text", Text("a"), Text("a"), true},
		{"text case", Text("a"), Text("A"), false},
		{"text blob", Text("a"), Blob("a"), false},
		{"blob blob", Blob{1, 2}, Blob{1, 2}, true},
		{"int text", Integer(1), Text("1"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a), "Equal must be symmetric")
		})
	}
}

func TestSQLLiteral(t *testing.T) {
	assert.Equal(t, "NULL", SQLLiteral(Null{}))
	assert.Equal(t, "NULL", SQLLiteral(nil))
	assert.Equal(t, "24", SQLLiteral(Integer(24)))
	assert.Equal(t, "-7", SQLLiteral(Integer(-7)))
	assert.Equal(t, "1.0", SQLLiteral(Real(1)))
	assert.Equal(t, "0.25", SQLLiteral(Real(0.25)))
	assert.Equal(t, "'Craig'", SQLLiteral(Text("Craig")))
	assert.Equal(t, "'it''s'", SQLLiteral(Text("it's")))
	assert.Equal(t, "X'00FF'", SQLLiteral(Blob{0x00, 0xff}))
}

func TestString(t *testing.T) {
	assert.Equal(t, "NULL", Null{}.String())
	assert.Equal(t, "1", Integer(1).String())
	assert.Equal(t, `"E621E1F8-C36C-495A-93FC-0C247A3E6E5F"`, Text("E621E1F8-C36C-495A-93FC-0C247A3E6E5F").String())
}

func TestDriverValue(t *testing.T) {
	assert.Nil(t, DriverValue(Null{}))
	assert.Equal(t, int64(5), DriverValue(Integer(5)))
	assert.Equal(t, 1.5, DriverValue(Real(1.5)))
	assert.Equal(t, "s", DriverValue(Text("s")))
	assert.Equal(t, []byte{1}, DriverValue(Blob{1}))
}

func TestMarshalJSON(t *testing.T) {
	data, err := json.Marshal([]Value{Null{}, Integer(3), Real(1.5), Text("a"), Blob("hi")})
	require.NoError(t, err)
	assert.JSONEq(t, `[null, 3, 1.5, "a", "aGk="]`, string(data))
}
