package dbvalue

import (
	"bytes"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Value is a sealed interface over the five SQLite storage classes.
// Only Null, Integer, Real, Text and Blob implement it.
type Value interface {
	dbValue()

	// String describes the value the way it appears in error messages:
	// NULL, 42, 1.5, "text" or X'00FF'.
	String() string
}

// Null is the SQL NULL value.
type Null struct{}

func (Null) dbValue() {}

func (Null) String() string { return "NULL" }

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Integer is a 64-bit signed integer value.
type Integer int64

func (Integer) dbValue() {}

func (v Integer) String() string { return strconv.FormatInt(int64(v), 10) }

// Real is a 64-bit floating point value.
type Real float64

func (Real) dbValue() {}

func (v Real) String() string { return formatReal(float64(v)) }

// MarshalJSON implements json.Marshaler for Real.
// Non-finite values have no JSON form and are encoded as null.
func (v Real) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// Text is a UTF-8 string value.
type Text string

func (Text) dbValue() {}

func (v Text) String() string { return strconv.Quote(string(v)) }

// Blob is a binary value.
type Blob []byte

func (Blob) dbValue() {}

func (v Blob) String() string { return "X'" + strings.ToUpper(hex.EncodeToString(v)) + "'" }

// MarshalJSON implements json.Marshaler for Blob (base64, as encoding/json does for []byte).
func (v Blob) MarshalJSON() ([]byte, error) {
	return json.Marshal([]byte(v))
}

// TimeLayout is the text layout used when storing time.Time values.
const TimeLayout = "2006-01-02 15:04:05.000"

// From converts a Go value into a Value.
//
// Supported inputs: nil, Value, all integer and float kinds, bool (stored
// as 0/1), string, []byte, time.Time (UTC text in TimeLayout),
// driver.Valuer, and pointers to any of these (a nil pointer is Null).
// Named types with a supported underlying kind are accepted.
func From(v any) (Value, error) {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return Null{}, nil
	}
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case int:
		return Integer(val), nil
	case int64:
		return Integer(val), nil
	case int32:
		return Integer(val), nil
	case float64:
		return Real(val), nil
	case string:
		return Text(val), nil
	case []byte:
		if val == nil {
			return Null{}, nil
		}
		return Blob(bytes.Clone(val)), nil
	case bool:
		if val {
			return Integer(1), nil
		}
		return Integer(0), nil
	case time.Time:
		return Text(val.UTC().Format(TimeLayout)), nil
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil {
			return nil, fmt.Errorf("driver valuer %T: %w", v, err)
		}
		return From(dv)
	}
	return fromReflect(reflect.ValueOf(v))
}

// fromReflect handles pointers and named types.
func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer:
		return From(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Integer(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("unsigned value %d overflows int64", u)
		}
		return Integer(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Real(rv.Float()), nil
	case reflect.Bool:
		if rv.Bool() {
			return Integer(1), nil
		}
		return Integer(0), nil
	case reflect.String:
		return Text(rv.String()), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if rv.IsNil() {
				return Null{}, nil
			}
			return Blob(bytes.Clone(rv.Bytes())), nil
		}
	}
	return nil, fmt.Errorf("unsupported type for database value: %s", rv.Type())
}

// FromDriver converts a value scanned from database/sql into a Value.
// Drivers only produce nil, int64, float64, bool, []byte, string and time.Time.
func FromDriver(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case int64:
		return Integer(val)
	case float64:
		return Real(val)
	case bool:
		if val {
			return Integer(1)
		}
		return Integer(0)
	case []byte:
		return Blob(bytes.Clone(val))
	case string:
		return Text(val)
	case time.Time:
		return Text(val.UTC().Format(TimeLayout))
	default:
		return Text(fmt.Sprint(val))
	}
}

// DriverValue returns the database/sql argument for a Value.
func DriverValue(v Value) any {
	switch val := v.(type) {
	case Integer:
		return int64(val)
	case Real:
		return float64(val)
	case Text:
		return string(val)
	case Blob:
		return []byte(val)
	default:
		return nil
	}
}

// IsNull reports whether v is SQL NULL. A nil interface counts as NULL.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal reports whether two values are equal by value.
// Integer and Real compare numerically, so Integer(1) equals Real(1.0).
// Text never equals Blob, even with identical bytes.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch x := a.(type) {
	case Integer:
		switch y := b.(type) {
		case Integer:
			return x == y
		case Real:
			return float64(x) == float64(y)
		}
	case Real:
		switch y := b.(type) {
		case Integer:
			return float64(x) == float64(y)
		case Real:
			return x == y
		}
	case Text:
		y, ok := b.(Text)
		return ok && x == y
	case Blob:
		y, ok := b.(Blob)
		return ok && bytes.Equal(x, y)
	}
	return false
}

// SQLLiteral renders v as an SQLite literal: NULL, 42, 1.5, 'it''s' or X'00FF'.
func SQLLiteral(v Value) string {
	switch val := v.(type) {
	case Integer:
		return val.String()
	case Real:
		return formatReal(float64(val))
	case Text:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'"
	case Blob:
		return val.String()
	default:
		return "NULL"
	}
}

// Native returns v as a plain Go value for JSON or YAML output.
func Native(v Value) any {
	switch val := v.(type) {
	case Integer:
		return int64(val)
	case Real:
		return float64(val)
	case Text:
		return string(val)
	case Blob:
		return []byte(val)
	default:
		return nil
	}
}

func formatReal(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "9e999"
	case math.IsInf(f, -1):
		return "-9e999"
	case math.IsNaN(f):
		return "NULL"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
