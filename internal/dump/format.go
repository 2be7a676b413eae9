package dump

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/persist/internal/dbvalue"
	"github.com/roach88/persist/internal/querysql"
)

// Format writes the result of one statement.
type Format interface {
	Write(w io.Writer, columns []string, rows [][]dbvalue.Value) error
}

// ParseFormat returns the format with the given name: debug, quote or json.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "debug":
		return Debug{}, nil
	case "quote":
		return Quote{}, nil
	case "json":
		return JSON{}, nil
	default:
		return nil, fmt.Errorf("unknown dump format %q (want debug, quote or json)", name)
	}
}

// Debug prints raw values separated by "|". NULL prints as an empty string.
//
//	1|Arthur|500
type Debug struct {
	// Header prints column names first.
	Header bool

	// Separator defaults to "|".
	Separator string

	// Null is printed for NULL values.
	Null string
}

// Write implements Format.
func (f Debug) Write(w io.Writer, columns []string, rows [][]dbvalue.Value) error {
	sep := f.Separator
	if sep == "" {
		sep = "|"
	}
	var b strings.Builder
	if f.Header {
		b.WriteString(strings.Join(columns, sep))
		b.WriteByte('\n')
	}
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				b.WriteString(sep)
			}
			b.WriteString(f.value(v))
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (f Debug) value(v dbvalue.Value) string {
	switch val := v.(type) {
	case dbvalue.Integer:
		return strconv.FormatInt(int64(val), 10)
	case dbvalue.Real:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case dbvalue.Text:
		return string(val)
	case dbvalue.Blob:
		return val.String()
	default:
		return f.Null
	}
}

// Quote prints SQL literals separated by ",".
//
//	1,'Arthur',500
type Quote struct {
	// Header prints quoted column names first.
	Header bool

	// Separator defaults to ",".
	Separator string
}

// Write implements Format.
func (f Quote) Write(w io.Writer, columns []string, rows [][]dbvalue.Value) error {
	sep := f.Separator
	if sep == "" {
		sep = ","
	}
	var b strings.Builder
	if f.Header {
		for i, c := range columns {
			if i > 0 {
				b.WriteString(sep)
			}
			b.WriteString(querysql.QuoteIdent(c))
		}
		b.WriteByte('\n')
	}
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				b.WriteString(sep)
			}
			b.WriteString(dbvalue.SQLLiteral(v))
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// JSON prints a JSON array with one object per line, keys in column order.
// Blobs are base64 strings.
//
//	[{"id":1,"name":"Arthur","score":500},
//	{"id":2,"name":"Barbara","score":1000}]
type JSON struct{}

// Write implements Format.
func (JSON) Write(w io.Writer, columns []string, rows [][]dbvalue.Value) error {
	var b bytes.Buffer
	b.WriteByte('[')
	for r, row := range rows {
		if r > 0 {
			b.WriteString(",\n")
		}
		b.WriteByte('{')
		for i, v := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeJSON(&b, columns[i]); err != nil {
				return err
			}
			b.WriteByte(':')
			if err := writeJSON(&b, jsonValue(v)); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	}
	b.WriteString("]\n")
	_, err := w.Write(b.Bytes())
	return err
}

// jsonValue relies on the MarshalJSON methods of dbvalue: NULL and
// non-finite reals encode as null, blobs as base64.
func jsonValue(v dbvalue.Value) any {
	if v == nil {
		return dbvalue.Null{}
	}
	return v
}

func writeJSON(b *bytes.Buffer, v any) error {
	enc := json.NewEncoder(b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	b.Truncate(b.Len() - 1)
	return nil
}
