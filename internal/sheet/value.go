package sheet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the type tag of a cell Value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindString
	KindNumber
)

// Value is a single spreadsheet cell: empty, a string, or a number.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
}

// Empty returns the empty value.
func Empty() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number returns a number value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// ParseCell turns a raw cell into a Value. Blank cells are empty,
// anything that parses as a finite float is a number, the rest are strings.
func ParseCell(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Empty()
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
		return Number(n)
	}
	return String(raw)
}

func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsEmpty() bool  { return v.Kind == KindEmpty }

// MarshalJSON encodes empty as null, strings as JSON strings and numbers as JSON numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, strings, numbers and booleans.
// Booleans are kept as their string form since rows only carry strings and numbers.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Empty()
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = String(strconv.FormatBool(b))
		return nil
	case '{', '[':
		return fmt.Errorf("cell value must be a string, number or null, got %s", data)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
		return nil
	}
}

// Row maps a column name to its cell value.
type Row map[string]Value

// Rows is an ordered sequence of rows.
type Rows []Row

// Head returns at most the first n rows.
func (r Rows) Head(n int) Rows {
	if n < 0 {
		n = 0
	}
	if len(r) <= n {
		return r
	}
	return r[:n]
}
