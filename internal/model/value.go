package model

import (
	"bytes"
	"encoding/json"
	"maps"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
)

type valueKind uint8

const (
	vNull valueKind = iota
	vNumber
	vText
	vCurve
)

// Value is the content of a single field: null, a finite number, a
// non-empty string, or a non-empty temperature table. The zero Value is null.
type Value struct {
	kind  valueKind
	num   float64
	text  string
	curve map[int]float64
}

// Null returns the empty value.
func Null() Value { return Value{} }

// Number returns a numeric value. Non-finite input collapses to null.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{kind: vNumber, num: f}
}

// Text returns a string value. The empty string collapses to null.
func Text(s string) Value {
	if s == "" {
		return Value{}
	}
	return Value{kind: vText, text: s}
}

// Curve returns a temperature-keyed table. The map is copied; an empty map
// collapses to null.
func Curve(m map[int]float64) Value {
	if len(m) == 0 {
		return Value{}
	}
	return Value{kind: vCurve, curve: maps.Clone(m)}
}

// IsNull reports whether the value is empty.
func (v Value) IsNull() bool { return v.kind == vNull }

// Float returns the numeric content.
func (v Value) Float() (float64, bool) {
	if v.kind != vNumber {
		return 0, false
	}
	return v.num, true
}

// Str returns the text content.
func (v Value) Str() (string, bool) {
	if v.kind != vText {
		return "", false
	}
	return v.text, true
}

// Table returns a copy of the curve content.
func (v Value) Table() (map[int]float64, bool) {
	if v.kind != vCurve {
		return nil, false
	}
	return maps.Clone(v.curve), true
}

// Equal compares kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case vNumber:
		return v.num == o.num
	case vText:
		return v.text == o.text
	case vCurve:
		return maps.Equal(v.curve, o.curve)
	default:
		return true
	}
}

// Interface returns the value as a plain Go value (nil, float64, string or
// map[int]float64).
func (v Value) Interface() any {
	switch v.kind {
	case vNumber:
		return v.num
	case vText:
		return v.text
	case vCurve:
		return maps.Clone(v.curve)
	default:
		return nil
	}
}

// String renders the value for logs and spreadsheet cells.
func (v Value) String() string {
	switch v.kind {
	case vNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case vText:
		return v.text
	case vCurve:
		b, _ := json.Marshal(v.curve)
		return string(b)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case vNumber:
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	case vText:
		return json.Marshal(v.text)
	case vCurve:
		return json.Marshal(v.curve)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes without schema knowledge: JSON numbers become
// numbers, strings become text, objects become curves.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = Value{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(err, "model: decode text value")
		}
		*v = Text(s)
	case '{':
		var m map[int]float64
		if err := json.Unmarshal(b, &m); err != nil {
			return eris.Wrap(err, "model: decode curve value")
		}
		*v = Curve(m)
	default:
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return eris.Wrapf(err, "model: decode value %s", string(b))
		}
		*v = Number(f)
	}
	return nil
}
