package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Record holds one value per schema field. Every field is always present;
// absence is expressed as a null Value.
type Record struct {
	values [fieldCount]Value
}

// NewRecord returns an all-null record.
func NewRecord() Record { return Record{} }

func (r Record) Get(f Field) Value { return r.values[f] }

func (r *Record) Set(f Field, v Value) { r.values[f] = v }

// IsNull reports whether field f is empty.
func (r Record) IsNull(f Field) bool { return r.values[f].IsNull() }

// Float is a shortcut for Get(f).Float().
func (r Record) Float(f Field) (float64, bool) { return r.values[f].Float() }

// Clone returns a deep copy.
func (r Record) Clone() Record {
	var out Record
	for i, v := range r.values {
		if t, ok := v.Table(); ok {
			out.values[i] = Curve(t)
			continue
		}
		out.values[i] = v
	}
	return out
}

// Filled returns the fields holding a non-null value, in schema order.
func (r Record) Filled() []Field {
	var out []Field
	for f := Field(0); f < fieldCount; f++ {
		if !r.values[f].IsNull() {
			out = append(out, f)
		}
	}
	return out
}

// Empty reports whether no field holds a value.
func (r Record) Empty() bool { return len(r.Filled()) == 0 }

// Map returns the record as a name-keyed map of plain Go values.
func (r Record) Map() map[string]any {
	out := make(map[string]any, fieldCount)
	for f := Field(0); f < fieldCount; f++ {
		out[f.Name()] = r.values[f].Interface()
	}
	return out
}

// MarshalJSON writes every field, in schema order, nulls included.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for f := Field(0); f < fieldCount; f++ {
		if f > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(f.Name())
		buf.Write(key)
		buf.WriteByte(':')
		b, err := r.values[f].MarshalJSON()
		if err != nil {
			return nil, eris.Wrapf(err, "model: marshal %s", f)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts any subset of the schema keys and coerces each value
// to its field's kind. Unknown keys are ignored.
func (r *Record) UnmarshalJSON(b []byte) error {
	raw, err := DecodeObject(b)
	if err != nil {
		return err
	}
	*r = RecordFromMap(raw)
	return nil
}

// RecordFromMap builds a record from a name-keyed map, coercing values.
func RecordFromMap(m map[string]any) Record {
	var r Record
	for name, raw := range m {
		f, ok := ParseField(name)
		if !ok {
			continue
		}
		r.values[f] = Coerce(f, raw)
	}
	return r
}

// DecodeObject decodes a JSON object keeping numbers as json.Number.
func DecodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, eris.Wrap(err, "model: decode object")
	}
	return m, nil
}

// FindMissing returns the fields whose value is null or empty, in schema
// order.
func FindMissing(r Record) []Field {
	var out []Field
	for f := Field(0); f < fieldCount; f++ {
		if r.values[f].IsNull() {
			out = append(out, f)
		}
	}
	return out
}

// FieldNames maps fields to their canonical names.
func FieldNames(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name()
	}
	return out
}
