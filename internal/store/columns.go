package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ecotek/binderlab/internal/model"
)

// fieldColumns lists the typed record columns in schema order.
var fieldColumns = func() []string {
	cols := make([]string, 0, model.FieldCount())
	for _, f := range model.Fields() {
		cols = append(cols, f.Column())
	}
	return cols
}()

// testColumns is the full select list of binder_tests.
var testColumns = append(append([]string{
	"id", "name", "binder_source", "lab", "folder_name", "status", "version",
}, fieldColumns...), "extracted", "provenance", "created_at", "updated_at")

// fieldColumnDDL renders one column definition per field. jsonType is the
// backend's JSON column type.
func fieldColumnDDL(numType, textType, jsonType string) string {
	var sb strings.Builder
	for _, f := range model.Fields() {
		typ := numType
		switch f.Kind() {
		case model.KindText:
			typ = textType
		case model.KindCurve:
			typ = jsonType
		}
		fmt.Fprintf(&sb, "\t%s %s,\n", f.Column(), typ)
	}
	return sb.String()
}

// recordArgs encodes a record as one argument per field column. Nulls are
// typed nil pointers so both pgx and database/sql send NULL.
func recordArgs(r model.Record) ([]any, error) {
	args := make([]any, 0, model.FieldCount())
	for _, f := range model.Fields() {
		v := r.Get(f)
		switch f.Kind() {
		case model.KindNumber:
			var p *float64
			if n, ok := v.Float(); ok {
				p = &n
			}
			args = append(args, p)
		case model.KindText:
			var p *string
			if s, ok := v.Str(); ok {
				p = &s
			}
			args = append(args, p)
		case model.KindCurve:
			var p *string
			if !v.IsNull() {
				b, err := json.Marshal(v)
				if err != nil {
					return nil, eris.Wrapf(err, "store: encode %s", f)
				}
				s := string(b)
				p = &s
			}
			args = append(args, p)
		}
	}
	return args, nil
}

// recordDests returns scan destinations matching recordArgs.
func recordDests() []any {
	dests := make([]any, 0, model.FieldCount())
	for _, f := range model.Fields() {
		if f.Kind() == model.KindNumber {
			dests = append(dests, new(*float64))
			continue
		}
		dests = append(dests, new(*string))
	}
	return dests
}

// decodeRecord reverses recordDests after a scan.
func decodeRecord(dests []any) (model.Record, error) {
	r := model.NewRecord()
	for i, f := range model.Fields() {
		switch d := dests[i].(type) {
		case **float64:
			if *d != nil {
				r.Set(f, model.Number(**d))
			}
		case **string:
			if *d == nil {
				continue
			}
			if f.Kind() == model.KindCurve {
				var v model.Value
				if err := json.Unmarshal([]byte(**d), &v); err != nil {
					return r, eris.Wrapf(err, "store: decode %s", f)
				}
				r.Set(f, model.Coerce(f, v))
				continue
			}
			r.Set(f, model.Text(**d))
		}
	}
	return r, nil
}

// testRow holds the raw scan targets of a binder_tests row.
type testRow struct {
	t          model.BinderTest
	status     string
	fields     []any
	extracted  *string
	provenance *string
}

func newTestRow() *testRow {
	return &testRow{fields: recordDests()}
}

func (r *testRow) dests() []any {
	out := []any{&r.t.ID, &r.t.Name, &r.t.BinderSource, &r.t.Lab, &r.t.FolderName, &r.status, &r.t.Version}
	out = append(out, r.fields...)
	return append(out, &r.extracted, &r.provenance, &r.t.CreatedAt, &r.t.UpdatedAt)
}

func (r *testRow) decode() (*model.BinderTest, error) {
	t := r.t
	t.Status = model.Status(r.status)

	fields, err := decodeRecord(r.fields)
	if err != nil {
		return nil, err
	}
	t.Fields = fields

	t.Extracted = model.NewRecord()
	if r.extracted != nil && *r.extracted != "" {
		if err := json.Unmarshal([]byte(*r.extracted), &t.Extracted); err != nil {
			return nil, eris.Wrap(err, "store: decode extracted")
		}
	}

	t.Provenance = model.Provenance{}
	if r.provenance != nil && *r.provenance != "" {
		if err := json.Unmarshal([]byte(*r.provenance), &t.Provenance); err != nil {
			return nil, eris.Wrap(err, "store: decode provenance")
		}
	}
	return &t, nil
}

// testArgs encodes the mutable part of a test: status, fields, extracted,
// provenance.
func testArgs(t *model.BinderTest) (status string, fields []any, extracted, provenance string, err error) {
	fields, err = recordArgs(t.Fields)
	if err != nil {
		return "", nil, "", "", err
	}
	ext, err := json.Marshal(t.Extracted)
	if err != nil {
		return "", nil, "", "", eris.Wrap(err, "store: encode extracted")
	}
	prov := t.Provenance
	if prov == nil {
		prov = model.Provenance{}
	}
	pb, err := json.Marshal(prov)
	if err != nil {
		return "", nil, "", "", eris.Wrap(err, "store: encode provenance")
	}
	return string(t.Status), fields, string(ext), string(pb), nil
}

// editRow is the stored shape of a ManualEdit.
type editRow struct {
	field    string
	oldValue string
	newValue string
	editedAt time.Time
}

func encodeEdit(e model.ManualEdit) (editRow, error) {
	oldB, err := json.Marshal(e.OldValue)
	if err != nil {
		return editRow{}, eris.Wrap(err, "store: encode old value")
	}
	newB, err := json.Marshal(e.NewValue)
	if err != nil {
		return editRow{}, eris.Wrap(err, "store: encode new value")
	}
	return editRow{field: e.Field.Name(), oldValue: string(oldB), newValue: string(newB), editedAt: e.EditedAt.UTC()}, nil
}

func (r editRow) decode() (model.ManualEdit, bool, error) {
	f, ok := model.ParseField(r.field)
	if !ok {
		return model.ManualEdit{}, false, nil
	}
	var oldV, newV model.Value
	if err := json.Unmarshal([]byte(r.oldValue), &oldV); err != nil {
		return model.ManualEdit{}, false, eris.Wrap(err, "store: decode old value")
	}
	if err := json.Unmarshal([]byte(r.newValue), &newV); err != nil {
		return model.ManualEdit{}, false, eris.Wrap(err, "store: decode new value")
	}
	return model.ManualEdit{
		Field:    f,
		OldValue: model.Coerce(f, oldV),
		NewValue: model.Coerce(f, newV),
		EditedAt: r.editedAt,
	}, true, nil
}

// placeholders renders n bind parameters starting at start. dollar selects
// $n style over ?.
func placeholders(start, n int, dollar bool) string {
	parts := make([]string, n)
	for i := range parts {
		if dollar {
			parts[i] = fmt.Sprintf("$%d", start+i)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// assignments renders "col = $n" pairs for an UPDATE.
func assignments(cols []string, start int, dollar bool) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		if dollar {
			parts[i] = fmt.Sprintf("%s = $%d", c, start+i)
		} else {
			parts[i] = c + " = ?"
		}
	}
	return strings.Join(parts, ", ")
}
