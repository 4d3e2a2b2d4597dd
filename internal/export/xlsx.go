// Package export writes binder tests to spreadsheets.
package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/ecotek/binderlab/internal/model"
)

// Sheet names of the exported workbook.
const (
	SheetTests      = "tests"
	SheetProvenance = "provenance"
)

var leadingColumns = []string{"id", "name", "binderSource", "lab", "status", "version", "updatedAt"}

// Workbook builds a workbook with one row per test. The tests sheet holds
// field values, the provenance sheet the source tag of each filled field.
func Workbook(tests []model.BinderTest) (*xlsx.File, error) {
	f := xlsx.NewFile()

	values, err := f.AddSheet(SheetTests)
	if err != nil {
		return nil, eris.Wrap(err, "export: add tests sheet")
	}
	prov, err := f.AddSheet(SheetProvenance)
	if err != nil {
		return nil, eris.Wrap(err, "export: add provenance sheet")
	}

	header := append([]string{}, leadingColumns...)
	header = append(header, model.FieldNames(model.Fields())...)
	addStrings(values.AddRow(), header)
	addStrings(prov.AddRow(), append([]string{"id"}, model.FieldNames(model.Fields())...))

	for i := range tests {
		t := &tests[i]

		row := values.AddRow()
		addStrings(row, []string{t.ID, t.Name, t.BinderSource, t.Lab, string(t.Status)})
		row.AddCell().SetInt64(t.Version)
		if t.UpdatedAt.IsZero() {
			row.AddCell()
		} else {
			row.AddCell().SetDateTime(t.UpdatedAt)
		}
		for _, fld := range model.Fields() {
			addValue(row.AddCell(), t.Fields.Get(fld))
		}

		prow := prov.AddRow()
		prow.AddCell().SetString(t.ID)
		for _, fld := range model.Fields() {
			cell := prow.AddCell()
			if !t.Fields.IsNull(fld) {
				cell.SetString(string(t.Provenance[fld]))
			}
		}
	}
	return f, nil
}

// Write encodes the workbook for tests to w.
func Write(w io.Writer, tests []model.BinderTest) error {
	f, err := Workbook(tests)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

// WriteFile saves the workbook for tests at path.
func WriteFile(path string, tests []model.BinderTest) error {
	f, err := Workbook(tests)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func addStrings(row *xlsx.Row, cells []string) {
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

// addValue leaves null values as empty cells. Curves are written as their
// JSON object.
func addValue(cell *xlsx.Cell, v model.Value) {
	if f, ok := v.Float(); ok {
		cell.SetFloat(f)
		return
	}
	if s, ok := v.Str(); ok {
		cell.SetString(s)
		return
	}
	if _, ok := v.Table(); ok {
		cell.SetString(v.String())
	}
}
