package pipeline

import (
	"time"

	"github.com/ecotek/binderlab/internal/model"
)

// ReviewInput is the persisted state of a test plus a reviewer submission.
type ReviewInput struct {
	// Fields are the canonical values, which may already hold earlier
	// manual edits.
	Fields model.Record
	// Extracted is the last orchestrator output.
	Extracted  model.Record
	Provenance model.Provenance
	Edits      []model.ManualEdit
	Attributes Attributes
	// Submitted maps canonical field names to raw form or JSON values.
	// Unknown names are ignored.
	Submitted map[string]any
}

// ReconcileOptions toggles behaviour that differs between deployments.
type ReconcileOptions struct {
	// RecomputeGrade re-synthesizes performanceGrade when a reviewer changes
	// pgHigh or pgLow and the grade itself was not set by hand.
	RecomputeGrade bool
}

// ReviewResult is the reconciled state to persist.
type ReviewResult struct {
	Record     model.Record
	Provenance model.Provenance
	// Edits is the full history: the input edits followed by NewEdits.
	Edits    []model.ManualEdit
	NewEdits []model.ManualEdit
}

// Reconcile merges a reviewer's submission into the stored record. A field
// that differs from its baseline value is written, tagged manual and
// appended to the audit log; submitting the baseline again changes nothing.
// Input that cannot be coerced becomes null instead of failing.
func Reconcile(in ReviewInput, opts ReconcileOptions, now time.Time) ReviewResult {
	rec, prov := baseline(in)

	var edits []model.ManualEdit
	record := func(f model.Field, oldV, newV model.Value) {
		rec.Set(f, newV)
		prov[f] = model.SourceManual
		edits = append(edits, model.ManualEdit{Field: f, OldValue: oldV, NewValue: newV, EditedAt: now})
	}

	// Schema order keeps the audit log deterministic.
	changed := make(map[model.Field]bool)
	for _, f := range model.Fields() {
		raw, ok := in.Submitted[f.Name()]
		if !ok {
			continue
		}
		newV := model.Coerce(f, raw)
		oldV := rec.Get(f)
		if newV.Equal(oldV) {
			continue
		}
		record(f, oldV, newV)
		changed[f] = true
	}

	if opts.RecomputeGrade && (changed[model.PgHigh] || changed[model.PgLow]) &&
		!changed[model.PerformanceGrade] && !prov.IsManual(model.PerformanceGrade) {
		hi, okHi := rec.Float(model.PgHigh)
		lo, okLo := rec.Float(model.PgLow)
		if okHi && okLo {
			grade := model.Text(model.FormatGrade(hi, lo))
			if old := rec.Get(model.PerformanceGrade); !grade.Equal(old) {
				record(model.PerformanceGrade, old, grade)
			}
		}
	}

	// A field the reviewer cleared is never refilled from its counterpart.
	for _, d := range Derive(&rec, in.Attributes, prov.IsManual) {
		src := derivedSource(prov, d)
		prov[d.Field] = src
		if src == model.SourceManual {
			edits = append(edits, model.ManualEdit{Field: d.Field, OldValue: model.Null(), NewValue: rec.Get(d.Field), EditedAt: now})
		}
	}

	all := make([]model.ManualEdit, 0, len(in.Edits)+len(edits))
	all = append(all, in.Edits...)
	all = append(all, edits...)
	return ReviewResult{Record: rec, Provenance: prov, Edits: all, NewEdits: edits}
}

// baseline layers the persisted canonical values over the last extraction
// output and fills cross-referenced fields. A field a reviewer cleared keeps
// its null.
func baseline(in ReviewInput) (model.Record, model.Provenance) {
	rec := in.Extracted.Clone()
	prov := in.Provenance.Clone()
	for _, f := range model.Fields() {
		v := in.Fields.Get(f)
		if !v.IsNull() || prov.IsManual(f) {
			rec.Set(f, v)
		}
	}
	for _, f := range rec.Filled() {
		if _, ok := prov[f]; !ok {
			prov[f] = model.SourceParser
		}
	}
	for _, d := range Derive(&rec, in.Attributes, prov.IsManual) {
		prov[d.Field] = derivedSource(prov, d)
	}
	return rec, prov
}

// derivedSource is the provenance a derived value inherits. Attribute
// fallbacks count as parser output.
func derivedSource(prov model.Provenance, d Derivation) model.Source {
	if d.FromAttribute() {
		return model.SourceParser
	}
	if src, ok := prov[d.From]; ok {
		return src
	}
	return model.SourceParser
}
