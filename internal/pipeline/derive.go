package pipeline

import (
	"strings"

	"github.com/ecotek/binderlab/internal/model"
)

// Attributes are the test-level attributes used as fallbacks for metadata
// fields.
type Attributes struct {
	Name         string
	BinderSource string
	Lab          string
}

// AttributesOf returns the fallback attributes of a test.
func AttributesOf(t *model.BinderTest) Attributes {
	return Attributes{Name: t.Name, BinderSource: t.BinderSource, Lab: t.Lab}
}

// fromAttribute marks a derivation whose origin is a test attribute rather
// than another field.
const fromAttribute model.Field = -1

// Derivation records one field filled by Derive and where it came from.
type Derivation struct {
	Field model.Field
	From  model.Field
}

// FromAttribute reports whether the value came from a test attribute.
func (d Derivation) FromAttribute() bool { return d.From == fromAttribute }

// aliasPairs hold the same quantity under a legacy and a current name.
var aliasPairs = [][2]model.Field{
	{model.Jnr32, model.MSCRJnr32},
	{model.RecoveryPct, model.MSCRRecoveryOverall},
}

// counterparts returns the fields that carry the same quantity as f.
func counterparts(f model.Field) []model.Field {
	if f == model.Viscosity155PaS {
		return []model.Field{model.Viscosity155CP}
	}
	if f == model.Viscosity155CP {
		return []model.Field{model.Viscosity155PaS}
	}
	for _, p := range aliasPairs {
		switch f {
		case p[0]:
			return []model.Field{p[1]}
		case p[1]:
			return []model.Field{p[0]}
		}
	}
	return nil
}

// Derive fills empty fields from their cross-referenced counterparts and
// returns what it filled. It never replaces a value and never fills a field
// for which keep reports true; keep may be nil.
func Derive(rec *model.Record, attrs Attributes, keep func(model.Field) bool) []Derivation {
	var out []Derivation
	fill := func(f, from model.Field, v model.Value) {
		if v.IsNull() || !rec.IsNull(f) || (keep != nil && keep(f)) {
			return
		}
		rec.Set(f, v)
		out = append(out, Derivation{Field: f, From: from})
	}

	if rec.IsNull(model.PerformanceGrade) {
		hi, okHi := rec.Float(model.PgHigh)
		lo, okLo := rec.Float(model.PgLow)
		if okHi && okLo {
			fill(model.PerformanceGrade, model.PgHigh, model.Text(model.FormatGrade(hi, lo)))
		}
	}

	out = append(out, deriveViscosity(rec, keep)...)

	for _, p := range aliasPairs {
		fill(p[1], p[0], rec.Get(p[0]))
		fill(p[0], p[1], rec.Get(p[1]))
	}

	fill(model.LabName, fromAttribute, model.Text(strings.TrimSpace(attrs.Lab)))
	fill(model.SampleName, fromAttribute, model.Text(strings.TrimSpace(attrs.Name)))
	fill(model.SampleName, fromAttribute, model.Text(strings.TrimSpace(attrs.BinderSource)))

	return out
}

// deriveViscosity fills whichever of the Pa·s and cP readings is empty from
// the other, unless keep reports true for the empty one.
func deriveViscosity(rec *model.Record, keep func(model.Field) bool) []Derivation {
	pas, okPaS := rec.Float(model.Viscosity155PaS)
	cp, okCP := rec.Float(model.Viscosity155CP)
	kept := func(f model.Field) bool { return keep != nil && keep(f) }
	switch {
	case okPaS && !okCP && !kept(model.Viscosity155CP):
		rec.Set(model.Viscosity155CP, model.Number(pas*1000))
		return []Derivation{{Field: model.Viscosity155CP, From: model.Viscosity155PaS}}
	case okCP && !okPaS && !kept(model.Viscosity155PaS):
		rec.Set(model.Viscosity155PaS, model.Number(cp/1000))
		return []Derivation{{Field: model.Viscosity155PaS, From: model.Viscosity155CP}}
	default:
		return nil
	}
}
