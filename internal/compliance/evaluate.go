package compliance

import (
	"github.com/ecotek/binderlab/internal/model"
)

// Row is the result of checking one metric.
type Row struct {
	Metric     Metric  `json:"metric"`
	Label      string  `json:"label"`
	Expression string  `json:"expression"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit,omitempty"`
	// Pass is nil when the standard has no usable threshold for the metric.
	Pass *bool `json:"pass"`
}

// GradeLookup returns the first rule whose grade bounds the record's
// pgHigh/pgLow satisfy. Records without both sides match nothing.
func GradeLookup(rules []GradeRule, rec model.Record) (GradeRule, bool) {
	hi, okHi := rec.Float(model.PgHigh)
	lo, okLo := rec.Float(model.PgLow)
	if !okHi || !okLo {
		return GradeRule{}, false
	}
	for _, r := range rules {
		if hi >= r.MinPgHigh && lo <= r.MaxPgLow {
			return r, true
		}
	}
	return GradeRule{}, false
}

// Resolve returns the standard's requirements with grade-dependent limits
// applied for rec.
func (s Standard) Resolve(rec model.Record) []Requirement {
	out := make([]Requirement, len(s.Requirements))
	copy(out, s.Requirements)

	rule, ok := GradeLookup(s.GradeRules, rec)
	if !ok {
		return out
	}
	for i := range out {
		switch {
		case out[i].Metric == MetricJnr && rule.MaxJnr != nil:
			out[i].Max = rule.MaxJnr
		case out[i].Metric == MetricElasticRecovery && rule.MinElasticRecoveryPct != nil:
			out[i].Min = rule.MinElasticRecoveryPct
		}
	}
	return out
}

// Evaluate produces one row per metric that has both a requirement and a
// finite value in rec, in a fixed metric order.
func Evaluate(rec model.Record, std Standard) []Row {
	reqs := make(map[Metric]Requirement)
	for _, r := range std.Resolve(rec) {
		if _, dup := reqs[r.Metric]; !dup {
			reqs[r.Metric] = r
		}
	}

	var rows []Row
	for _, m := range metricOrder {
		req, ok := reqs[m]
		if !ok {
			continue
		}
		v, ok := MetricValue(rec, m)
		if !ok {
			continue
		}
		rows = append(rows, Row{
			Metric:     m,
			Label:      m.Label(),
			Expression: req.Expression(),
			Value:      v,
			Unit:       req.Unit,
			Pass:       req.Check(v),
		})
	}
	return rows
}

// Overall is true when every decided row passed, false when any failed and
// nil when no row was decided.
func Overall(rows []Row) *bool {
	var decided bool
	pass := true
	for _, r := range rows {
		if r.Pass == nil {
			continue
		}
		decided = true
		pass = pass && *r.Pass
	}
	if !decided {
		return nil
	}
	return &pass
}

// MetricValue reads a metric from the record, falling back to the alternate
// field or unit.
func MetricValue(rec model.Record, m Metric) (float64, bool) {
	first := func(fields ...model.Field) (float64, bool) {
		for _, f := range fields {
			if v, ok := rec.Float(f); ok {
				return v, true
			}
		}
		return 0, false
	}
	switch m {
	case MetricJnr:
		return first(model.Jnr32, model.MSCRJnr32)
	case MetricElasticRecovery:
		return first(model.RecoveryPct, model.MSCRRecoveryOverall)
	case MetricSofteningPoint:
		return first(model.SofteningPoint)
	case MetricDuctility:
		return first(model.Ductility)
	case MetricViscosity:
		if v, ok := rec.Float(model.Viscosity155PaS); ok {
			return v, true
		}
		if cp, ok := rec.Float(model.Viscosity155CP); ok {
			return cp / 1000, true
		}
		return 0, false
	case MetricPgHigh:
		return first(model.PgHigh)
	case MetricPgLow:
		return first(model.PgLow)
	default:
		return 0, false
	}
}
