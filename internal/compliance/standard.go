// Package compliance checks reconciled binder-test values against the
// threshold requirements of a standard.
package compliance

import (
	"strconv"

	"github.com/rotisserie/eris"
)

// Comparison is how a value is checked against a requirement's bounds.
type Comparison string

const (
	LTE     Comparison = "LTE"
	GTE     Comparison = "GTE"
	Between Comparison = "BETWEEN"
)

// Metric names a checked quantity.
type Metric string

const (
	MetricJnr             Metric = "jnr_3_2"
	MetricElasticRecovery Metric = "elasticRecoveryPct"
	MetricSofteningPoint  Metric = "softeningPointC"
	MetricDuctility       Metric = "ductilityCm"
	MetricViscosity       Metric = "viscosity155c"
	MetricPgHigh          Metric = "pgHigh"
	MetricPgLow           Metric = "pgLow"
)

var metricLabels = map[Metric]string{
	MetricJnr:             "Jnr 3.2 kPa",
	MetricElasticRecovery: "Elastic Recovery",
	MetricSofteningPoint:  "Softening Point",
	MetricDuctility:       "Ductility",
	MetricViscosity:       "Viscosity 155°C",
	MetricPgHigh:          "PG High",
	MetricPgLow:           "PG Low",
}

// metricOrder is the row order of Evaluate.
var metricOrder = []Metric{
	MetricJnr, MetricElasticRecovery, MetricSofteningPoint, MetricDuctility,
	MetricViscosity, MetricPgHigh, MetricPgLow,
}

func (m Metric) Label() string {
	if l, ok := metricLabels[m]; ok {
		return l
	}
	return string(m)
}

// Requirement is one threshold rule of a standard.
type Requirement struct {
	Metric     Metric     `yaml:"metric" json:"metric"`
	Comparison Comparison `yaml:"comparison" json:"comparison"`
	Min        *float64   `yaml:"min,omitempty" json:"min,omitempty"`
	Max        *float64   `yaml:"max,omitempty" json:"max,omitempty"`
	Unit       string     `yaml:"unit,omitempty" json:"unit,omitempty"`
}

// Check compares v against the bounds. It returns nil when the bound the
// comparison needs is not set.
func (r Requirement) Check(v float64) *bool {
	var pass bool
	switch r.Comparison {
	case LTE:
		if r.Max == nil {
			return nil
		}
		pass = v <= *r.Max
	case GTE:
		if r.Min == nil {
			return nil
		}
		pass = v >= *r.Min
	case Between:
		if r.Min == nil || r.Max == nil {
			return nil
		}
		pass = v >= *r.Min && v <= *r.Max
	default:
		return nil
	}
	return &pass
}

// Expression renders the threshold, e.g. "≤ 0.5 kPa⁻¹" or "50–80 cm".
func (r Requirement) Expression() string {
	unit := ""
	if r.Unit != "" {
		unit = " " + r.Unit
	}
	switch r.Comparison {
	case LTE:
		if r.Max != nil {
			return "≤ " + formatNum(*r.Max) + unit
		}
	case GTE:
		if r.Min != nil {
			return "≥ " + formatNum(*r.Min) + unit
		}
	case Between:
		if r.Min != nil && r.Max != nil {
			return formatNum(*r.Min) + "–" + formatNum(*r.Max) + unit
		}
	}
	return ""
}

func (r Requirement) validate() error {
	if _, ok := metricLabels[r.Metric]; !ok {
		return eris.Errorf("compliance: unknown metric %q", r.Metric)
	}
	switch r.Comparison {
	case LTE, GTE, Between:
		return nil
	default:
		return eris.Errorf("compliance: %s: unknown comparison %q", r.Metric, r.Comparison)
	}
}

// GradeRule overrides the Jnr and elastic recovery limits for binders at or
// above a performance grade.
type GradeRule struct {
	MinPgHigh             float64  `yaml:"min_pg_high" json:"minPgHigh"`
	MaxPgLow              float64  `yaml:"max_pg_low" json:"maxPgLow"`
	MaxJnr                *float64 `yaml:"max_jnr,omitempty" json:"maxJnr,omitempty"`
	MinElasticRecoveryPct *float64 `yaml:"min_elastic_recovery_pct,omitempty" json:"minElasticRecoveryPct,omitempty"`
}

// Standard is a named set of requirements.
type Standard struct {
	Code         string        `yaml:"code" json:"code"`
	Name         string        `yaml:"name" json:"name"`
	Requirements []Requirement `yaml:"requirements" json:"requirements"`
	GradeRules   []GradeRule   `yaml:"grade_rules,omitempty" json:"gradeRules,omitempty"`
}

// DefaultCode is the code of the built-in standard.
const DefaultCode = "KR_PG82_22"

func ptr(v float64) *float64 { return &v }

// DefaultStandard is the Korean PMA PG82-22 requirement set.
func DefaultStandard() Standard {
	return Standard{
		Code: DefaultCode,
		Name: "Korean PMA PG82-22",
		Requirements: []Requirement{
			{Metric: MetricJnr, Comparison: LTE, Max: ptr(0.5), Unit: "kPa⁻¹"},
			{Metric: MetricElasticRecovery, Comparison: GTE, Min: ptr(55), Unit: "%"},
			{Metric: MetricSofteningPoint, Comparison: GTE, Min: ptr(80), Unit: "°C"},
			{Metric: MetricDuctility, Comparison: GTE, Min: ptr(50), Unit: "cm"},
			{Metric: MetricViscosity, Comparison: LTE, Max: ptr(300), Unit: "Pa·s"},
			{Metric: MetricPgHigh, Comparison: GTE, Min: ptr(82), Unit: "°C"},
			{Metric: MetricPgLow, Comparison: LTE, Max: ptr(-22), Unit: "°C"},
		},
		GradeRules: []GradeRule{
			{MinPgHigh: 82, MaxPgLow: -34, MaxJnr: ptr(0.2), MinElasticRecoveryPct: ptr(80)},
		},
	}
}

func (s Standard) validate() error {
	if s.Code == "" {
		return eris.New("compliance: standard without code")
	}
	for _, r := range s.Requirements {
		if err := r.validate(); err != nil {
			return eris.Wrapf(err, "compliance: standard %s", s.Code)
		}
	}
	return nil
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
