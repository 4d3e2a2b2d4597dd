package compliance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecotek/binderlab/internal/model"
)

func record(values map[model.Field]float64) model.Record {
	rec := model.NewRecord()
	for f, v := range values {
		rec.Set(f, model.Number(v))
	}
	return rec
}

func rowFor(rows []Row, m Metric) (Row, bool) {
	for _, r := range rows {
		if r.Metric == m {
			return r, true
		}
	}
	return Row{}, false
}

func TestRequirement_LTEBoundary(t *testing.T) {
	r := Requirement{Metric: MetricJnr, Comparison: LTE, Max: ptr(1.0)}
	assert.True(t, *r.Check(1.0))
	assert.False(t, *r.Check(1.01))
}

func TestRequirement_Check(t *testing.T) {
	tests := []struct {
		name string
		req  Requirement
		v    float64
		want *bool
	}{
		{"gte pass", Requirement{Comparison: GTE, Min: ptr(55)}, 55, ptr2(true)},
		{"gte fail", Requirement{Comparison: GTE, Min: ptr(55)}, 54.9, ptr2(false)},
		{"between inside", Requirement{Comparison: Between, Min: ptr(50), Max: ptr(80)}, 80, ptr2(true)},
		{"between below", Requirement{Comparison: Between, Min: ptr(50), Max: ptr(80)}, 49, ptr2(false)},
		{"lte without max", Requirement{Comparison: LTE, Min: ptr(1)}, 0, nil},
		{"between half open", Requirement{Comparison: Between, Min: ptr(1)}, 2, nil},
		{"unknown comparison", Requirement{Comparison: "EQ", Max: ptr(1)}, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Check(tt.v))
		})
	}
}

func ptr2(b bool) *bool { return &b }

func TestRequirement_Expression(t *testing.T) {
	assert.Equal(t, "≤ 0.5 kPa⁻¹", Requirement{Comparison: LTE, Max: ptr(0.5), Unit: "kPa⁻¹"}.Expression())
	assert.Equal(t, "≥ 55 %", Requirement{Comparison: GTE, Min: ptr(55), Unit: "%"}.Expression())
	assert.Equal(t, "50–80", Requirement{Comparison: Between, Min: ptr(50), Max: ptr(80)}.Expression())
	assert.Equal(t, "", Requirement{Comparison: LTE}.Expression())
}

func TestEvaluate_DefaultStandard(t *testing.T) {
	rec := record(map[model.Field]float64{
		model.Jnr32:          0.45,
		model.RecoveryPct:    60,
		model.SofteningPoint: 79,
		model.PgHigh:         82,
		model.PgLow:          -22,
	})

	rows := Evaluate(rec, DefaultStandard())
	require.Len(t, rows, 5, "ductility and viscosity have no value")

	jnr, _ := rowFor(rows, MetricJnr)
	assert.True(t, *jnr.Pass)
	assert.Equal(t, "≤ 0.5 kPa⁻¹", jnr.Expression)
	assert.Equal(t, "Jnr 3.2 kPa", jnr.Label)

	soft, _ := rowFor(rows, MetricSofteningPoint)
	assert.False(t, *soft.Pass)

	assert.Equal(t, []Metric{MetricJnr, MetricElasticRecovery, MetricSofteningPoint, MetricPgHigh, MetricPgLow},
		[]Metric{rows[0].Metric, rows[1].Metric, rows[2].Metric, rows[3].Metric, rows[4].Metric})

	assert.False(t, *Overall(rows))
}

func TestEvaluate_GradeDependentLimits(t *testing.T) {
	rec := record(map[model.Field]float64{
		model.MSCRJnr32:           0.3,
		model.MSCRRecoveryOverall: 70,
		model.PgHigh:              82,
		model.PgLow:               -34,
	})

	rows := Evaluate(rec, DefaultStandard())
	jnr, ok := rowFor(rows, MetricJnr)
	require.True(t, ok, "falls back to the MSCR field")
	assert.Equal(t, "≤ 0.2 kPa⁻¹", jnr.Expression)
	assert.False(t, *jnr.Pass)

	er, ok := rowFor(rows, MetricElasticRecovery)
	require.True(t, ok)
	assert.Equal(t, "≥ 80 %", er.Expression)
	assert.False(t, *er.Pass)
}

func TestEvaluate_NoGradeUsesDefaults(t *testing.T) {
	rec := record(map[model.Field]float64{model.Jnr32: 0.3})
	rows := Evaluate(rec, DefaultStandard())
	require.Len(t, rows, 1)
	assert.Equal(t, "≤ 0.5 kPa⁻¹", rows[0].Expression)
	assert.True(t, *rows[0].Pass)
}

func TestEvaluate_DoesNotMutateStandard(t *testing.T) {
	std := DefaultStandard()
	Evaluate(record(map[model.Field]float64{model.PgHigh: 88, model.PgLow: -40, model.Jnr32: 0.1}), std)
	assert.Equal(t, 0.5, *std.Requirements[0].Max)
}

func TestEvaluate_ViscosityFromCP(t *testing.T) {
	rec := record(map[model.Field]float64{model.Viscosity155CP: 420})
	rows := Evaluate(rec, DefaultStandard())
	require.Len(t, rows, 1)
	assert.InDelta(t, 0.42, rows[0].Value, 1e-12)
	assert.True(t, *rows[0].Pass)
}

func TestEvaluate_EmptyRecord(t *testing.T) {
	rows := Evaluate(model.NewRecord(), DefaultStandard())
	assert.Empty(t, rows)
	assert.Nil(t, Overall(rows))
}

func TestEvaluate_UndecidedRow(t *testing.T) {
	std := Standard{Code: "X", Requirements: []Requirement{{Metric: MetricDuctility, Comparison: Between, Min: ptr(40)}}}
	rows := Evaluate(record(map[model.Field]float64{model.Ductility: 45}), std)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Pass)
	assert.Nil(t, Overall(rows))
}

func TestGradeLookup(t *testing.T) {
	rules := DefaultStandard().GradeRules

	_, ok := GradeLookup(rules, record(map[model.Field]float64{model.PgHigh: 82}))
	assert.False(t, ok)

	_, ok = GradeLookup(rules, record(map[model.Field]float64{model.PgHigh: 76, model.PgLow: -34}))
	assert.False(t, ok)

	r, ok := GradeLookup(rules, record(map[model.Field]float64{model.PgHigh: 88, model.PgLow: -40}))
	require.True(t, ok)
	assert.Equal(t, 0.2, *r.MaxJnr)
}

func writeStandards(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "standards.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestCache_LoadAndInvalidate(t *testing.T) {
	c := NewCache("", "")

	_, err := c.Standard("")
	assert.True(t, eris.Is(err, ErrNotLoaded))

	require.NoError(t, c.Load())
	s, err := c.Standard("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCode, s.Code)

	c.Invalidate()
	_, err = c.Standard(DefaultCode)
	assert.True(t, eris.Is(err, ErrNotLoaded))
}

func TestCache_FileOverridesAndAdds(t *testing.T) {
	p := writeStandards(t, `
standards:
  - code: KR_PG82_22
    name: Korean PMA PG82-22 (2025 rev)
    requirements:
      - metric: jnr_3_2
        comparison: LTE
        max: 0.4
        unit: kPa⁻¹
  - code: KS_F_2389
    name: KS F 2389
    requirements:
      - metric: ductilityCm
        comparison: BETWEEN
        min: 40
        max: 150
        unit: cm
`)
	c := NewCache(p, "KS_F_2389")
	require.NoError(t, c.Load())
	assert.Equal(t, []string{"KR_PG82_22", "KS_F_2389"}, c.Codes())

	primary, err := c.Standard("")
	require.NoError(t, err)
	assert.Equal(t, "KS_F_2389", primary.Code)
	assert.Equal(t, "40–150 cm", primary.Requirements[0].Expression())

	kr, err := c.Standard("KR_PG82_22")
	require.NoError(t, err)
	require.Len(t, kr.Requirements, 1)
	assert.Equal(t, 0.4, *kr.Requirements[0].Max)

	_, err = c.Standard("EN_14023")
	assert.True(t, eris.Is(err, ErrUnknownStandard))
}

func TestCache_Reload(t *testing.T) {
	p := writeStandards(t, "standards: []\n")
	c := NewCache(p, "")
	require.NoError(t, c.Load())

	require.NoError(t, os.WriteFile(p, []byte("standards:\n  - code: NEW\n    requirements: []\n"), 0o644))
	require.NoError(t, c.Reload())
	_, err := c.Standard("NEW")
	assert.NoError(t, err)
}

func TestCache_ReloadFailureKeepsLastGoodSet(t *testing.T) {
	p := writeStandards(t, "standards:\n  - code: OLD\n    requirements: []\n")
	c := NewCache(p, "")
	require.NoError(t, c.Load())

	require.NoError(t, os.WriteFile(p, []byte("standards: ["), 0o644))
	err := c.Reload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compliance: parse")

	_, err = c.Standard("OLD")
	assert.NoError(t, err)
	_, err = c.Standard("")
	assert.NoError(t, err)
}

func TestCache_LoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		primary string
		want    string
	}{
		{"bad yaml", "standards: [", "", "compliance: parse"},
		{"unknown metric", "standards:\n  - code: X\n    requirements:\n      - metric: colour\n        comparison: LTE\n", "", "unknown metric"},
		{"unknown comparison", "standards:\n  - code: X\n    requirements:\n      - metric: pgHigh\n        comparison: EQ\n", "", "unknown comparison"},
		{"missing code", "standards:\n  - name: nameless\n", "", "without code"},
		{"missing primary", "standards: []\n", "NOPE", "primary standard NOPE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache(writeStandards(t, tt.content), tt.primary)
			err := c.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			_, err = c.Standard("")
			assert.True(t, eris.Is(err, ErrNotLoaded))
		})
	}

	err := NewCache(filepath.Join(t.TempDir(), "absent.yaml"), "").Load()
	assert.ErrorContains(t, err, "compliance: read")
}
