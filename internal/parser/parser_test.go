package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecotek/binderlab/internal/model"
)

func numOf(t *testing.T, r model.Record, f model.Field) float64 {
	t.Helper()
	v, ok := r.Float(f)
	require.True(t, ok, "%s should be set", f)
	return v
}

func textOf(t *testing.T, r model.Record, f model.Field) string {
	t.Helper()
	v, ok := r.Get(f).Str()
	require.True(t, ok, "%s should be set", f)
	return v
}

func TestParse_PerformanceGrade(t *testing.T) {
	t.Parallel()

	r := Parse("Binder classification: PG 76-28 modified")
	assert.Equal(t, 76.0, numOf(t, r, model.PgHigh))
	assert.Equal(t, -28.0, numOf(t, r, model.PgLow))
	assert.Equal(t, "PG 76-28", textOf(t, r, model.PerformanceGrade))
}

func TestParse_PerformanceGradeSlash(t *testing.T) {
	t.Parallel()

	r := Parse("pg82/22")
	assert.Equal(t, 82.0, numOf(t, r, model.PgHigh))
	assert.Equal(t, -22.0, numOf(t, r, model.PgLow))
	assert.Equal(t, "PG 82-22", textOf(t, r, model.PerformanceGrade))
}

func TestParse_EmptyText(t *testing.T) {
	t.Parallel()

	r := Parse("")
	assert.Equal(t, model.Fields(), model.FindMissing(r))
}

func TestParse_ReportScenario(t *testing.T) {
	t.Parallel()

	r := Parse("PG 76-28 ... Softening Point 58.5 ... Ductility 45 ... Viscosity @155 ... 155 ... 420")

	assert.Equal(t, 76.0, numOf(t, r, model.PgHigh))
	assert.Equal(t, -28.0, numOf(t, r, model.PgLow))
	assert.Equal(t, "PG 76-28", textOf(t, r, model.PerformanceGrade))
	assert.Equal(t, 58.5, numOf(t, r, model.SofteningPoint))
	assert.Equal(t, 45.0, numOf(t, r, model.Ductility))
	assert.Equal(t, 420.0, numOf(t, r, model.Viscosity155CP))
	assert.Equal(t, 0.42, numOf(t, r, model.Viscosity155PaS))

	assert.Len(t, r.Filled(), 7)
	assert.True(t, r.IsNull(model.DSRData))
	assert.True(t, r.IsNull(model.MSCRJnr32))
	assert.True(t, r.IsNull(model.BBRStiffness))
}

func TestParse_ViscosityUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantPaS float64
		wantCP  float64
	}{
		{"pa·s after value", "Rotational viscosity at 155°C: 0.45 Pa·s", 0.45, 450},
		{"pa.s after value", "viscosity 155 c 1.2 pa.s", 1.2, 1200},
		{"unit before value", "Viscosity 155°C, Pa·s 0.38", 0.38, 380},
		{"bare number is cP", "Viscosity (155 °C) 2100", 2.1, 2100},
		{"cP label", "viscosity @ 155 ℃ 850 cP", 0.85, 850},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := Parse(tt.in)
			assert.InDelta(t, tt.wantPaS, numOf(t, r, model.Viscosity155PaS), 1e-9)
			assert.InDelta(t, tt.wantCP, numOf(t, r, model.Viscosity155CP), 1e-9)
		})
	}
}

func TestParse_ViscosityDerivedExactly(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"viscosity 155 0.731 pa·s", "viscosity 155 731"} {
		r := Parse(in)
		pas := numOf(t, r, model.Viscosity155PaS)
		cp := numOf(t, r, model.Viscosity155CP)
		assert.InDelta(t, pas*1000, cp, 1e-9, in)
	}
}

func TestParse_ViscosityValueStartingWithLabel(t *testing.T) {
	t.Parallel()

	r := Parse("viscosity 155 1550")
	assert.Equal(t, 1550.0, numOf(t, r, model.Viscosity155CP))
}

func TestParse_DSRTable(t *testing.T) {
	t.Parallel()

	in := "G*/sinδ @ 64°C 3.1 kPa\nG*/sin d 70 1.6\nG*/sinδ 64 3.4"
	r := Parse(in)
	tbl, ok := r.Get(model.DSRData).Table()
	require.True(t, ok)
	assert.Equal(t, map[int]float64{64: 3.4, 70: 1.6}, tbl)
}

func TestParse_AgedRheology(t *testing.T) {
	t.Parallel()

	in := `Original binder G*/sinδ at 82°C 1.25 kPa
RTFO mass change -0.12 %
RTFO residue G*/sinδ at 82°C 2.61 kPa
PAV residue G*/sinδ at 34°C 4120 kPa
BBR creep stiffness at -12°C 182 MPa
BBR m-value at -12°C 0.331`
	r := Parse(in)

	assert.Equal(t, 1.25, numOf(t, r, model.DSROriginal82))
	assert.Equal(t, -0.12, numOf(t, r, model.RTFOMassChange))
	assert.Equal(t, 2.61, numOf(t, r, model.DSRRTFO82))
	assert.Equal(t, 4120.0, numOf(t, r, model.DSRPAV34))
	assert.Equal(t, 182.0, numOf(t, r, model.BBRStiffness))
	assert.Equal(t, 0.331, numOf(t, r, model.BBRMValue))
}

func TestParse_MSCR(t *testing.T) {
	t.Parallel()

	in := "MSCR Jnr 3.2 0.18 kPa-1\nMSCR percent recovery at 64°C 88.5\nElastic recovery 91"
	r := Parse(in)

	assert.Equal(t, 0.18, numOf(t, r, model.MSCRJnr32))
	assert.Equal(t, 0.18, numOf(t, r, model.Jnr32))
	assert.Equal(t, 88.5, numOf(t, r, model.MSCRRecovery64))
	assert.Equal(t, 88.5, numOf(t, r, model.MSCRRecoveryOverall))
	assert.Equal(t, 88.5, numOf(t, r, model.RecoveryPct))
}

func TestParse_FlashPoint(t *testing.T) {
	t.Parallel()

	r := Parse("Flash Point (COC) ......... 262 °C")
	assert.Equal(t, 262.0, numOf(t, r, model.FlashPointCOC))
}

func TestParse_FullWidthDigits(t *testing.T) {
	t.Parallel()

	r := Parse("ＰＧ ７６－２８")
	// NFKC folds full-width letters, digits and the full-width hyphen.
	assert.Equal(t, 76.0, numOf(t, r, model.PgHigh))
}

func TestParse_Metadata(t *testing.T) {
	t.Parallel()

	in := `Laboratory: Korea Pavement Research Lab
Report No: KPR-2024/118
Sample Name: SBS PMA lot 7
Test Date: 2024-05-17
Testing Location: Hwaseong plant`
	r := Parse(in)

	assert.Equal(t, "Korea Pavement Research Lab", textOf(t, r, model.LabName))
	assert.Equal(t, "KPR-2024/118", textOf(t, r, model.TestReportNumber))
	assert.Equal(t, "SBS PMA lot 7", textOf(t, r, model.SampleName))
	assert.Equal(t, "2024-05-17", textOf(t, r, model.TestDate))
	assert.Equal(t, "Hwaseong plant", textOf(t, r, model.TestingLocation))
}

func TestParse_FieldsAreIndependent(t *testing.T) {
	t.Parallel()

	r := Parse("grade PG xx-yy, softening point 81")
	assert.True(t, r.IsNull(model.PgHigh))
	assert.True(t, r.IsNull(model.PerformanceGrade))
	assert.Equal(t, 81.0, numOf(t, r, model.SofteningPoint))
}
