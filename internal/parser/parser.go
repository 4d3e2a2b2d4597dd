// Package parser extracts binder-test fields from the plain text of a lab
// report using tolerant label/number patterns.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ecotek/binderlab/internal/model"
)

const num = `([0-9]+(?:\.[0-9]+)?)`

// dsrLabel matches "G*/sinδ" and the usual ASCII spellings of it.
const dsrLabel = `g\*\s*/\s*sin\s*\(?\s*(?:δ|delta|d)\s*\)?`

// skip64C consumes a "64°c" test temperature written between a recovery
// label and its value.
const skip64C = `(?:[^0-9]*64\s*°?\s*c)?`

// numberRule captures a single numeric field from the lowercased text.
type numberRule struct {
	field model.Field
	re    *regexp.Regexp
}

var numberRules = []numberRule{
	{model.FlashPointCOC, regexp.MustCompile(`flash(?:\s*point)?(?:\s*\(coc\))?[^0-9-]*(-?[0-9]+(?:\.[0-9]+)?)`)},
	{model.SofteningPoint, regexp.MustCompile(`softening(?:\s+point)?[^0-9]*` + num)},
	{model.Ductility, regexp.MustCompile(`ductility[^0-9]*` + num)},
	{model.RecoveryPct, regexp.MustCompile(`recovery` + skip64C + `[^0-9]*` + num)},
	{model.Jnr32, regexp.MustCompile(`jnr[^0-9]*3\.?2[^0-9]*` + num)},
	{model.MSCRJnr32, regexp.MustCompile(`mscr[^0-9]*jnr[^0-9]*3\.?2[^0-9]*` + num)},
	{model.MSCRRecovery64, regexp.MustCompile(`(?:mscr\s*)?(?:percent\s*)?recovery[^0-9]*64[^0-9]*` + num)},
	{model.MSCRRecoveryOverall, regexp.MustCompile(`(?:percent\s*recovery|mscr\s*recovery)` + skip64C + `[^0-9]*` + num)},
	{model.RTFOMassChange, regexp.MustCompile(`rtfo[^\n]*mass[^0-9-]*(-?[0-9]+(?:\.[0-9]+)?)`)},
	{model.DSROriginal82, regexp.MustCompile(`original[^\n]*` + dsrLabel + `[^0-9]*82[^0-9]*` + num)},
	{model.DSRRTFO82, regexp.MustCompile(`rtfo[^\n]*` + dsrLabel + `[^0-9]*82[^0-9]*` + num)},
	{model.DSRPAV34, regexp.MustCompile(`pav[^\n]*` + dsrLabel + `[^0-9]*34[^0-9]*` + num)},
	// The optional "-12°c" group keeps the test temperature from being read
	// as the measurement.
	{model.BBRStiffness, regexp.MustCompile(`bbr[^\n]*stiffness(?:[^0-9-]*-\s*12\s*°?\s*c)?[^0-9-]*(-?[0-9]+(?:\.[0-9]+)?)`)},
	{model.BBRMValue, regexp.MustCompile(`bbr[^\n]*m[-\s]?value(?:[^0-9-]*-\s*12\s*°?\s*c)?[^0-9-]*(-?[0-9]+(?:\.[0-9]+)?)`)},
}

// textRules capture free-form metadata. They run on the original-case text
// and require an explicit separator after the label.
var textRules = []struct {
	field model.Field
	re    *regexp.Regexp
}{
	{model.TestReportNumber, regexp.MustCompile(`(?i)report\s*(?:no\.?|number|#)\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9\-/_.]*)`)},
	{model.TestDate, regexp.MustCompile(`(?i)(?:test(?:ing)?\s*date|date\s*(?:of\s*)?test(?:ed)?)\s*[:\-]?\s*([0-9]{4}[-./][0-9]{1,2}[-./][0-9]{1,2}|[0-9]{1,2}[-./][0-9]{1,2}[-./][0-9]{2,4})`)},
	{model.LabName, regexp.MustCompile(`(?i)(?:laboratory|lab\s*name)\s*[:\-]\s*([^\n]+)`)},
	{model.SampleName, regexp.MustCompile(`(?i)sample(?:\s*(?:name|id))?\s*[:\-]\s*([^\n]+)`)},
	{model.TestingLocation, regexp.MustCompile(`(?i)(?:testing\s*)?location\s*[:\-]\s*([^\n]+)`)},
}

var (
	pgRE = regexp.MustCompile(`pg\s*([0-9]{2})\s*[-/]\s*([0-9]{2})`)

	// A repeated "155" label (e.g. "@155 ... 155 °c") is skipped before the value.
	viscPaRE      = regexp.MustCompile(`viscosity[^0-9]*155(?:[^0-9]*155\b)*[^0-9]*` + num + `[^0-9a-z]*pa`)
	// Unit written between the temperature and the value: "155°c, pa·s 0.42".
	viscPaLabelRE = regexp.MustCompile(`viscosity[^0-9]*155(?:[^0-9]*155\b)*[^0-9]*?\bpa\s*[·.]?\s*s\b[^0-9]*` + num)
	viscRE        = regexp.MustCompile(`viscosity[^0-9]*155(?:[^0-9]*155\b)*[^0-9]*` + num)

	dsrRE = regexp.MustCompile(dsrLabel + `[^0-9]*([0-9]+)[^0-9]+` + num)
)

// Normalize folds compatibility characters (full-width digits, "℃",
// ligatures) so the ASCII patterns match. Case is preserved.
func Normalize(text string) string {
	return norm.NFKC.String(text)
}

// Parse extracts every field it can find in text. It never fails: fields
// without a match stay null.
func Parse(text string) model.Record {
	rec := model.NewRecord()
	normalized := Normalize(text)
	lower := strings.ToLower(normalized)

	if m := pgRE.FindStringSubmatch(lower); m != nil {
		hi, _ := strconv.ParseFloat(m[1], 64)
		lo, _ := strconv.ParseFloat(m[2], 64)
		rec.Set(model.PgHigh, model.Number(hi))
		rec.Set(model.PgLow, model.Number(-lo))
		rec.Set(model.PerformanceGrade, model.Text(model.FormatGrade(hi, -lo)))
	}

	parseViscosity(lower, &rec)

	for _, r := range numberRules {
		if m := r.re.FindStringSubmatch(lower); m != nil {
			rec.Set(r.field, number(m[1]))
		}
	}

	for _, r := range textRules {
		if m := r.re.FindStringSubmatch(normalized); m != nil {
			rec.Set(r.field, model.Text(strings.TrimSpace(m[1])))
		}
	}

	if table := DSRTable(lower); len(table) > 0 {
		rec.Set(model.DSRData, model.Curve(table))
	}

	return rec
}

// parseViscosity prefers an explicit Pa·s reading; otherwise the bare number
// is taken as cP. The other unit is always derived, never parsed.
func parseViscosity(lower string, rec *model.Record) {
	for _, re := range []*regexp.Regexp{viscPaRE, viscPaLabelRE} {
		if m := re.FindStringSubmatch(lower); m != nil {
			pas, err := strconv.ParseFloat(m[1], 64)
			if err == nil {
				rec.Set(model.Viscosity155PaS, model.Number(pas))
				rec.Set(model.Viscosity155CP, model.Number(pas*1000))
				return
			}
		}
	}
	if m := viscRE.FindStringSubmatch(lower); m != nil {
		cp, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			rec.Set(model.Viscosity155CP, model.Number(cp))
			rec.Set(model.Viscosity155PaS, model.Number(cp/1000))
		}
	}
}

// DSRTable collects every "G*/sinδ <temp> <value>" reading keyed by
// temperature. Later readings of the same temperature replace earlier ones.
func DSRTable(lower string) map[int]float64 {
	out := make(map[int]float64)
	for _, m := range dsrRE.FindAllStringSubmatch(lower, -1) {
		temp, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		out[temp] = v
	}
	return out
}

func number(s string) model.Value {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return model.Null()
	}
	return model.Number(f)
}
