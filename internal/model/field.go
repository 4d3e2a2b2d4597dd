package model

import "github.com/rotisserie/eris"

// Field identifies one extractable binder-test field. The iota order is the
// schema declaration order and drives every ordered output (missing lists,
// JSON snapshots, spreadsheet columns).
type Field int

const (
	PerformanceGrade Field = iota
	FlashPointCOC
	Viscosity155PaS
	PgHigh
	PgLow
	SofteningPoint
	Viscosity155CP
	Ductility
	RecoveryPct
	Jnr32
	DSROriginal82
	RTFOMassChange
	DSRRTFO82
	DSRPAV34
	BBRStiffness
	BBRMValue
	MSCRJnr32
	MSCRRecovery64
	MSCRRecoveryOverall
	TestingLocation
	TestReportNumber
	SampleName
	TestDate
	LabName
	DSRData

	fieldCount
)

// Kind is the value type a field holds.
type Kind int

const (
	KindNumber Kind = iota
	KindText
	// KindCurve is a temperature-keyed modulus table.
	KindCurve
)

// FieldSpec describes a schema entry: the canonical camelCase name used in
// JSON and AI prompts, and the snake_case column name used by the stores.
type FieldSpec struct {
	Name   string
	Column string
	Kind   Kind
}

var schema = [fieldCount]FieldSpec{
	PerformanceGrade:    {"performanceGrade", "performance_grade", KindText},
	FlashPointCOC:       {"flashPointCOC_C", "flash_point_coc_c", KindNumber},
	Viscosity155PaS:     {"viscosity155_PaS", "viscosity155_pas", KindNumber},
	PgHigh:              {"pgHigh", "pg_high", KindNumber},
	PgLow:               {"pgLow", "pg_low", KindNumber},
	SofteningPoint:      {"softeningPointC", "softening_point_c", KindNumber},
	Viscosity155CP:      {"viscosity155_cP", "viscosity155_cp", KindNumber},
	Ductility:           {"ductilityCm", "ductility_cm", KindNumber},
	RecoveryPct:         {"recoveryPct", "recovery_pct", KindNumber},
	Jnr32:               {"jnr_3_2", "jnr_3_2", KindNumber},
	DSROriginal82:       {"dsr_original_82C_kPa", "dsr_original_82c_kpa", KindNumber},
	RTFOMassChange:      {"rtfo_massChange_pct", "rtfo_mass_change_pct", KindNumber},
	DSRRTFO82:           {"dsr_rtfo_82C_kPa", "dsr_rtfo_82c_kpa", KindNumber},
	DSRPAV34:            {"dsr_pav_34C_kPa", "dsr_pav_34c_kpa", KindNumber},
	BBRStiffness:        {"bbr_stiffness_minus12C_MPa", "bbr_stiffness_minus12c_mpa", KindNumber},
	BBRMValue:           {"bbr_mValue_minus12C", "bbr_m_value_minus12c", KindNumber},
	MSCRJnr32:           {"mscr_jnr_3_2_kPa_inv", "mscr_jnr_3_2_kpa_inv", KindNumber},
	MSCRRecovery64:      {"mscr_percentRecovery_64C_pct", "mscr_percent_recovery_64c_pct", KindNumber},
	MSCRRecoveryOverall: {"mscr_percentRecoveryOverall_pct", "mscr_percent_recovery_overall_pct", KindNumber},
	TestingLocation:     {"testingLocation", "testing_location", KindText},
	TestReportNumber:    {"testReportNumber", "test_report_number", KindText},
	SampleName:          {"sampleName", "sample_name", KindText},
	TestDate:            {"testDate", "test_date", KindText},
	LabName:             {"labName", "lab_name", KindText},
	DSRData:             {"dsrData", "dsr_data", KindCurve},
}

var byName = func() map[string]Field {
	m := make(map[string]Field, fieldCount)
	for f := Field(0); f < fieldCount; f++ {
		m[schema[f].Name] = f
	}
	return m
}()

// Fields returns every field in schema order.
func Fields() []Field {
	out := make([]Field, fieldCount)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// FieldCount is the number of schema fields.
func FieldCount() int { return int(fieldCount) }

// ParseField looks a field up by its canonical name.
func ParseField(name string) (Field, bool) {
	f, ok := byName[name]
	return f, ok
}

// Valid reports whether f is a schema field.
func (f Field) Valid() bool { return f >= 0 && f < fieldCount }

// Spec returns the schema entry for f.
func (f Field) Spec() FieldSpec { return schema[f] }

func (f Field) Name() string   { return schema[f].Name }
func (f Field) Column() string { return schema[f].Column }
func (f Field) Kind() Kind     { return schema[f].Kind }

func (f Field) String() string {
	if !f.Valid() {
		return "unknown"
	}
	return schema[f].Name
}

// MarshalText encodes the field as its canonical name so that maps keyed by
// Field serialize with readable keys.
func (f Field) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, errUnknownField(int(f))
	}
	return []byte(schema[f].Name), nil
}

func (f *Field) UnmarshalText(b []byte) error {
	v, ok := byName[string(b)]
	if !ok {
		return errUnknownField(string(b))
	}
	*f = v
	return nil
}

func errUnknownField(v any) error {
	return eris.Errorf("model: unknown field %v", v)
}
