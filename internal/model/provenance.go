package model

import (
	"encoding/json"
	"time"
)

// Source tags where a field's current value came from.
type Source string

const (
	SourceParser Source = "parser"
	SourceAI     Source = "ai"
	SourceManual Source = "manual"
)

// Valid reports whether s is a known source tag.
func (s Source) Valid() bool {
	switch s {
	case SourceParser, SourceAI, SourceManual:
		return true
	default:
		return false
	}
}

// Provenance maps fields to the source of their current value. It
// serializes as a name-keyed JSON object.
type Provenance map[Field]Source

// Clone returns an independent copy. A nil receiver yields an empty map.
func (p Provenance) Clone() Provenance {
	out := make(Provenance, len(p))
	for f, s := range p {
		out[f] = s
	}
	return out
}

// IsManual reports whether f was set by a reviewer.
func (p Provenance) IsManual(f Field) bool { return p[f] == SourceManual }

// UnmarshalJSON drops unknown field names and source tags instead of
// failing, so stored maps survive schema changes.
func (p *Provenance) UnmarshalJSON(b []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Provenance, len(raw))
	for name, src := range raw {
		f, ok := ParseField(name)
		if !ok || !Source(src).Valid() {
			continue
		}
		out[f] = Source(src)
	}
	*p = out
	return nil
}

// ManualEdit is one entry of a test's correction history.
type ManualEdit struct {
	Field    Field     `json:"field"`
	OldValue Value     `json:"oldValue"`
	NewValue Value     `json:"newValue"`
	EditedAt time.Time `json:"editedAt"`
}
