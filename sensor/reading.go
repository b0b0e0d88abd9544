// Package sensor defines the canonical sensor reading and snapshot types shared
// by the server write paths, the broadcast channel and the viewers: severity
// classification, the tagged value union, wire encoding and lenient decoding.
package sensor

import (
	"strconv"

	"enginewatch/strutil"
)

// Severity is the classification attached to a reading.
type Severity uint8

const (
	SeverityUnknown  Severity = iota // No explicit severity on the reading
	SeverityNormal                   // "normal"
	SeverityWarning                  // "warning"
	SeverityCritical                 // "critical"
)

// String returns the wire name, or "" for SeverityUnknown.
func (s Severity) String() string {
	switch s {
	case SeverityNormal:
		return "normal"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return ""
	}
}

// ParseSeverity maps a wire string to a Severity. Unrecognized strings map to
// SeverityUnknown with ok=false.
func ParseSeverity(raw string) (Severity, bool) {
	switch strutil.NormalizeLower(raw) {
	case "normal":
		return SeverityNormal, true
	case "warning":
		return SeverityWarning, true
	case "critical":
		return SeverityCritical, true
	default:
		return SeverityUnknown, false
	}
}

// ValueKind tags which member of Value is populated.
type ValueKind uint8

const (
	KindNone ValueKind = iota // absent or null
	KindNumeric
	KindBoolean
	KindText
)

// Value is the observed quantity of a reading. Only one member is meaningful,
// selected by Kind.
type Value struct {
	Kind ValueKind
	Num  float64
	Bool bool
	Text string
}

// Number builds a numeric value.
func Number(v float64) Value { return Value{Kind: KindNumeric, Num: v} }

// Boolean builds a boolean value.
func Boolean(v bool) Value { return Value{Kind: KindBoolean, Bool: v} }

// Text builds a text value.
func Text(v string) Value { return Value{Kind: KindText, Text: v} }

// Numeric reports the numeric member when Kind is KindNumeric.
func (v Value) Numeric() (float64, bool) {
	if v.Kind != KindNumeric {
		return 0, false
	}
	return v.Num, true
}

// String renders the value for display. Absent values render as an em dash.
func (v Value) String() string {
	switch v.Kind {
	case KindNumeric:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindText:
		return v.Text
	default:
		return "—"
	}
}

// Reading is one sensor observation as carried in a snapshot.
type Reading struct {
	ID              string
	Type            string
	Value           Value
	Min             *float64
	Max             *float64
	Unit            string
	Critical        bool // legacy flag; kept equal to Severity == SeverityCritical on write
	Severity        Severity
	RiskProbability *float64
}

// EffectiveSeverity resolves the severity used for display and aggregation:
// explicit severity, then the legacy critical flag, then normal.
func (r Reading) EffectiveSeverity() Severity {
	if r.Severity != SeverityUnknown {
		return r.Severity
	}
	if r.Critical {
		return SeverityCritical
	}
	return SeverityNormal
}

// Key identifies the reading for per-sensor state: id, falling back to type.
// An empty key means the reading cannot be tracked.
func (r Reading) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Type
}

// Snapshot is the full ordered set of readings published at one instant.
// Snapshots are replaced wholesale and must not be mutated once shared.
type Snapshot []Reading

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 { return &v }
