package sensor

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type wireReading struct {
	ID              string   `json:"id"`
	Type            string   `json:"type"`
	Value           Value    `json:"value"`
	Min             *float64 `json:"min,omitempty"`
	Max             *float64 `json:"max,omitempty"`
	Unit            string   `json:"unit,omitempty"`
	Critical        bool     `json:"critical"`
	Severity        string   `json:"severity,omitempty"`
	RiskProbability *float64 `json:"risk_probability,omitempty"`
}

// MarshalJSON encodes the value as a JSON number, bool, string or null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumeric:
		return json.Marshal(v.Num)
	case KindBoolean:
		return json.Marshal(v.Bool)
	case KindText:
		return json.Marshal(v.Text)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts any JSON scalar; objects and arrays decode to KindNone.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*v = Value{}
		return nil
	}
	*v = valueFromAny(raw)
	return nil
}

// MarshalJSON encodes the reading in the channel wire shape.
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireReading{
		ID:              r.ID,
		Type:            r.Type,
		Value:           r.Value,
		Min:             r.Min,
		Max:             r.Max,
		Unit:            r.Unit,
		Critical:        r.Critical,
		Severity:        r.Severity.String(),
		RiskProbability: r.RiskProbability,
	})
}

// UnmarshalJSON decodes leniently; see FromMap.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*r = Reading{}
		return nil
	}
	m, _ := raw.(map[string]any)
	*r = FromMap(m)
	return nil
}

// FromMap maps a decoded JSON object onto a Reading. Fields of the wrong type
// are treated as absent. The legacy critical flag is derived from severity,
// never taken from the input.
func FromMap(m map[string]any) Reading {
	var r Reading
	if m == nil {
		return r
	}
	r.ID = stringField(m, "id")
	r.Type = stringField(m, "type")
	r.Value = valueFromAny(m["value"])
	r.Min = numberField(m, "min")
	r.Max = numberField(m, "max")
	r.Unit = stringField(m, "unit")
	if s, ok := m["severity"].(string); ok {
		r.Severity, _ = ParseSeverity(s)
	}
	r.RiskProbability = numberField(m, "risk_probability")
	r.Critical = r.Severity == SeverityCritical
	return r
}

// DecodeBatch extracts the "sensors" array from a request or collaborator
// body. A missing field, a non-array field, a non-object body or invalid JSON
// all yield an empty batch; non-object elements map to empty readings.
func DecodeBatch(body []byte) Snapshot {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Snapshot{}
	}
	return DecodeReadings(envelope["sensors"])
}

// DecodeReadings maps an already decoded JSON array onto readings.
func DecodeReadings(raw any) Snapshot {
	items, ok := raw.([]any)
	if !ok {
		return Snapshot{}
	}
	out := make(Snapshot, 0, len(items))
	for _, item := range items {
		m, _ := item.(map[string]any)
		out = append(out, FromMap(m))
	}
	return out
}

// Marshal encodes a snapshot as a JSON array ("[]" when empty).
func Marshal(snap Snapshot) ([]byte, error) {
	if snap == nil {
		snap = Snapshot{}
	}
	return json.Marshal([]Reading(snap))
}

func valueFromAny(raw any) Value {
	switch v := raw.(type) {
	case float64:
		return Number(v)
	case bool:
		return Boolean(v)
	case string:
		return Text(v)
	default:
		return Value{}
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func numberField(m map[string]any, key string) *float64 {
	f, ok := m[key].(float64)
	if !ok {
		return nil
	}
	return &f
}
