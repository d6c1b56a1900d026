package model

import "encoding/json"

// MetricState is the closed set of states a MetricValue can be in. A
// metric never silently substitutes zero for missing input.
type MetricState string

const (
	MetricFinite           MetricState = "finite"
	MetricInsufficientData MetricState = "insufficient-data"
	MetricNotApplicable    MetricState = "not-applicable"
)

// MetricValue reports either a finite number or one of the two sentinels.
// JSON marshaling emits the number, or null plus nothing else for the
// sentinel states — callers needing the reason read State directly;
// JSON consumers only see null for any non-finite metric.
type MetricValue struct {
	State MetricState `json:"-" cbor:"state"`
	Value float64     `json:"-" cbor:"value"`
}

// Finite constructs a MetricValue carrying a computed number.
func Finite(v float64) MetricValue { return MetricValue{State: MetricFinite, Value: v} }

// InsufficientData constructs the insufficient-data sentinel.
func InsufficientData() MetricValue { return MetricValue{State: MetricInsufficientData} }

// NotApplicable constructs the not-applicable sentinel.
func NotApplicable() MetricValue { return MetricValue{State: MetricNotApplicable} }

// IsFinite reports whether the value can be used numerically.
func (m MetricValue) IsFinite() bool { return m.State == MetricFinite }

// MarshalJSON emits the numeric value for finite metrics and null
// otherwise, matching the envelope's "null for insufficient-data" rule.
func (m MetricValue) MarshalJSON() ([]byte, error) {
	if m.State != MetricFinite {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON accepts either a number (finite) or null (insufficient
// data — the specific sentinel is not recoverable from JSON alone).
func (m *MetricValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = InsufficientData()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Finite(v)
	return nil
}
