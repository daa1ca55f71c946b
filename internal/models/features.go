package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// FeatureCount is the width of the model input
const FeatureCount = 13

// FeatureNames lists model input columns in the order the model was trained on
var FeatureNames = [FeatureCount]string{
	"mon", "tue", "wed", "thu", "fri", "sat", "sun",
	"public_holiday", "public_holiday_previous_day",
	"total_outpatient", "intro_outpatient", "ER", "bed_count",
}

// Feature positions inside a FeatureRecord
const (
	FeatureMon = iota
	FeatureTue
	FeatureWed
	FeatureThu
	FeatureFri
	FeatureSat
	FeatureSun
	FeaturePublicHoliday
	FeaturePublicHolidayPreviousDay
	FeatureTotalOutpatient
	FeatureIntroOutpatient
	FeatureER
	FeatureBedCount
)

// FeatureRecord is the ordered, validated model input
type FeatureRecord [FeatureCount]float64

// Map returns the record keyed by feature name
func (r FeatureRecord) Map() map[string]float64 {
	m := make(map[string]float64, FeatureCount)
	for i, name := range FeatureNames {
		m[name] = r[i]
	}
	return m
}

// MarshalJSON encodes the record as a name -> value object
func (r FeatureRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// UnmarshalJSON decodes and validates a name -> value object
func (r *FeatureRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseFeatureRecord(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Validate checks that flags are 0/1, exactly one weekday is set and counters
// are finite and non-negative
func (r FeatureRecord) Validate() error {
	set := 0
	for i := FeatureMon; i <= FeaturePublicHolidayPreviousDay; i++ {
		if r[i] != 0 && r[i] != 1 {
			return &SchemaError{
				Field:   FeatureNames[i],
				Value:   formatFloat(r[i]),
				Message: fmt.Sprintf("feature %s must be 0 or 1", FeatureNames[i]),
			}
		}
		if i <= FeatureSun && r[i] == 1 {
			set++
		}
	}
	if set != 1 {
		return &SchemaError{
			Field:   "weekday",
			Value:   strconv.Itoa(set),
			Message: fmt.Sprintf("exactly one weekday flag must be set, got %d", set),
		}
	}
	for i := FeatureTotalOutpatient; i <= FeatureBedCount; i++ {
		v := r[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &SchemaError{
				Field:   FeatureNames[i],
				Value:   formatFloat(v),
				Message: fmt.Sprintf("feature %s must be a finite number", FeatureNames[i]),
			}
		}
		if v < 0 {
			return &SchemaError{
				Field:   FeatureNames[i],
				Value:   formatFloat(v),
				Message: fmt.Sprintf("feature %s must be non-negative", FeatureNames[i]),
			}
		}
	}
	return nil
}

// ParseFeatureRecord builds a record from untyped input such as a decoded JSON body.
// Every feature must be present and numeric; extra keys are ignored.
func ParseFeatureRecord(raw map[string]interface{}) (FeatureRecord, error) {
	var r FeatureRecord
	for i, name := range FeatureNames {
		v, ok := raw[name]
		if !ok || v == nil {
			return FeatureRecord{}, &SchemaError{
				Field:   name,
				Message: fmt.Sprintf("missing feature %s", name),
			}
		}
		f, ok := toFloat(v)
		if !ok {
			return FeatureRecord{}, &SchemaError{
				Field:   name,
				Value:   fmt.Sprintf("%v", v),
				Message: fmt.Sprintf("feature %s must be numeric", name),
			}
		}
		r[i] = f
	}
	if err := r.Validate(); err != nil {
		return FeatureRecord{}, err
	}
	return r, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
