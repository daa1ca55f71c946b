package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"admission-forecast/internal/models"
)

// LinearModel is a linear regression exported as JSON:
//
//	{"intercept": 12.5, "coefficients": {"mon": 1.2, ..., "bed_count": 0.01}}
//
// Every feature needs a coefficient.
type LinearModel struct {
	intercept float64
	weights   models.FeatureRecord
}

type linearArtifact struct {
	Intercept    *float64           `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
}

// LoadLinearModel reads and validates the artifact at path
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}

	var artifact linearArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact %s: %w", path, err)
	}
	if artifact.Intercept == nil {
		return nil, fmt.Errorf("model artifact %s has no intercept", path)
	}

	return NewLinearModel(*artifact.Intercept, artifact.Coefficients)
}

// NewLinearModel checks that coefficients name exactly the model features
func NewLinearModel(intercept float64, coefficients map[string]float64) (*LinearModel, error) {
	known := make(map[string]int, models.FeatureCount)
	for i, name := range models.FeatureNames {
		known[name] = i
	}

	var unknown []string
	for name := range coefficients {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown model coefficients: %s", strings.Join(unknown, ", "))
	}

	m := &LinearModel{intercept: intercept}
	for i, name := range models.FeatureNames {
		w, ok := coefficients[name]
		if !ok {
			return nil, fmt.Errorf("missing model coefficient for %s", name)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("model coefficient %s is not finite", name)
		}
		m.weights[i] = w
	}
	if math.IsNaN(intercept) || math.IsInf(intercept, 0) {
		return nil, fmt.Errorf("model intercept is not finite")
	}
	return m, nil
}

// Predict returns intercept + weights . record
func (m *LinearModel) Predict(_ context.Context, record models.FeatureRecord) (float64, error) {
	sum := m.intercept
	for i, v := range record {
		sum += m.weights[i] * v
	}
	return sum, nil
}
