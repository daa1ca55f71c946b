package oracle

import (
	"context"
	"time"

	"admission-forecast/internal/forecast"
	"admission-forecast/internal/models"
	"admission-forecast/pkg/metrics"
)

// Instrumented records call counts and latency for an oracle
type Instrumented struct {
	next    forecast.Oracle
	backend string
	metrics *metrics.Collector
}

// Instrument wraps next; a nil collector returns next unchanged
func Instrument(next forecast.Oracle, backend string, m *metrics.Collector) forecast.Oracle {
	if m == nil {
		return next
	}
	return &Instrumented{next: next, backend: backend, metrics: m}
}

// Predict forwards to the wrapped oracle
func (i *Instrumented) Predict(ctx context.Context, record models.FeatureRecord) (float64, error) {
	start := time.Now()
	value, err := i.next.Predict(ctx, record)
	i.metrics.RecordOracleCall(i.backend, err, time.Since(start))
	if err == nil {
		i.metrics.PredictedValue.Observe(value)
	}
	return value, err
}

// Config selects an oracle backend
type Config struct {
	Backend string
	URL     string
	Timeout time.Duration
	Path    string
}

// New builds the configured backend and verifies it can serve predictions.
// There is no fallback model: any failure is returned.
func New(ctx context.Context, cfg Config, m *metrics.Collector) (forecast.Oracle, error) {
	switch cfg.Backend {
	case BackendHTTP:
		o, err := NewHTTPOracle(cfg.URL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		if err := o.CheckHealth(ctx); err != nil {
			return nil, err
		}
		return Instrument(o, BackendHTTP, m), nil
	case BackendLinear:
		o, err := LoadLinearModel(cfg.Path)
		if err != nil {
			return nil, err
		}
		return Instrument(o, BackendLinear, m), nil
	default:
		return nil, &models.ValidationError{
			Field:   "model.backend",
			Value:   cfg.Backend,
			Message: "model backend must be http or linear",
		}
	}
}
