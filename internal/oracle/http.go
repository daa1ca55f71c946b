// Package oracle provides the trained-model backends the forecast roller calls.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"admission-forecast/internal/models"
)

// Backend names used in configuration and metrics
const (
	BackendHTTP   = "http"
	BackendLinear = "linear"
)

// HTTPOracle calls a model server exposing POST /api/predict_raw
type HTTPOracle struct {
	baseURL string
	client  *http.Client
}

type predictResponse struct {
	Prediction *float64 `json:"prediction"`
	Error      string   `json:"error"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewHTTPOracle validates baseURL and returns a client for it
func NewHTTPOracle(baseURL string, timeout time.Duration) (*HTTPOracle, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid model url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid model url %q: scheme and host are required", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPOracle{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// CheckHealth fails unless the model server reports a loaded model
func (o *HTTPOracle) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("model server health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server health returned status: %d", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}
	if !health.ModelLoaded {
		return fmt.Errorf("model server at %s has no model loaded", o.baseURL)
	}
	return nil
}

// Predict sends record as a JSON object of the 13 named features
func (o *HTTPOracle) Predict(ctx context.Context, record models.FeatureRecord) (float64, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal model request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/predict_raw", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("model server request failed: %w", err)
	}
	defer resp.Body.Close()

	var out predictResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Error != "" {
			return 0, fmt.Errorf("model server returned status %d: %s", resp.StatusCode, out.Error)
		}
		return 0, fmt.Errorf("model server returned status: %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return 0, fmt.Errorf("failed to decode model response: %w", decodeErr)
	}
	if out.Prediction == nil {
		return 0, fmt.Errorf("model response has no prediction")
	}

	return *out.Prediction, nil
}
