package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admission-forecast/internal/models"
	"admission-forecast/pkg/metrics"
)

var mondayRecord = models.FeatureRecord{1, 0, 0, 0, 0, 0, 0, 0, 0, 550, 22, 16.8, 280}

func modelServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "model_loaded": true})
	})
	mux.HandleFunc("/api/predict_raw", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPOracle_Predict(t *testing.T) {
	var received map[string]float64
	srv := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(map[string]interface{}{"prediction": 42.5})
	})

	o, err := NewHTTPOracle(srv.URL+"/", time.Second)
	require.NoError(t, err)
	require.NoError(t, o.CheckHealth(context.Background()))

	value, err := o.Predict(context.Background(), mondayRecord)
	require.NoError(t, err)
	assert.Equal(t, 42.5, value)

	assert.Len(t, received, models.FeatureCount)
	assert.Equal(t, 1.0, received["mon"])
	assert.Equal(t, 16.8, received["ER"])
}

func TestHTTPOracle_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantMsg string
	}{
		{
			name: "server error with message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{"error": "model not loaded"})
			},
			wantMsg: "model not loaded",
		},
		{
			name: "bad gateway without body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantMsg: "502",
		},
		{
			name: "missing prediction",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"message":"ok"}`))
			},
			wantMsg: "no prediction",
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"prediction":`))
			},
			wantMsg: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := modelServer(t, tt.handler)
			o, err := NewHTTPOracle(srv.URL, time.Second)
			require.NoError(t, err)

			_, err = o.Predict(context.Background(), mondayRecord)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestNewHTTPOracle_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost:5001", "ftp://models", "http://"} {
		_, err := NewHTTPOracle(u, time.Second)
		assert.Error(t, err, u)
	}
}

func TestHTTPOracle_CheckHealthModelNotLoaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "model_loaded": false})
	}))
	defer srv.Close()

	o, err := NewHTTPOracle(srv.URL, time.Second)
	require.NoError(t, err)
	assert.Error(t, o.CheckHealth(context.Background()))
}

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fullCoefficients() map[string]float64 {
	coefficients := make(map[string]float64, models.FeatureCount)
	for _, name := range models.FeatureNames {
		coefficients[name] = 0
	}
	coefficients["mon"] = 5
	coefficients["total_outpatient"] = 0.1
	coefficients["ER"] = 1
	return coefficients
}

func TestLinearModel_Predict(t *testing.T) {
	body, err := json.Marshal(map[string]interface{}{
		"intercept":    2,
		"coefficients": fullCoefficients(),
	})
	require.NoError(t, err)

	m, err := LoadLinearModel(writeArtifact(t, string(body)))
	require.NoError(t, err)

	value, err := m.Predict(context.Background(), mondayRecord)
	require.NoError(t, err)
	// 2 + 5*1 + 0.1*550 + 1*16.8
	assert.InDelta(t, 78.8, value, 1e-9)
}

func TestLoadLinearModel_FailsFast(t *testing.T) {
	missing := fullCoefficients()
	delete(missing, "bed_count")
	unknown := fullCoefficients()
	unknown["weather"] = 1

	encode := func(v interface{}) string {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return string(b)
	}

	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"missing coefficient", encode(map[string]interface{}{"intercept": 1, "coefficients": missing}), "bed_count"},
		{"unknown coefficient", encode(map[string]interface{}{"intercept": 1, "coefficients": unknown}), "weather"},
		{"missing intercept", encode(map[string]interface{}{"coefficients": fullCoefficients()}), "intercept"},
		{"not json", "joblib", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadLinearModel(writeArtifact(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}

	_, err := LoadLinearModel(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestNew_Backends(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg)

	srv := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"prediction": 7})
	})

	o, err := New(context.Background(), Config{Backend: BackendHTTP, URL: srv.URL, Timeout: time.Second}, collector)
	require.NoError(t, err)

	value, err := o.Predict(context.Background(), mondayRecord)
	require.NoError(t, err)
	assert.Equal(t, 7.0, value)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.OracleCallsTotal.WithLabelValues(BackendHTTP, "success")))

	_, err = New(context.Background(), Config{Backend: "forest"}, collector)
	var vErr *models.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = New(context.Background(), Config{Backend: BackendLinear, Path: "/nonexistent/model.json"}, collector)
	assert.Error(t, err)
}
