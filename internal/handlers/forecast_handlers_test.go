package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admission-forecast/internal/forecast"
	"admission-forecast/internal/models"
	"admission-forecast/internal/repository"
	"admission-forecast/internal/services"
	"admission-forecast/pkg/logging"
	"admission-forecast/pkg/metrics"
)

const failingOutpatients = 999

// tenthOracle predicts a tenth of total_outpatient and fails on failingOutpatients
func tenthOracle(_ context.Context, r models.FeatureRecord) (float64, error) {
	if r[models.FeatureTotalOutpatient] == failingOutpatients {
		return 0, errors.New("model server unavailable")
	}
	return r[models.FeatureTotalOutpatient] / 10, nil
}

// newYearHolidays treats New Year's Day as a holiday and covers years up to 2030
type newYearHolidays struct{}

func (newYearHolidays) IsPublicHoliday(date time.Time) (bool, error) {
	if date.Year() > 2030 {
		return false, errors.New("year out of range")
	}
	return date.Month() == time.January && date.Day() == 1, nil
}

func (newYearHolidays) HolidayName(date time.Time) string {
	if date.Month() == time.January && date.Day() == 1 {
		return "New Year's Day"
	}
	return ""
}

// memoryLog is an in-memory prediction log keyed by id
type memoryLog struct {
	entries map[int64]*models.PredictionLog
}

func (m *memoryLog) LogPrediction(context.Context, *models.PredictionLog) error { return nil }

func (m *memoryLog) LogSeries(context.Context, []*models.PredictionLog) error { return nil }

func (m *memoryLog) GetLog(_ context.Context, id int64) (*models.PredictionLog, error) {
	entry, ok := m.entries[id]
	if !ok {
		return nil, &repository.NotFoundError{Resource: "prediction_log", ID: strconv.FormatInt(id, 10)}
	}
	return entry, nil
}

func (m *memoryLog) GetHistory(context.Context, repository.HistoryFilter) ([]*models.PredictionLog, int, error) {
	logs := make([]*models.PredictionLog, 0, len(m.entries))
	for _, e := range m.entries {
		logs = append(logs, e)
	}
	return logs, len(logs), nil
}

func (m *memoryLog) SummarizeByWeekday(context.Context, *time.Time, *time.Time) ([]*models.WeekdaySummary, error) {
	return nil, nil
}

func (m *memoryLog) HealthCheck(context.Context) error { return nil }

type testServer struct {
	router  *mux.Router
	metrics *metrics.Collector
}

type serverConfig struct {
	oracle  forecast.Oracle
	repo    repository.PredictionRepository
	timeout time.Duration
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, serverConfig{})
}

func newTestServerWith(t *testing.T, cfg serverConfig) *testServer {
	t.Helper()

	logger := logging.NewStructuredLogger("test", "0", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	collector := metrics.NewCollector("test", prometheus.NewRegistry())

	if cfg.oracle == nil {
		cfg.oracle = forecast.OracleFunc(tenthOracle)
	}

	roller := forecast.NewRoller(cfg.oracle, newYearHolidays{}, forecast.WithMaxDays(62))
	forecastService := services.NewForecastService(roller, nil, nil, logger, collector)
	historyService := services.NewHistoryService(cfg.repo, logger, collector)

	handler := NewForecastHandler(forecastService, historyService, Options{
		Location:       time.FixedZone("JST", 9*60*60),
		ModelBackend:   "linear",
		RequestTimeout: cfg.timeout,
		AllowedOrigins: []string{"http://localhost:3000"},
		// 2025-01-06 21:00 UTC is Tuesday 2025-01-07 in JST
		Now: func() time.Time { return time.Date(2025, 1, 6, 21, 0, 0, 0, time.UTC) },
	}, logger, collector)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return &testServer{router: router, metrics: collector}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestPredict(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/predict", `{"date":"2025-01-06"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PointResponse
	decode(t, rec, &resp)
	assert.Equal(t, "2025-01-06", resp.Date)
	assert.Equal(t, "Monday", resp.Day)
	assert.Equal(t, 0, resp.WeekdayIndex)
	assert.Equal(t, "winter", resp.Season)
	assert.Equal(t, 1, resp.Features.Mon)
	assert.Equal(t, 550.0, resp.Features.TotalOutpatient)
	assert.Equal(t, 22.0, resp.Features.IntroOutpatient)
	assert.Equal(t, 16.8, resp.Features.ER)
	assert.Equal(t, 280.0, resp.Features.BedCount)
	assert.Equal(t, 55.0, resp.Prediction)
	assert.Empty(t, resp.BusynessLevel)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.APIRequestsTotal.WithLabelValues("/api/predict", "POST", "200")))
}

func TestPredict_EmptyBodyUsesTodayInZone(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/predict", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PointResponse
	decode(t, rec, &resp)
	assert.Equal(t, "2025-01-07", resp.Date)
	assert.Equal(t, "Tuesday", resp.Day)
	assert.Equal(t, 50.0, resp.Prediction)
}

func TestPredict_Holiday(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/predict", `{"date":"2025-01-02","total_outpatient":1000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PointResponse
	decode(t, rec, &resp)
	assert.False(t, resp.PublicHoliday)
	assert.True(t, resp.PublicHolidayPreviousDay)
	assert.Equal(t, 1, resp.Features.PublicHolidayPreviousDay)
	assert.Equal(t, 900.0, resp.Features.TotalOutpatient)
	assert.Empty(t, resp.HolidayName)

	rec = s.do(t, http.MethodPost, "/api/predict", `{"date":"2025-01-01"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.True(t, resp.PublicHoliday)
	assert.Equal(t, "New Year's Day", resp.HolidayName)
}

func TestPredict_Errors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		code  int
		field string
		date  string
	}{
		{"malformed json", `{"date":`, http.StatusBadRequest, "body", ""},
		{"bad date", `{"date":"06/01/2025"}`, http.StatusBadRequest, "date", ""},
		{"negative baseline", `{"date":"2025-01-06","ER":-1}`, http.StatusBadRequest, "ER", ""},
		{"holiday calendar exhausted", `{"date":"2031-01-01"}`, http.StatusUnprocessableEntity, "", "2031-01-01"},
		{"oracle failure", `{"date":"2025-01-08","total_outpatient":999}`, http.StatusBadGateway, "", "2025-01-08"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, http.MethodPost, "/api/predict", tt.body)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())

			var resp ErrorResponse
			decode(t, rec, &resp)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.field, resp.Field)
			assert.Equal(t, tt.date, resp.Date)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestPredictWeek(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/predict_week", `{"start_date":"2025-01-06"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SeriesResponse
	decode(t, rec, &resp)
	assert.Equal(t, models.ModeDays, resp.Mode)
	assert.Equal(t, "2025-01-06", resp.StartDate)
	assert.Equal(t, "2025-01-12", resp.EndDate)
	assert.Equal(t, DefaultNumDays, resp.NumDays)
	require.Len(t, resp.Points, 7)
	assert.Equal(t, "Sunday", resp.Points[6].Day)
	assert.Equal(t, 15.0, resp.Points[6].Prediction)
	assert.Equal(t, 15.0, resp.Summary.Min)
	assert.Equal(t, 55.0, resp.Summary.Max)
	for _, p := range resp.Points {
		assert.NotEmpty(t, p.BusynessLevel)
	}

	// the baseline echoes the request field names
	var raw map[string]json.RawMessage
	decode(t, rec, &raw)
	var baseline map[string]int
	require.NoError(t, json.Unmarshal(raw["baseline"], &baseline))
	assert.Equal(t, map[string]int{
		"total_outpatient": DefaultTotalOutpatient,
		"intro_outpatient": DefaultIntroOutpatient,
		"ER":               DefaultERCount,
		"bed_count":        DefaultBedCount,
	}, baseline)
}

func TestPredictWeek_InvalidNumDays(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{`{"num_days":0}`, `{"num_days":-2}`, `{"num_days":63}`} {
		rec := s.do(t, http.MethodPost, "/api/predict_week", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestPredictWeek_OracleFailureReturnsNoPartialSeries(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/predict_week", `{"start_date":"2025-01-06","total_outpatient":999}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp ErrorResponse
	decode(t, rec, &resp)
	// Tuesday is the first day whose multiplier keeps 999 unchanged
	assert.Equal(t, "2025-01-07", resp.Date)
	assert.NotContains(t, rec.Body.String(), "predictions")
}

func TestForecastMonth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/forecast/month", `{"year":2024,"month":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SeriesResponse
	decode(t, rec, &resp)
	assert.Equal(t, models.ModeMonth, resp.Mode)
	assert.Equal(t, 29, resp.NumDays)
	assert.Equal(t, "2024-02-29", resp.EndDate)

	rec = s.do(t, http.MethodPost, "/api/forecast/month", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, "2025-01-01", resp.StartDate)
	assert.Equal(t, 31, resp.NumDays)
	assert.True(t, resp.Points[0].PublicHoliday)

	rec = s.do(t, http.MethodPost, "/api/forecast/month", `{"year":2025,"month":13}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForecastMonth_RequestTimeout(t *testing.T) {
	var calls int64
	// the model answers only once the request deadline has passed
	slow := forecast.OracleFunc(func(ctx context.Context, _ models.FeatureRecord) (float64, error) {
		atomic.AddInt64(&calls, 1)
		<-ctx.Done()
		return 0, errors.New("model server: " + ctx.Err().Error())
	})
	s := newTestServerWith(t, serverConfig{oracle: slow, timeout: 20 * time.Millisecond})

	rec := s.do(t, http.MethodPost, "/api/forecast/month", `{"year":2025,"month":1}`)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	var resp ErrorResponse
	decode(t, rec, &resp)
	assert.Equal(t, http.StatusGatewayTimeout, resp.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.APIErrorsTotal.WithLabelValues("timeout", "/api/forecast/month")))
}

func TestForecastMonth_OracleCallsCarryDeadline(t *testing.T) {
	var calls, withDeadline int64
	oracle := forecast.OracleFunc(func(ctx context.Context, r models.FeatureRecord) (float64, error) {
		atomic.AddInt64(&calls, 1)
		if _, ok := ctx.Deadline(); ok {
			atomic.AddInt64(&withDeadline, 1)
		}
		return tenthOracle(ctx, r)
	})
	s := newTestServerWith(t, serverConfig{oracle: oracle, timeout: time.Minute})

	rec := s.do(t, http.MethodPost, "/api/forecast/month", `{"year":2025,"month":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(31), atomic.LoadInt64(&calls))
	assert.Equal(t, int64(31), atomic.LoadInt64(&withDeadline))
}

func TestForecastMonth_CSV(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/forecast/month?format=csv", `{"year":2025,"month":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "forecast_20250201_20250228.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 29)
	assert.True(t, strings.HasPrefix(lines[1], "2025-02-01,sat,"))
}

func TestChart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/forecast/chart?start_date=2025-01-06&num_days=14", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Admissions forecast 2025-01-06 to 2025-01-19")

	rec = s.do(t, http.MethodGet, "/api/forecast/chart?year=2025&month=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Admissions forecast 2025-03")

	rec = s.do(t, http.MethodGet, "/api/forecast/chart?num_days=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictRaw(t *testing.T) {
	s := newTestServer(t)

	body := `{"mon":0,"tue":0,"wed":0,"thu":0,"fri":0,"sat":1,"sun":0,
		"public_holiday":0,"public_holiday_previous_day":0,
		"total_outpatient":250,"intro_outpatient":10,"ER":12,"bed_count":280,"note":"ignored"}`
	rec := s.do(t, http.MethodPost, "/api/predict_raw", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Prediction    float64            `json:"prediction"`
		InputFeatures map[string]float64 `json:"input_features"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 25.0, resp.Prediction)
	assert.Equal(t, 1.0, resp.InputFeatures["sat"])
	assert.Len(t, resp.InputFeatures, models.FeatureCount)
}

func TestPredictRaw_SchemaErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing feature", `{"mon":1}`, "tue"},
		{"non numeric", `{"mon":"yes","tue":0,"wed":0,"thu":0,"fri":0,"sat":0,"sun":0,"public_holiday":0,"public_holiday_previous_day":0,"total_outpatient":1,"intro_outpatient":1,"ER":1,"bed_count":1}`, "mon"},
		{"not an object", `[1,2,3]`, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, http.MethodPost, "/api/predict_raw", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			var resp ErrorResponse
			decode(t, rec, &resp)
			assert.Equal(t, tt.field, resp.Field)
		})
	}
}

func TestScenarios(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/scenarios", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Scenarios []services.Scenario `json:"scenarios"`
	}
	decode(t, rec, &list)
	assert.Len(t, list.Scenarios, 5)

	rec = s.do(t, http.MethodPost, "/api/scenarios/compare", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cmp struct {
		Predictions []ScenarioResponse `json:"predictions"`
		Count       int                `json:"count"`
	}
	decode(t, rec, &cmp)
	assert.Equal(t, 5, cmp.Count)
	assert.Equal(t, "Busy Monday", cmp.Predictions[0].Name)
	assert.Equal(t, 80.0, cmp.Predictions[0].Prediction)

	rec = s.do(t, http.MethodPost, "/api/scenarios/compare",
		`{"scenarios":[{"name":"Custom","day_of_week":"fri","total_outpatient":420,"intro_outpatient":10,"ER":9,"bed_count":300}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &cmp)
	require.Equal(t, 1, cmp.Count)
	assert.Equal(t, 42.0, cmp.Predictions[0].Prediction)

	rec = s.do(t, http.MethodPost, "/api/scenarios/compare", `{"scenarios":[{"day_of_week":"funday"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory_DatabaseDisabled(t *testing.T) {
	s := newTestServer(t)

	for _, target := range []string{"/api/history", "/api/history/summary"} {
		rec := s.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}

	rec := s.do(t, http.MethodGet, "/api/history?kind=weekly", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/history/summary?start_date=2025-02-01&end_date=2025-01-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEntry(t *testing.T) {
	entry := &models.PredictionLog{
		ID:             7,
		PredictionDate: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		PredictedValue: 55,
		DayOfWeek:      "mon",
		RequestKind:    services.KindSingle,
	}
	s := newTestServerWith(t, serverConfig{repo: &memoryLog{entries: map[int64]*models.PredictionLog{7: entry}}})

	rec := s.do(t, http.MethodGet, "/api/history/7", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got models.PredictionLog
	decode(t, rec, &got)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "mon", got.DayOfWeek)
	assert.Equal(t, 55.0, got.PredictedValue)

	rec = s.do(t, http.MethodGet, "/api/history/8", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/history/0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = newTestServer(t).do(t, http.MethodGet, "/api/history/7", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decode(t, rec, &resp)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "linear", resp["model_backend"])
	assert.Equal(t, "disabled", resp["database"])
	assert.Equal(t, "disabled", resp["cache"])
}

func TestMiddleware(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/predict", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set(requestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.ActiveRequests))
}

func TestDocs(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/docs/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var spec map[string]interface{}
	decode(t, rec, &spec)
	paths := spec["paths"].(map[string]interface{})
	assert.Contains(t, paths, "/api/predict")
	assert.Contains(t, paths, "/api/predict_raw")

	rec = s.do(t, http.MethodGet, "/api/docs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/docs/openapi.json")
}
