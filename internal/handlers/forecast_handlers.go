package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"admission-forecast/internal/charts"
	"admission-forecast/internal/models"
	"admission-forecast/internal/services"
	"admission-forecast/pkg/logging"
	"admission-forecast/pkg/metrics"
)

// Baseline used when a request omits a counter
const (
	DefaultTotalOutpatient = 500
	DefaultIntroOutpatient = 20
	DefaultERCount         = 15
	DefaultBedCount        = 280
	DefaultNumDays         = 7
)

const maxBodyBytes = 1 << 20

// HealthChecker is implemented by optional backing stores
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Options configures a ForecastHandler
type Options struct {
	// Location defines "today" for requests without a date
	Location *time.Location
	// ModelBackend is reported by /health
	ModelBackend string
	// Cache is checked by /health when set
	Cache HealthChecker
	// RequestTimeout bounds each forecast call; zero means no limit
	RequestTimeout time.Duration
	// AllowedOrigins lists CORS origins; "*" allows any
	AllowedOrigins []string
	// Now overrides the clock in tests
	Now func() time.Time
}

// ForecastHandler handles forecast API endpoints
type ForecastHandler struct {
	forecastService *services.ForecastService
	historyService  *services.HistoryService
	opts            Options
	logger          *logging.StructuredLogger
	metrics         *metrics.Collector
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(
	forecastService *services.ForecastService,
	historyService *services.HistoryService,
	opts Options,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ForecastHandler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ForecastHandler{
		forecastService: forecastService,
		historyService:  historyService,
		opts:            opts,
		logger:          logger,
		metrics:         metricsCollector,
	}
}

// baselineRequest carries the optional operational counters
type baselineRequest struct {
	TotalOutpatient *int `json:"total_outpatient"`
	IntroOutpatient *int `json:"intro_outpatient"`
	ER              *int `json:"ER"`
	BedCount        *int `json:"bed_count"`
}

func (b baselineRequest) baseline() models.OperationalBaseline {
	return models.OperationalBaseline{
		TotalOutpatient: intOr(b.TotalOutpatient, DefaultTotalOutpatient),
		IntroOutpatient: intOr(b.IntroOutpatient, DefaultIntroOutpatient),
		ERCount:         intOr(b.ER, DefaultERCount),
		BedCount:        intOr(b.BedCount, DefaultBedCount),
	}
}

// PredictRequest is the body of POST /api/predict
type PredictRequest struct {
	Date *string `json:"date"`
	baselineRequest
}

// PredictWeekRequest is the body of POST /api/predict_week
type PredictWeekRequest struct {
	StartDate *string `json:"start_date"`
	NumDays   *int    `json:"num_days"`
	baselineRequest
}

// MonthRequest is the body of POST /api/forecast/month
type MonthRequest struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
	baselineRequest
}

// CompareRequest is the body of POST /api/scenarios/compare
type CompareRequest struct {
	Date      *string             `json:"date"`
	Scenarios []services.Scenario `json:"scenarios"`
}

// RawPredictResponse is returned by POST /api/predict_raw
type RawPredictResponse struct {
	Prediction    float64              `json:"prediction"`
	InputFeatures models.FeatureRecord `json:"input_features"`
}

// ScenarioResponse is one compared scenario
type ScenarioResponse struct {
	Name       string               `json:"scenario_name"`
	Scenario   services.Scenario    `json:"scenario"`
	Prediction float64              `json:"prediction"`
	Features   models.FeatureRecord `json:"input_features"`
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// today returns the current calendar date in the configured zone as midnight UTC
func (h *ForecastHandler) today() time.Time {
	y, m, d := h.opts.Now().In(h.opts.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (h *ForecastHandler) parseDate(field string, value *string) (time.Time, error) {
	if value == nil || *value == "" {
		return h.today(), nil
	}
	d, err := time.Parse(models.DateLayout, *value)
	if err != nil {
		return time.Time{}, &models.ValidationError{
			Field:   field,
			Value:   *value,
			Message: fmt.Sprintf("invalid %s format, expected YYYY-MM-DD", field),
		}
	}
	return d, nil
}

// decodeBody decodes an optional JSON body into dst; an empty body leaves dst untouched
func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return &models.ValidationError{Field: "body", Message: "failed to read request body"}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &models.ValidationError{Field: "body", Message: "invalid JSON body: " + err.Error()}
	}
	return nil
}

// forecastContext bounds a forecast call by the configured request timeout
func (h *ForecastHandler) forecastContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.opts.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.opts.RequestTimeout)
}

func wantsCSV(r *http.Request) bool {
	return r.URL.Query().Get("format") == "csv"
}

// Predict handles POST /api/predict
func (h *ForecastHandler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.forecastContext(r)
	defer cancel()
	defer h.timer("/api/predict").ObserveDuration()

	var req PredictRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	date, err := h.parseDate("date", req.Date)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	point, err := h.forecastService.PredictDay(ctx, req.baseline(), date)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	h.metrics.RecordAPIRequest("/api/predict", "POST", "200")
	h.sendJSON(w, newPointResponse(*point), http.StatusOK)
}

// PredictWeek handles POST /api/predict_week
func (h *ForecastHandler) PredictWeek(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.forecastContext(r)
	defer cancel()
	defer h.timer("/api/predict_week").ObserveDuration()

	var req PredictWeekRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	start, err := h.parseDate("start_date", req.StartDate)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	series, err := h.forecastService.ForecastDays(ctx, req.baseline(), start, intOr(req.NumDays, DefaultNumDays))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	h.sendSeries(w, r, "/api/predict_week", series)
}

// ForecastMonth handles POST /api/forecast/month
func (h *ForecastHandler) ForecastMonth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.forecastContext(r)
	defer cancel()
	defer h.timer("/api/forecast/month").ObserveDuration()

	var req MonthRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	today := h.today()
	year := intOr(req.Year, today.Year())
	month := intOr(req.Month, int(today.Month()))

	series, err := h.forecastService.ForecastMonth(ctx, req.baseline(), year, month)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	h.sendSeries(w, r, "/api/forecast/month", series)
}

func (h *ForecastHandler) sendSeries(w http.ResponseWriter, r *http.Request, endpoint string, series *models.ForecastSeries) {
	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=forecast_%s_%s.csv",
			series.StartDate.Format("20060102"), series.EndDate.Format("20060102")))
		if err := charts.WriteCSV(w, series); err != nil {
			h.logger.Error(r.Context(), "[API_CSV_ERROR] Failed to write CSV", logging.Fields{
				"endpoint": endpoint,
			}, err)
			return
		}
		h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, newSeriesResponse(series), http.StatusOK)
}

// Chart handles GET /api/forecast/chart
func (h *ForecastHandler) Chart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.forecastContext(r)
	defer cancel()
	defer h.timer("/api/forecast/chart").ObserveDuration()

	q := r.URL.Query()
	base, err := baselineFromQuery(q.Get)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	var series *models.ForecastSeries
	if q.Get("year") != "" || q.Get("month") != "" {
		year, err := queryInt(q.Get, "year", h.today().Year())
		if err != nil {
			h.sendServiceError(w, r, err)
			return
		}
		month, err := queryInt(q.Get, "month", int(h.today().Month()))
		if err != nil {
			h.sendServiceError(w, r, err)
			return
		}
		series, err = h.forecastService.ForecastMonth(ctx, base, year, month)
		if err != nil {
			h.sendServiceError(w, r, err)
			return
		}
	} else {
		startStr := q.Get("start_date")
		start, err := h.parseDate("start_date", &startStr)
		if err != nil {
			h.sendServiceError(w, r, err)
			return
		}
		numDays, err := queryInt(q.Get, "num_days", DefaultNumDays)
		if err != nil {
			h.sendServiceError(w, r, err)
			return
		}
		series, err = h.forecastService.ForecastDays(ctx, base, start, numDays)
		if err != nil {
			h.sendServiceError(w, r, err)
			return
		}
	}

	var buf bytes.Buffer
	if err := charts.Render(&buf, series); err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	h.metrics.RecordAPIRequest("/api/forecast/chart", "GET", "200")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func queryInt(get func(string) string, name string, def int) (int, error) {
	raw := get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &models.ValidationError{
			Field:   name,
			Value:   raw,
			Message: fmt.Sprintf("%s must be an integer", name),
		}
	}
	return v, nil
}

func baselineFromQuery(get func(string) string) (models.OperationalBaseline, error) {
	var err error
	var b models.OperationalBaseline
	if b.TotalOutpatient, err = queryInt(get, "total_outpatient", DefaultTotalOutpatient); err != nil {
		return b, err
	}
	if b.IntroOutpatient, err = queryInt(get, "intro_outpatient", DefaultIntroOutpatient); err != nil {
		return b, err
	}
	if b.ERCount, err = queryInt(get, "ER", DefaultERCount); err != nil {
		return b, err
	}
	if b.BedCount, err = queryInt(get, "bed_count", DefaultBedCount); err != nil {
		return b, err
	}
	return b, nil
}

// PredictRaw handles POST /api/predict_raw
func (h *ForecastHandler) PredictRaw(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.forecastContext(r)
	defer cancel()
	defer h.timer("/api/predict_raw").ObserveDuration()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		h.sendServiceError(w, r, &models.ValidationError{Field: "body", Message: "request body must be a JSON object of features"})
		return
	}

	record, err := models.ParseFeatureRecord(raw)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	value, err := h.forecastService.PredictRaw(ctx, h.today(), record)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	h.metrics.RecordAPIRequest("/api/predict_raw", "POST", "200")
	h.sendJSON(w, RawPredictResponse{Prediction: value, InputFeatures: record}, http.StatusOK)
}

// ListScenarios handles GET /api/scenarios
func (h *ForecastHandler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	defer h.timer("/api/scenarios").ObserveDuration()

	h.metrics.RecordAPIRequest("/api/scenarios", "GET", "200")
	h.sendJSON(w, map[string]interface{}{
		"scenarios": services.DefaultScenarios(),
	}, http.StatusOK)
}

// CompareScenarios handles POST /api/scenarios/compare
func (h *ForecastHandler) CompareScenarios(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.forecastContext(r)
	defer cancel()
	defer h.timer("/api/scenarios/compare").ObserveDuration()

	var req CompareRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	date, err := h.parseDate("date", req.Date)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	results, err := h.forecastService.CompareScenarios(ctx, date, req.Scenarios)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	out := make([]ScenarioResponse, len(results))
	for i, res := range results {
		out[i] = ScenarioResponse{
			Name:       res.Scenario.Name,
			Scenario:   res.Scenario,
			Prediction: round2(res.Prediction),
			Features:   res.Features,
		}
	}

	h.metrics.RecordAPIRequest("/api/scenarios/compare", "POST", "200")
	h.sendJSON(w, map[string]interface{}{
		"predictions": out,
		"count":       len(out),
	}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *ForecastHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":        "healthy",
		"timestamp":     h.opts.Now().UTC().Format(time.RFC3339),
		"model_backend": h.opts.ModelBackend,
		"database":      "disabled",
		"cache":         "disabled",
	}
	code := http.StatusOK

	if h.historyService.Available() {
		status["database"] = "ok"
		if err := h.historyService.HealthCheck(ctx); err != nil {
			status["database"] = "unavailable"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if h.opts.Cache != nil {
		status["cache"] = "ok"
		if err := h.opts.Cache.HealthCheck(ctx); err != nil {
			status["cache"] = "unavailable"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{
		"status": status["status"],
	})
	h.sendJSON(w, status, code)
}

// RegisterRoutes registers all forecast API routes
func (h *ForecastHandler) RegisterRoutes(router *mux.Router) {
	router.Use(requestIDMiddleware, h.activeRequestsMiddleware, h.corsMiddleware)

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/predict", h.Predict).Methods("POST", "OPTIONS")
	api.HandleFunc("/predict_week", h.PredictWeek).Methods("POST", "OPTIONS")
	api.HandleFunc("/predict_raw", h.PredictRaw).Methods("POST", "OPTIONS")
	api.HandleFunc("/forecast/month", h.ForecastMonth).Methods("POST", "OPTIONS")
	api.HandleFunc("/forecast/chart", h.Chart).Methods("GET")
	api.HandleFunc("/scenarios", h.ListScenarios).Methods("GET")
	api.HandleFunc("/scenarios/compare", h.CompareScenarios).Methods("POST", "OPTIONS")
	api.HandleFunc("/history", h.GetHistory).Methods("GET")
	api.HandleFunc("/history/summary", h.GetHistorySummary).Methods("GET")
	api.HandleFunc("/history/{id:[0-9]+}", h.GetHistoryEntry).Methods("GET")
	api.HandleFunc("/docs", SwaggerUI).Methods("GET")
	api.HandleFunc("/docs/openapi.json", OpenAPISpec).Methods("GET")
}

