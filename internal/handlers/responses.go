package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"admission-forecast/internal/models"
	"admission-forecast/internal/repository"
	"admission-forecast/internal/services"
	"admission-forecast/pkg/logging"
	"admission-forecast/pkg/metrics"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	Field   string `json:"field,omitempty"`
	Date    string `json:"date,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// PointResponse is one forecast day on the wire
type PointResponse struct {
	Date                     string           `json:"date"`
	Day                      string           `json:"day"`
	WeekdayIndex             int              `json:"weekday_index"`
	Season                   string           `json:"season"`
	PublicHoliday            bool             `json:"public_holiday"`
	PublicHolidayPreviousDay bool             `json:"public_holiday_previous_day"`
	HolidayName              string           `json:"holiday_name,omitempty"`
	Features                 FeaturesResponse `json:"features"`
	Prediction               float64          `json:"prediction"`
	BusynessLevel            string           `json:"busyness_level,omitempty"`
}

// FeaturesResponse is the adjusted model input, flattened and rounded
type FeaturesResponse struct {
	Mon                      int     `json:"mon"`
	Tue                      int     `json:"tue"`
	Wed                      int     `json:"wed"`
	Thu                      int     `json:"thu"`
	Fri                      int     `json:"fri"`
	Sat                      int     `json:"sat"`
	Sun                      int     `json:"sun"`
	PublicHoliday            int     `json:"public_holiday"`
	PublicHolidayPreviousDay int     `json:"public_holiday_previous_day"`
	TotalOutpatient          float64 `json:"total_outpatient"`
	IntroOutpatient          float64 `json:"intro_outpatient"`
	ER                       float64 `json:"ER"`
	BedCount                 float64 `json:"bed_count"`
}

// SummaryResponse holds rounded series statistics
type SummaryResponse struct {
	Count       int              `json:"count"`
	Min         float64          `json:"min"`
	Max         float64          `json:"max"`
	Mean        float64          `json:"mean"`
	WeekdayMean *float64         `json:"weekday_mean"`
	WeekendMean *float64         `json:"weekend_mean"`
	Quartiles   models.Quartiles `json:"quartiles"`
	Trend       []float64        `json:"trend,omitempty"`
	TrendWindow int              `json:"trend_window,omitempty"`
}

// SeriesResponse is a rollout on the wire
type SeriesResponse struct {
	Mode      string                     `json:"mode"`
	StartDate string                     `json:"start_date"`
	EndDate   string                     `json:"end_date"`
	NumDays   int                        `json:"num_days"`
	Baseline  models.OperationalBaseline `json:"baseline"`
	Points    []PointResponse            `json:"predictions"`
	Summary   SummaryResponse            `json:"summary"`
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}

func newPointResponse(p models.ForecastPoint) PointResponse {
	a := p.AdjustedFeatures
	return PointResponse{
		Date:                     p.Date.Format(models.DateLayout),
		Day:                      p.DayClassification.WeekdayIndex.String(),
		WeekdayIndex:             int(p.DayClassification.WeekdayIndex),
		Season:                   models.Season(p.Date),
		PublicHoliday:            p.DayClassification.IsPublicHoliday,
		PublicHolidayPreviousDay: p.DayClassification.IsPreviousDayHoliday,
		HolidayName:              p.DayClassification.HolidayName,
		Features: FeaturesResponse{
			Mon:                      a.OneHot.Mon,
			Tue:                      a.OneHot.Tue,
			Wed:                      a.OneHot.Wed,
			Thu:                      a.OneHot.Thu,
			Fri:                      a.OneHot.Fri,
			Sat:                      a.OneHot.Sat,
			Sun:                      a.OneHot.Sun,
			PublicHoliday:            a.PublicHoliday,
			PublicHolidayPreviousDay: a.PublicHolidayPreviousDay,
			TotalOutpatient:          round2(a.TotalOutpatient),
			IntroOutpatient:          round2(a.IntroOutpatient),
			ER:                       round2(a.ER),
			BedCount:                 round2(a.BedCount),
		},
		Prediction:    round2(p.PredictedValue),
		BusynessLevel: string(p.BusynessLevel),
	}
}

func newSeriesResponse(s *models.ForecastSeries) SeriesResponse {
	points := make([]PointResponse, len(s.Points))
	for i, p := range s.Points {
		points[i] = newPointResponse(p)
	}

	var trend []float64
	if len(s.Summary.Trend) > 0 {
		trend = make([]float64, len(s.Summary.Trend))
		for i, v := range s.Summary.Trend {
			trend[i] = round2(v)
		}
	}

	return SeriesResponse{
		Mode:      s.Mode,
		StartDate: s.StartDate.Format(models.DateLayout),
		EndDate:   s.EndDate.Format(models.DateLayout),
		NumDays:   len(s.Points),
		Baseline:  s.Baseline,
		Points:    points,
		Summary: SummaryResponse{
			Count:       s.Summary.Count,
			Min:         round2(s.Summary.Min),
			Max:         round2(s.Summary.Max),
			Mean:        round2(s.Summary.Mean),
			WeekdayMean: round2Ptr(s.Summary.WeekdayMean),
			WeekendMean: round2Ptr(s.Summary.WeekendMean),
			Quartiles: models.Quartiles{
				Q1: round2(s.Summary.Quartiles.Q1),
				Q2: round2(s.Summary.Quartiles.Q2),
				Q3: round2(s.Summary.Quartiles.Q3),
			},
			Trend:       trend,
			TrendWindow: s.Summary.TrendWindow,
		},
	}
}

// sendJSON sends a JSON response
func (h *ForecastHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *ForecastHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.sendErrorResponse(w, r, ErrorResponse{Message: message}, statusCode)
}

func (h *ForecastHandler) sendErrorResponse(w http.ResponseWriter, r *http.Request, resp ErrorResponse, statusCode int) {
	h.metrics.RecordAPIRequest(routeName(r), r.Method, strconv.Itoa(statusCode))

	resp.Error = http.StatusText(statusCode)
	resp.Code = statusCode
	h.sendJSON(w, resp, statusCode)
}

// sendServiceError maps pipeline errors onto HTTP statuses
func (h *ForecastHandler) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	endpoint := routeName(r)

	var (
		validationErr *models.ValidationError
		schemaErr     *models.SchemaError
		holidayErr    *models.HolidaySourceError
		predErr       *models.PredictionError
		notFoundErr   *repository.NotFoundError
	)

	switch {
	case errors.As(err, &validationErr):
		h.metrics.RecordAPIError("validation_error", endpoint)
		h.sendErrorResponse(w, r, ErrorResponse{Message: validationErr.Message, Field: validationErr.Field}, http.StatusBadRequest)
	case errors.As(err, &schemaErr):
		h.metrics.RecordAPIError("schema_error", endpoint)
		h.sendErrorResponse(w, r, ErrorResponse{Message: schemaErr.Error(), Field: schemaErr.Field}, http.StatusBadRequest)
	case errors.As(err, &holidayErr):
		h.metrics.RecordAPIError("holiday_source_error", endpoint)
		h.sendErrorResponse(w, r, ErrorResponse{
			Message: "holiday calendar does not cover the requested date",
			Date:    holidayErr.Date.Format(models.DateLayout),
		}, http.StatusUnprocessableEntity)
	case errors.As(err, &predErr):
		h.metrics.RecordAPIError("prediction_error", endpoint)
		h.sendErrorResponse(w, r, ErrorResponse{
			Message: "prediction model failed",
			Date:    predErr.Date.Format(models.DateLayout),
		}, http.StatusBadGateway)
	case errors.As(err, &notFoundErr):
		h.metrics.RecordAPIError("not_found", endpoint)
		h.sendError(w, r, notFoundErr.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrHistoryUnavailable):
		h.metrics.RecordAPIError("storage_unavailable", endpoint)
		h.sendError(w, r, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		h.metrics.RecordAPIError("timeout", endpoint)
		h.sendError(w, r, "request timed out", http.StatusGatewayTimeout)
	default:
		h.logger.Error(ctx, "[API_INTERNAL_ERROR] Request failed", logging.Fields{
			"endpoint": endpoint,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, "internal server error", http.StatusInternalServerError)
	}
}

func (h *ForecastHandler) timer(endpoint string) *metrics.Timer {
	return h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues(endpoint))
}
