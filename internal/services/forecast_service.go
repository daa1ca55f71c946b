package services

import (
	"context"
	"errors"
	"time"

	"admission-forecast/internal/cache"
	"admission-forecast/internal/forecast"
	"admission-forecast/internal/models"
	"admission-forecast/internal/repository"
	"admission-forecast/pkg/logging"
	"admission-forecast/pkg/metrics"
)

// Request kinds recorded in the prediction log
const (
	KindSingle   = "single"
	KindDays     = "days"
	KindMonth    = "month"
	KindScenario = "scenario"
)

// SeriesCache stores finished series; *cache.ForecastCache implements it
type SeriesCache interface {
	Get(ctx context.Context, key string) (*models.ForecastSeries, bool)
	Set(ctx context.Context, key string, series *models.ForecastSeries)
}

// ForecastService runs forecasts and records what it served.
// The repository and cache are optional.
type ForecastService struct {
	roller  *forecast.Roller
	repo    repository.PredictionRepository
	cache   SeriesCache
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewForecastService creates a new forecast service
func NewForecastService(
	roller *forecast.Roller,
	repo repository.PredictionRepository,
	seriesCache SeriesCache,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ForecastService {
	return &ForecastService{
		roller:  roller,
		repo:    repo,
		cache:   seriesCache,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// MaxDays returns the longest accepted day rollout
func (s *ForecastService) MaxDays() int {
	return s.roller.MaxDays()
}

// PredictDay forecasts a single date
func (s *ForecastService) PredictDay(ctx context.Context, baseline models.OperationalBaseline, date time.Time) (*models.ForecastPoint, error) {
	start := time.Now()
	point, err := s.roller.PredictDay(ctx, baseline, date)
	s.metrics.RecordRollout(KindSingle, outcome(err), 1, time.Since(start))
	if err != nil {
		s.logFailure(ctx, KindSingle, err)
		return nil, err
	}

	s.logger.Info(ctx, "[FORECAST_SINGLE] Prediction served", logging.Fields{
		"date":       point.Date.Format(models.DateLayout),
		"prediction": point.PredictedValue,
		"holiday":    point.DayClassification.IsPublicHoliday,
	})

	if s.repo != nil {
		if err := s.repo.LogPrediction(ctx, models.NewPredictionLog(point, KindSingle)); err != nil {
			s.logStoreFailure(ctx, KindSingle, err)
		}
	}

	return &point, nil
}

// ForecastDays forecasts numDays consecutive dates from start
func (s *ForecastService) ForecastDays(ctx context.Context, baseline models.OperationalBaseline, start time.Time, numDays int) (*models.ForecastSeries, error) {
	key := cache.DaysKey(forecast.Day(start), numDays, baseline)
	return s.rollCached(ctx, KindDays, key, func() (*models.ForecastSeries, error) {
		return s.roller.RollDays(ctx, baseline, start, numDays)
	})
}

// ForecastMonth forecasts every day of year/month
func (s *ForecastService) ForecastMonth(ctx context.Context, baseline models.OperationalBaseline, year, month int) (*models.ForecastSeries, error) {
	key := cache.MonthKey(year, month, baseline)
	return s.rollCached(ctx, KindMonth, key, func() (*models.ForecastSeries, error) {
		return s.roller.RollMonth(ctx, baseline, year, month)
	})
}

func (s *ForecastService) rollCached(ctx context.Context, kind, key string, roll func() (*models.ForecastSeries, error)) (*models.ForecastSeries, error) {
	if s.cache != nil {
		if series, ok := s.cache.Get(ctx, key); ok {
			s.logger.Debug(ctx, "[FORECAST_CACHE_HIT] Serving cached series", logging.Fields{
				"key": key,
			})
			return series, nil
		}
	}

	start := time.Now()
	series, err := roll()
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordRollout(kind, outcome(err), 0, duration)
		s.logFailure(ctx, kind, err)
		return nil, err
	}
	s.metrics.RecordRollout(kind, "success", len(series.Points), duration)

	s.logger.Info(ctx, "[FORECAST_ROLLOUT] Series computed", logging.Fields{
		"mode":        series.Mode,
		"start_date":  series.StartDate.Format(models.DateLayout),
		"end_date":    series.EndDate.Format(models.DateLayout),
		"points":      len(series.Points),
		"mean":        series.Summary.Mean,
		"duration_ms": duration.Milliseconds(),
	})

	if s.cache != nil {
		s.cache.Set(ctx, key, series)
	}

	if s.repo != nil {
		entries := make([]*models.PredictionLog, len(series.Points))
		for i, p := range series.Points {
			entries[i] = models.NewPredictionLog(p, kind)
		}
		if err := s.repo.LogSeries(ctx, entries); err != nil {
			s.logStoreFailure(ctx, kind, err)
		}
	}

	return series, nil
}

// PredictRaw sends a caller-built record straight to the oracle.
// date is only used to label errors.
func (s *ForecastService) PredictRaw(ctx context.Context, date time.Time, record models.FeatureRecord) (float64, error) {
	start := time.Now()
	value, err := s.roller.PredictRecord(ctx, date, record)
	s.metrics.RecordRollout("raw", outcome(err), 1, time.Since(start))
	if err != nil {
		s.logFailure(ctx, "raw", err)
		return 0, err
	}
	return value, nil
}

// CompareScenarios predicts each scenario; the first failure aborts the comparison
func (s *ForecastService) CompareScenarios(ctx context.Context, date time.Time, scenarios []Scenario) ([]ScenarioResult, error) {
	if len(scenarios) == 0 {
		scenarios = DefaultScenarios()
	}

	start := time.Now()
	results := make([]ScenarioResult, 0, len(scenarios))
	for _, sc := range scenarios {
		record, err := sc.Record()
		if err != nil {
			return nil, err
		}
		value, err := s.roller.PredictRecord(ctx, date, record)
		if err != nil {
			s.metrics.RecordRollout(KindScenario, outcome(err), 0, time.Since(start))
			s.logFailure(ctx, KindScenario, err)
			return nil, err
		}
		results = append(results, ScenarioResult{Scenario: sc, Prediction: value, Features: record})
	}
	s.metrics.RecordRollout(KindScenario, "success", len(results), time.Since(start))

	s.logger.Info(ctx, "[FORECAST_SCENARIOS] Scenarios compared", logging.Fields{
		"count": len(results),
	})

	return results, nil
}

func (s *ForecastService) logFailure(ctx context.Context, kind string, err error) {
	fields := logging.Fields{"kind": kind}

	var predErr *models.PredictionError
	var holidayErr *models.HolidaySourceError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn(ctx, "[FORECAST_TIMEOUT] Request deadline reached, series aborted", fields)
	case errors.As(err, &predErr):
		fields["date"] = predErr.Date.Format(models.DateLayout)
		s.logger.Error(ctx, "[FORECAST_ORACLE_ERROR] Oracle failed, series aborted", fields, err)
	case errors.As(err, &holidayErr):
		fields["date"] = holidayErr.Date.Format(models.DateLayout)
		s.logger.Error(ctx, "[FORECAST_HOLIDAY_ERROR] Holiday source failed, series aborted", fields, err)
	default:
		fields["error"] = err.Error()
		s.logger.Warn(ctx, "[FORECAST_REJECTED] Forecast request rejected", fields)
	}
}

func (s *ForecastService) logStoreFailure(ctx context.Context, kind string, err error) {
	s.metrics.PredictionLogFail.Inc()
	s.logger.Error(ctx, "[FORECAST_LOG_ERROR] Failed to record prediction, continuing", logging.Fields{
		"kind": kind,
	}, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
