package services

import (
	"context"
	"errors"
	"time"

	"admission-forecast/internal/models"
	"admission-forecast/internal/repository"
	"admission-forecast/pkg/logging"
	"admission-forecast/pkg/metrics"
)

// ErrHistoryUnavailable is returned when no prediction log is configured
var ErrHistoryUnavailable = errors.New("prediction history is not available: database disabled")

// HistoryService reads the prediction log
type HistoryService struct {
	repo    repository.PredictionRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewHistoryService creates a new history service; repo may be nil
func NewHistoryService(repo repository.PredictionRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *HistoryService {
	return &HistoryService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Available reports whether a repository is configured
func (s *HistoryService) Available() bool {
	return s.repo != nil
}

// GetHistory retrieves logged predictions with filtering
func (s *HistoryService) GetHistory(ctx context.Context, filter repository.HistoryFilter) ([]*models.PredictionLog, int, error) {
	if s.repo == nil {
		return nil, 0, ErrHistoryUnavailable
	}
	return s.repo.GetHistory(ctx, filter)
}

// GetEntry retrieves one logged prediction by id
func (s *HistoryService) GetEntry(ctx context.Context, id int64) (*models.PredictionLog, error) {
	if s.repo == nil {
		return nil, ErrHistoryUnavailable
	}
	return s.repo.GetLog(ctx, id)
}

// SummarizeByWeekday aggregates logged predictions between the optional dates
func (s *HistoryService) SummarizeByWeekday(ctx context.Context, startDate, endDate *time.Time) ([]*models.WeekdaySummary, error) {
	if s.repo == nil {
		return nil, ErrHistoryUnavailable
	}

	timer := time.Now()
	summaries, err := s.repo.SummarizeByWeekday(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "[HISTORY_SUMMARY] Weekday summary calculated", logging.Fields{
		"weekdays":    len(summaries),
		"duration_ms": time.Since(timer).Milliseconds(),
	})

	return summaries, nil
}

// HealthCheck reports repository health; nil when the database is disabled
func (s *HistoryService) HealthCheck(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.HealthCheck(ctx)
}
