package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"admission-forecast/internal/models"
	"admission-forecast/pkg/database"
	"admission-forecast/pkg/logging"
	"admission-forecast/pkg/metrics"
)

// PredictionRepository provides access to the append-only prediction log
type PredictionRepository interface {
	// Write operations
	LogPrediction(ctx context.Context, entry *models.PredictionLog) error
	LogSeries(ctx context.Context, entries []*models.PredictionLog) error

	// Read operations
	GetLog(ctx context.Context, id int64) (*models.PredictionLog, error)
	GetHistory(ctx context.Context, filter HistoryFilter) ([]*models.PredictionLog, int, error)
	SummarizeByWeekday(ctx context.Context, startDate, endDate *time.Time) ([]*models.WeekdaySummary, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// HistoryFilter defines filters for querying logged predictions.
// Dates bound prediction_date, inclusive.
type HistoryFilter struct {
	StartDate   *time.Time
	EndDate     *time.Time
	RequestKind *string
	Limit       int
	Offset      int
}

const insertPredictionLog = `
		INSERT INTO prediction_logs (
			prediction_date, predicted_value,
			total_outpatient, intro_outpatient, er_patients, bed_count,
			public_holiday, public_holiday_previous_day, day_of_week,
			busyness_level, request_kind, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const selectPredictionLog = `
		SELECT id, prediction_date, predicted_value,
		       total_outpatient, intro_outpatient, er_patients, bed_count,
		       public_holiday, public_holiday_previous_day, day_of_week,
		       busyness_level, request_kind, created_at
		FROM prediction_logs`

// predictionRepository implements PredictionRepository
type predictionRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewPredictionRepository creates a new prediction log repository
func NewPredictionRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) PredictionRepository {
	return &predictionRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

func logArgs(e *models.PredictionLog) []interface{} {
	return []interface{}{
		e.PredictionDate,
		e.PredictedValue,
		e.TotalOutpatient,
		e.IntroOutpatient,
		e.ERPatients,
		e.BedCount,
		e.PublicHoliday,
		e.PublicHolidayPreviousDay,
		e.DayOfWeek,
		e.BusynessLevel,
		e.RequestKind,
		e.CreatedAt,
	}
}

// LogPrediction appends one prediction and sets entry.ID
func (r *predictionRepository) LogPrediction(ctx context.Context, entry *models.PredictionLog) error {
	err := r.db.DB().QueryRowContext(ctx, insertPredictionLog+" RETURNING id", logArgs(entry)...).Scan(&entry.ID)
	if err != nil {
		r.metrics.RecordDBError("insert_prediction_error")
		return fmt.Errorf("failed to log prediction: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_LOG_PREDICTION] Prediction logged", logging.Fields{
		"id":              entry.ID,
		"prediction_date": entry.PredictionDate.Format(models.DateLayout),
		"request_kind":    entry.RequestKind,
	})

	return nil
}

// LogSeries appends all entries in a single transaction
func (r *predictionRepository) LogSeries(ctx context.Context, entries []*models.PredictionLog) error {
	if len(entries) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		r.logger.Debug(ctx, "[REPO_LOG_SERIES] Batch insert completed", logging.Fields{
			"count":       len(entries),
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertPredictionLog)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx, logArgs(entry)...); err != nil {
			r.metrics.RecordDBError("insert_prediction_error")
			return fmt.Errorf("failed to log prediction for %s: %w", entry.PredictionDate.Format(models.DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetLog retrieves one logged prediction
func (r *predictionRepository) GetLog(ctx context.Context, id int64) (*models.PredictionLog, error) {
	var entry models.PredictionLog
	err := r.db.GetContext(ctx, "get_prediction_log", &entry, selectPredictionLog+" WHERE id = $1", id)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "prediction_log",
			ID:       fmt.Sprintf("%d", id),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get prediction log: %w", err)
	}

	return &entry, nil
}

// GetHistory retrieves logged predictions, newest first, with the total match count
func (r *predictionRepository) GetHistory(ctx context.Context, filter HistoryFilter) ([]*models.PredictionLog, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argNum := 1

	if filter.StartDate != nil {
		where += fmt.Sprintf(" AND prediction_date >= $%d", argNum)
		args = append(args, *filter.StartDate)
		argNum++
	}

	if filter.EndDate != nil {
		where += fmt.Sprintf(" AND prediction_date <= $%d", argNum)
		args = append(args, *filter.EndDate)
		argNum++
	}

	if filter.RequestKind != nil {
		where += fmt.Sprintf(" AND request_kind = $%d", argNum)
		args = append(args, *filter.RequestKind)
		argNum++
	}

	var totalCount int
	err := r.db.GetContext(ctx, "count_prediction_logs", &totalCount, "SELECT COUNT(*) FROM prediction_logs"+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count prediction logs: %w", err)
	}

	query := selectPredictionLog + where
	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var logs []*models.PredictionLog
	err = r.db.SelectContext(ctx, "get_prediction_logs", &logs, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get prediction logs: %w", err)
	}

	return logs, totalCount, nil
}

// SummarizeByWeekday aggregates logged predictions per weekday, Monday first
func (r *predictionRepository) SummarizeByWeekday(ctx context.Context, startDate, endDate *time.Time) ([]*models.WeekdaySummary, error) {
	query := `
		SELECT
			day_of_week,
			COUNT(*) AS prediction_count,
			AVG(predicted_value) AS avg_predicted,
			MIN(predicted_value) AS min_predicted,
			MAX(predicted_value) AS max_predicted
		FROM prediction_logs
		WHERE ($1::date IS NULL OR prediction_date >= $1::date)
		  AND ($2::date IS NULL OR prediction_date <= $2::date)
		GROUP BY day_of_week
		ORDER BY array_position(ARRAY['mon','tue','wed','thu','fri','sat','sun'], day_of_week)
	`

	var summaries []*models.WeekdaySummary
	err := r.db.SelectContext(ctx, "summarize_prediction_logs", &summaries, query, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize prediction logs: %w", err)
	}

	return summaries, nil
}

// HealthCheck performs a repository health check
func (r *predictionRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
