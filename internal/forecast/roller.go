package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"admission-forecast/internal/models"
)

// Oracle is the trained model. Implementations must be safe for concurrent use.
type Oracle interface {
	Predict(ctx context.Context, record models.FeatureRecord) (float64, error)
}

// OracleFunc adapts a plain function to Oracle
type OracleFunc func(ctx context.Context, record models.FeatureRecord) (float64, error)

// Predict calls f(ctx, record)
func (f OracleFunc) Predict(ctx context.Context, record models.FeatureRecord) (float64, error) {
	return f(ctx, record)
}

const (
	// DefaultMaxDays bounds RollDays
	DefaultMaxDays = 366
	// DefaultTrendWindow is a one week moving average
	DefaultTrendWindow = 7
)

// Roller runs the feature pipeline across a date range.
// A Roller holds no per-call state and may be shared between goroutines.
type Roller struct {
	classifier  *Classifier
	oracle      Oracle
	maxDays     int
	trendWindow int
}

// Option configures a Roller
type Option func(*Roller)

// WithMaxDays caps the length of a RollDays request
func WithMaxDays(n int) Option {
	return func(r *Roller) {
		if n > 0 {
			r.maxDays = n
		}
	}
}

// WithTrendWindow sets the moving average window; 0 disables the trend
func WithTrendWindow(n int) Option {
	return func(r *Roller) {
		if n >= 0 {
			r.trendWindow = n
		}
	}
}

// NewRoller wires the pipeline around oracle and holidays
func NewRoller(oracle Oracle, holidays HolidaySource, opts ...Option) *Roller {
	r := &Roller{
		classifier:  NewClassifier(holidays),
		oracle:      oracle,
		maxDays:     DefaultMaxDays,
		trendWindow: DefaultTrendWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxDays returns the RollDays limit
func (r *Roller) MaxDays() int {
	return r.maxDays
}

// PredictDay runs the pipeline for one date. The returned point has no busyness level.
func (r *Roller) PredictDay(ctx context.Context, baseline models.OperationalBaseline, date time.Time) (models.ForecastPoint, error) {
	if err := baseline.Validate(); err != nil {
		return models.ForecastPoint{}, err
	}
	return r.predict(ctx, baseline, Day(date))
}

// PredictRecord sends a prebuilt record to the oracle, rejecting invalid
// records and non-finite results
func (r *Roller) PredictRecord(ctx context.Context, date time.Time, record models.FeatureRecord) (float64, error) {
	if err := record.Validate(); err != nil {
		return 0, err
	}
	return r.callOracle(ctx, Day(date), record)
}

// RollDays forecasts numDays consecutive dates starting at start (inclusive)
func (r *Roller) RollDays(ctx context.Context, baseline models.OperationalBaseline, start time.Time, numDays int) (*models.ForecastSeries, error) {
	if numDays < 1 || numDays > r.maxDays {
		return nil, &models.ValidationError{
			Field:   "num_days",
			Value:   strconv.Itoa(numDays),
			Message: fmt.Sprintf("num_days must be between 1 and %d", r.maxDays),
		}
	}
	start = Day(start)
	return r.roll(ctx, models.ModeDays, baseline, start, numDays)
}

// RollMonth forecasts every calendar day of year/month
func (r *Roller) RollMonth(ctx context.Context, baseline models.OperationalBaseline, year, month int) (*models.ForecastSeries, error) {
	if month < 1 || month > 12 {
		return nil, &models.ValidationError{
			Field:   "month",
			Value:   strconv.Itoa(month),
			Message: "month must be between 1 and 12",
		}
	}
	if year < 1 || year > 9999 {
		return nil, &models.ValidationError{
			Field:   "year",
			Value:   strconv.Itoa(year),
			Message: "year must be between 1 and 9999",
		}
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return r.roll(ctx, models.ModeMonth, baseline, start, DaysInMonth(year, time.Month(month)))
}

func (r *Roller) roll(ctx context.Context, mode string, baseline models.OperationalBaseline, start time.Time, numDays int) (*models.ForecastSeries, error) {
	if err := baseline.Validate(); err != nil {
		return nil, err
	}

	points := make([]models.ForecastPoint, 0, numDays)
	for i := 0; i < numDays; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		point, err := r.predict(ctx, baseline, start.AddDate(0, 0, i))
		if err != nil {
			return nil, err
		}
		points = append(points, point)
	}

	summary := Summarize(points, r.trendWindow)
	return &models.ForecastSeries{
		Mode:      mode,
		StartDate: start,
		EndDate:   points[len(points)-1].Date,
		Baseline:  baseline,
		Points:    points,
		Summary:   summary,
	}, nil
}

func (r *Roller) predict(ctx context.Context, baseline models.OperationalBaseline, date time.Time) (models.ForecastPoint, error) {
	day, err := r.classifier.Classify(date)
	if err != nil {
		return models.ForecastPoint{}, err
	}
	adjusted := Adjust(baseline, day)
	record, err := Build(adjusted)
	if err != nil {
		return models.ForecastPoint{}, err
	}
	value, err := r.callOracle(ctx, date, record)
	if err != nil {
		return models.ForecastPoint{}, err
	}
	return models.ForecastPoint{
		Date:              date,
		DayClassification: day,
		AdjustedFeatures:  adjusted,
		PredictedValue:    value,
	}, nil
}

func (r *Roller) callOracle(ctx context.Context, date time.Time, record models.FeatureRecord) (float64, error) {
	value, err := r.oracle.Predict(ctx, record)
	if err != nil {
		// a spent request deadline is not a model failure
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		var predErr *models.PredictionError
		if errors.As(err, &predErr) {
			return 0, err
		}
		return 0, &models.PredictionError{Date: date, Err: err}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, &models.PredictionError{
			Date: date,
			Err:  fmt.Errorf("oracle returned non-finite value %v", value),
		}
	}
	return value, nil
}

// DaysInMonth returns the number of days in month of year
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
