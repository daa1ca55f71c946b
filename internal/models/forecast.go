package models

import (
	"time"
)

// Weekday is a calendar weekday numbered Monday=0 through Sunday=6
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayCodes = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

var weekdayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// WeekdayOf converts a Go weekday (Sunday=0) into the Monday=0 numbering
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

// Code returns the three-letter feature code (mon..sun)
func (d Weekday) Code() string {
	if d < Monday || d > Sunday {
		return "unknown"
	}
	return weekdayCodes[d]
}

// String returns the English weekday name
func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return "Unknown"
	}
	return weekdayNames[d]
}

// IsWeekend reports whether d is Saturday or Sunday
func (d Weekday) IsWeekend() bool {
	return d == Saturday || d == Sunday
}

// OneHot is the weekday one-hot encoding consumed by the model
type OneHot struct {
	Mon int `json:"mon"`
	Tue int `json:"tue"`
	Wed int `json:"wed"`
	Thu int `json:"thu"`
	Fri int `json:"fri"`
	Sat int `json:"sat"`
	Sun int `json:"sun"`
}

// NewOneHot returns the encoding with only d set
func NewOneHot(d Weekday) OneHot {
	var o OneHot
	switch d {
	case Monday:
		o.Mon = 1
	case Tuesday:
		o.Tue = 1
	case Wednesday:
		o.Wed = 1
	case Thursday:
		o.Thu = 1
	case Friday:
		o.Fri = 1
	case Saturday:
		o.Sat = 1
	case Sunday:
		o.Sun = 1
	}
	return o
}

// Values returns the seven flags in Monday..Sunday order
func (o OneHot) Values() [7]int {
	return [7]int{o.Mon, o.Tue, o.Wed, o.Thu, o.Fri, o.Sat, o.Sun}
}

// Active returns the single set weekday; ok is false unless exactly one flag is 1
func (o OneHot) Active() (Weekday, bool) {
	active, count := Weekday(-1), 0
	for i, v := range o.Values() {
		if v != 0 {
			active = Weekday(i)
			count++
		}
	}
	return active, count == 1
}

// DayClassification is the calendar view of one date
type DayClassification struct {
	Date                 time.Time `json:"date"`
	WeekdayIndex         Weekday   `json:"weekday_index"`
	OneHot               OneHot    `json:"one_hot"`
	IsPublicHoliday      bool      `json:"is_public_holiday"`
	IsPreviousDayHoliday bool      `json:"is_previous_day_holiday"`
	HolidayName          string    `json:"holiday_name,omitempty"`
}

// IsWeekend reports whether the classified date is a Saturday or Sunday
func (d DayClassification) IsWeekend() bool {
	day, ok := d.OneHot.Active()
	return ok && day.IsWeekend()
}

// OperationalBaseline holds the caller supplied counters.
// Outpatient and ER counts are previous-day figures; BedCount is the current census.
type OperationalBaseline struct {
	TotalOutpatient int `json:"total_outpatient"`
	IntroOutpatient int `json:"intro_outpatient"`
	ERCount         int `json:"ER"`
	BedCount        int `json:"bed_count"`
}

// Validate rejects negative counters
func (b OperationalBaseline) Validate() error {
	checks := []struct {
		field string
		value int
	}{
		{"total_outpatient", b.TotalOutpatient},
		{"intro_outpatient", b.IntroOutpatient},
		{"ER", b.ERCount},
		{"bed_count", b.BedCount},
	}
	for _, c := range checks {
		if c.value < 0 {
			return &ValidationError{
				Field:   c.field,
				Value:   itoa(c.value),
				Message: c.field + " must be non-negative",
			}
		}
	}
	return nil
}

// AdjustedFeatures is the day-adjusted input of one prediction
type AdjustedFeatures struct {
	OneHot                   OneHot  `json:"one_hot"`
	PublicHoliday            int     `json:"public_holiday"`
	PublicHolidayPreviousDay int     `json:"public_holiday_previous_day"`
	TotalOutpatient          float64 `json:"total_outpatient"`
	IntroOutpatient          float64 `json:"intro_outpatient"`
	ER                       float64 `json:"ER"`
	BedCount                 float64 `json:"bed_count"`
}

// BusynessLevel is the quartile bucket of a forecast point within its series
type BusynessLevel string

const (
	BusynessLow          BusynessLevel = "low"
	BusynessSomewhatLow  BusynessLevel = "somewhat-low"
	BusynessSomewhatHigh BusynessLevel = "somewhat-high"
	BusynessHigh         BusynessLevel = "high"
)

// ForecastPoint is one row of a rollout
type ForecastPoint struct {
	Date              time.Time         `json:"date"`
	DayClassification DayClassification `json:"day_classification"`
	AdjustedFeatures  AdjustedFeatures  `json:"adjusted_features"`
	PredictedValue    float64           `json:"predicted_value"`
	BusynessLevel     BusynessLevel     `json:"busyness_level,omitempty"`
}

// Rollout modes
const (
	ModeDays  = "days"
	ModeMonth = "month"
)

// Quartiles holds the 25th, 50th and 75th percentiles of a series
type Quartiles struct {
	Q1 float64 `json:"q1"`
	Q2 float64 `json:"q2"`
	Q3 float64 `json:"q3"`
}

// SeriesSummary holds statistics computed over a series' own points.
// WeekdayMean and WeekendMean are nil when the partition is empty.
type SeriesSummary struct {
	Count       int       `json:"count"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Mean        float64   `json:"mean"`
	WeekdayMean *float64  `json:"weekday_mean,omitempty"`
	WeekendMean *float64  `json:"weekend_mean,omitempty"`
	Quartiles   Quartiles `json:"quartiles"`
	Trend       []float64 `json:"trend,omitempty"`
	TrendWindow int       `json:"trend_window,omitempty"`
}

// ForecastSeries is an ordered rollout over a date range
type ForecastSeries struct {
	Mode      string              `json:"mode"`
	StartDate time.Time           `json:"start_date"`
	EndDate   time.Time           `json:"end_date"`
	Baseline  OperationalBaseline `json:"baseline"`
	Points    []ForecastPoint     `json:"points"`
	Summary   SeriesSummary       `json:"summary"`
}

// Season returns the meteorological season of a date
func Season(t time.Time) string {
	switch t.Month() {
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	case time.September, time.October, time.November:
		return "autumn"
	default:
		return "winter"
	}
}

// PredictionLog is one row of the append-only prediction log
type PredictionLog struct {
	ID                       int64     `json:"id" db:"id"`
	PredictionDate           time.Time `json:"prediction_date" db:"prediction_date"`
	PredictedValue           float64   `json:"predicted_value" db:"predicted_value"`
	TotalOutpatient          float64   `json:"total_outpatient" db:"total_outpatient"`
	IntroOutpatient          float64   `json:"intro_outpatient" db:"intro_outpatient"`
	ERPatients               float64   `json:"er_patients" db:"er_patients"`
	BedCount                 float64   `json:"bed_count" db:"bed_count"`
	PublicHoliday            bool      `json:"public_holiday" db:"public_holiday"`
	PublicHolidayPreviousDay bool      `json:"public_holiday_previous_day" db:"public_holiday_previous_day"`
	DayOfWeek                string    `json:"day_of_week" db:"day_of_week"`
	BusynessLevel            *string   `json:"busyness_level,omitempty" db:"busyness_level"`
	RequestKind              string    `json:"request_kind" db:"request_kind"`
	CreatedAt                time.Time `json:"created_at" db:"created_at"`
}

// NewPredictionLog flattens a forecast point into a log row
func NewPredictionLog(p ForecastPoint, kind string) *PredictionLog {
	entry := &PredictionLog{
		PredictionDate:           p.Date,
		PredictedValue:           p.PredictedValue,
		TotalOutpatient:          p.AdjustedFeatures.TotalOutpatient,
		IntroOutpatient:          p.AdjustedFeatures.IntroOutpatient,
		ERPatients:               p.AdjustedFeatures.ER,
		BedCount:                 p.AdjustedFeatures.BedCount,
		PublicHoliday:            p.DayClassification.IsPublicHoliday,
		PublicHolidayPreviousDay: p.DayClassification.IsPreviousDayHoliday,
		DayOfWeek:                p.DayClassification.WeekdayIndex.Code(),
		RequestKind:              kind,
		CreatedAt:                time.Now().UTC(),
	}
	if p.BusynessLevel != "" {
		level := string(p.BusynessLevel)
		entry.BusynessLevel = &level
	}
	return entry
}

// WeekdaySummary aggregates logged predictions for one weekday
type WeekdaySummary struct {
	DayOfWeek       string  `json:"day_of_week" db:"day_of_week"`
	PredictionCount int     `json:"prediction_count" db:"prediction_count"`
	AvgPredicted    float64 `json:"avg_predicted" db:"avg_predicted"`
	MinPredicted    float64 `json:"min_predicted" db:"min_predicted"`
	MaxPredicted    float64 `json:"max_predicted" db:"max_predicted"`
}
