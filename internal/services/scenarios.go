package services

import (
	"fmt"
	"strings"

	"admission-forecast/internal/models"
)

// Scenario is a named, fully specified model input. Unlike the rollout
// pipeline, counters are used as given and the weekday and holiday flags are
// set explicitly rather than derived from a date.
type Scenario struct {
	Name                     string  `json:"name"`
	DayOfWeek                string  `json:"day_of_week"`
	PublicHoliday            bool    `json:"public_holiday"`
	PublicHolidayPreviousDay bool    `json:"public_holiday_previous_day"`
	TotalOutpatient          float64 `json:"total_outpatient"`
	IntroOutpatient          float64 `json:"intro_outpatient"`
	ER                       float64 `json:"ER"`
	BedCount                 float64 `json:"bed_count"`
}

// ScenarioResult is the oracle output for one scenario
type ScenarioResult struct {
	Scenario   Scenario             `json:"scenario"`
	Prediction float64              `json:"prediction"`
	Features   models.FeatureRecord `json:"input_features"`
}

// DefaultScenarios are the built-in comparison cases
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Name: "Busy Monday", DayOfWeek: "mon", TotalOutpatient: 800, IntroOutpatient: 30, ER: 20, BedCount: 280},
		{Name: "Normal Tuesday", DayOfWeek: "tue", TotalOutpatient: 600, IntroOutpatient: 20, ER: 15, BedCount: 280},
		{Name: "Busy Wednesday", DayOfWeek: "wed", TotalOutpatient: 750, IntroOutpatient: 25, ER: 15, BedCount: 280},
		{Name: "Quiet Saturday", DayOfWeek: "sat", TotalOutpatient: 200, IntroOutpatient: 5, ER: 15, BedCount: 280},
		{Name: "Public holiday", DayOfWeek: "tue", PublicHoliday: true, TotalOutpatient: 100, IntroOutpatient: 3, ER: 15, BedCount: 280},
	}
}

// Record builds and validates the model input for s
func (s Scenario) Record() (models.FeatureRecord, error) {
	var r models.FeatureRecord

	code := strings.ToLower(strings.TrimSpace(s.DayOfWeek))
	found := false
	for d := models.Monday; d <= models.Sunday; d++ {
		if d.Code() == code {
			r[int(d)] = 1
			found = true
			break
		}
	}
	if !found {
		return models.FeatureRecord{}, &models.ValidationError{
			Field:   "day_of_week",
			Value:   s.DayOfWeek,
			Message: fmt.Sprintf("scenario %q: day_of_week must be one of mon..sun", s.Name),
		}
	}

	if s.PublicHoliday {
		r[models.FeaturePublicHoliday] = 1
	}
	if s.PublicHolidayPreviousDay {
		r[models.FeaturePublicHolidayPreviousDay] = 1
	}
	r[models.FeatureTotalOutpatient] = s.TotalOutpatient
	r[models.FeatureIntroOutpatient] = s.IntroOutpatient
	r[models.FeatureER] = s.ER
	r[models.FeatureBedCount] = s.BedCount

	if err := r.Validate(); err != nil {
		return models.FeatureRecord{}, err
	}
	return r, nil
}
