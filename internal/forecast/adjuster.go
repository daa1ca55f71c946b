package forecast

import "admission-forecast/internal/models"

// dayMultipliers scales outpatient volume by weekday
var dayMultipliers = [7]float64{
	models.Monday:    1.1,
	models.Tuesday:   1.0,
	models.Wednesday: 1.0,
	models.Thursday:  0.9,
	models.Friday:    0.9,
	models.Saturday:  0.5,
	models.Sunday:    0.3,
}

// Multiplier returns the demand multiplier for a classified day.
// Public holidays use the Sunday multiplier whatever their weekday.
func Multiplier(day models.DayClassification) float64 {
	if day.IsPublicHoliday {
		return dayMultipliers[models.Sunday]
	}
	return dayMultipliers[day.WeekdayIndex]
}

// Adjust scales the baseline counters for day.
// ER volume is damped to 0.9 + 0.2*m; bed count is not day dependent.
func Adjust(baseline models.OperationalBaseline, day models.DayClassification) models.AdjustedFeatures {
	m := Multiplier(day)

	return models.AdjustedFeatures{
		OneHot:                   day.OneHot,
		PublicHoliday:            boolToInt(day.IsPublicHoliday),
		PublicHolidayPreviousDay: boolToInt(day.IsPreviousDayHoliday),
		TotalOutpatient:          float64(baseline.TotalOutpatient) * m,
		IntroOutpatient:          float64(baseline.IntroOutpatient) * m,
		ER:                       float64(baseline.ERCount) * (0.9 + 0.2*m),
		BedCount:                 float64(baseline.BedCount),
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
