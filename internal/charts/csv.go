package charts

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"admission-forecast/internal/models"
)

// CSVHeader is the column order written by WriteCSV
var CSVHeader = []string{
	"date", "day", "public_holiday", "public_holiday_previous_day",
	"total_outpatient", "intro_outpatient", "ER", "bed_count",
	"prediction", "busyness_level", "holiday_name",
}

func fixed2(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// WriteCSV writes one row per forecast point
func WriteCSV(w io.Writer, series *models.ForecastSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, p := range series.Points {
		a := p.AdjustedFeatures
		row := []string{
			p.Date.Format(models.DateLayout),
			p.DayClassification.WeekdayIndex.Code(),
			strconv.Itoa(a.PublicHoliday),
			strconv.Itoa(a.PublicHolidayPreviousDay),
			fixed2(a.TotalOutpatient),
			fixed2(a.IntroOutpatient),
			fixed2(a.ER),
			fixed2(a.BedCount),
			fixed2(p.PredictedValue),
			string(p.BusynessLevel),
			p.DayClassification.HolidayName,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
