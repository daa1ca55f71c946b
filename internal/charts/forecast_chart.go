// Package charts renders forecast series as HTML charts.
package charts

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"admission-forecast/internal/models"
)

// BusynessColors maps each bucket to its bar colour
var BusynessColors = map[models.BusynessLevel]string{
	models.BusynessLow:          "#a1d99b",
	models.BusynessSomewhatLow:  "#fee391",
	models.BusynessSomewhatHigh: "#fc9272",
	models.BusynessHigh:         "#de2d26",
}

const defaultColor = "#9ecae1"

// Title returns the chart heading for series
func Title(series *models.ForecastSeries) string {
	if series.Mode == models.ModeMonth {
		return fmt.Sprintf("Admissions forecast %s", series.StartDate.Format("2006-01"))
	}
	return fmt.Sprintf("Admissions forecast %s to %s",
		series.StartDate.Format(models.DateLayout), series.EndDate.Format(models.DateLayout))
}

// Render writes a bar chart of predicted admissions coloured by busyness,
// overlaid with the moving average trend when the series has one
func Render(w io.Writer, series *models.ForecastSeries) error {
	if series == nil || len(series.Points) == 0 {
		return fmt.Errorf("cannot render an empty forecast series")
	}

	labels := make([]string, len(series.Points))
	bars := make([]opts.BarData, len(series.Points))
	for i, p := range series.Points {
		labels[i] = fmt.Sprintf("%s (%s)", p.Date.Format("01-02"), p.DayClassification.WeekdayIndex.Code())
		color, ok := BusynessColors[p.BusynessLevel]
		if !ok {
			color = defaultColor
		}
		bars[i] = opts.BarData{
			Name:      string(p.BusynessLevel),
			Value:     p.PredictedValue,
			ItemStyle: &opts.ItemStyle{Color: color},
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: Title(series),
			Width:     "1100px",
			Height:    "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: Title(series),
			Subtitle: fmt.Sprintf("baseline outpatient=%d intro=%d ER=%d beds=%d",
				series.Baseline.TotalOutpatient, series.Baseline.IntroOutpatient,
				series.Baseline.ERCount, series.Baseline.BedCount),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "admissions"}),
	)
	bar.SetXAxis(labels).AddSeries("predicted", bars)

	if trend := series.Summary.Trend; len(trend) > 0 {
		offset := len(series.Points) - len(trend)
		line := charts.NewLine()
		data := make([]opts.LineData, len(series.Points))
		for i := range data {
			if i >= offset {
				data[i] = opts.LineData{Value: trend[i-offset]}
			}
		}
		line.SetXAxis(labels).AddSeries(fmt.Sprintf("%d-day average", series.Summary.TrendWindow), data)
		bar.Overlap(line)
	}

	return bar.Render(w)
}
