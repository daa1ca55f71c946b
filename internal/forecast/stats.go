package forecast

import (
	"math"
	"sort"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"

	"admission-forecast/internal/models"
)

// percentileSorted returns the p-th percentile (0..100) of sorted values using
// linear interpolation between closest ranks
func percentileSorted(sorted []float64, p float64) float64 {
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// ComputeQuartiles returns the 25th, 50th and 75th percentiles of values
func ComputeQuartiles(values []float64) models.Quartiles {
	if len(values) == 0 {
		return models.Quartiles{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return models.Quartiles{
		Q1: percentileSorted(sorted, 25),
		Q2: percentileSorted(sorted, 50),
		Q3: percentileSorted(sorted, 75),
	}
}

// Bucket maps value onto a busyness level. Boundary values fall into the lower bucket.
func Bucket(value float64, q models.Quartiles) models.BusynessLevel {
	switch {
	case value <= q.Q1:
		return models.BusynessLow
	case value <= q.Q2:
		return models.BusynessSomewhatLow
	case value <= q.Q3:
		return models.BusynessSomewhatHigh
	default:
		return models.BusynessHigh
	}
}

// Summarize assigns busyness levels to the points in place and returns the
// series statistics. trendWindow <= 1 disables the moving average.
func Summarize(points []models.ForecastPoint, trendWindow int) models.SeriesSummary {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.PredictedValue
	}

	summary := models.SeriesSummary{Count: len(points)}
	if len(points) == 0 {
		return summary
	}

	summary.Quartiles = ComputeQuartiles(values)
	for i := range points {
		points[i].BusynessLevel = Bucket(points[i].PredictedValue, summary.Quartiles)
	}

	summary.Min, summary.Max = values[0], values[0]
	var sum, weekdaySum, weekendSum float64
	var weekdayN, weekendN int
	for i, v := range values {
		sum += v
		summary.Min = math.Min(summary.Min, v)
		summary.Max = math.Max(summary.Max, v)
		if points[i].DayClassification.IsWeekend() {
			weekendSum += v
			weekendN++
		} else {
			weekdaySum += v
			weekdayN++
		}
	}
	summary.Mean = sum / float64(len(values))
	if weekdayN > 0 {
		mean := weekdaySum / float64(weekdayN)
		summary.WeekdayMean = &mean
	}
	if weekendN > 0 {
		mean := weekendSum / float64(weekendN)
		summary.WeekendMean = &mean
	}

	if trendWindow > 1 && len(values) >= trendWindow {
		summary.Trend = MovingAverage(values, trendWindow)
		summary.TrendWindow = trendWindow
	}

	return summary
}

// MovingAverage returns the simple moving average of values over window.
// The result has len(values)-window+1 entries, aligned to the window ends.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 0 || len(values) < window {
		return nil
	}
	sma := trend.NewSmaWithPeriod[float64](window)
	return helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
}
