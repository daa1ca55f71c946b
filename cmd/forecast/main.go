package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"admission-forecast/internal/charts"
	"admission-forecast/internal/config"
	"admission-forecast/internal/forecast"
	"admission-forecast/internal/holiday"
	"admission-forecast/internal/models"
	"admission-forecast/internal/oracle"
	"admission-forecast/pkg/logging"
	"admission-forecast/pkg/metrics"
)

func main() {
	// Parse command-line flags
	startStr := flag.String("start", "", "First forecast day (YYYY-MM-DD, default today)")
	numDays := flag.Int("days", 7, "Number of consecutive days to forecast")
	monthStr := flag.String("month", "", "Forecast a whole month instead (YYYY-MM)")
	totalOutpatient := flag.Int("total-outpatient", 500, "Previous-day outpatient count")
	introOutpatient := flag.Int("intro-outpatient", 20, "Previous-day referred outpatient count")
	erCount := flag.Int("er", 15, "Previous-day ER patient count")
	bedCount := flag.Int("beds", 280, "Current bed count")
	csvPath := flag.String("csv", "", "Write the forecast as CSV to this file")
	chartPath := flag.String("chart", "", "Write an HTML chart to this file")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("admission-forecast-cli", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	ctx := context.Background()

	holidays, err := holiday.NewCalendarSource(holiday.Config{
		Country:    cfg.Holiday.Country,
		MinYear:    cfg.Holiday.MinYear,
		MaxYear:    cfg.Holiday.MaxYear,
		ExtraDates: cfg.Holiday.ExtraDates,
	})
	if err != nil {
		logger.Fatal(ctx, "[CLI_ERROR] Failed to build holiday calendar", logging.Fields{}, err)
	}

	collector := metrics.NewCollector("admission_forecast_cli", prometheus.NewRegistry())
	model, err := oracle.New(ctx, oracle.Config{
		Backend: cfg.Model.Backend,
		URL:     cfg.Model.URL,
		Timeout: cfg.Model.Timeout,
		Path:    cfg.Model.Path,
	}, collector)
	if err != nil {
		logger.Fatal(ctx, "[CLI_ERROR] Prediction model unavailable", logging.Fields{"backend": cfg.Model.Backend}, err)
	}

	roller := forecast.NewRoller(model, holidays,
		forecast.WithMaxDays(cfg.Forecast.MaxDays),
		forecast.WithTrendWindow(cfg.Forecast.TrendWindow),
	)

	baseline := models.OperationalBaseline{
		TotalOutpatient: *totalOutpatient,
		IntroOutpatient: *introOutpatient,
		ERCount:         *erCount,
		BedCount:        *bedCount,
	}

	var series *models.ForecastSeries
	if *monthStr != "" {
		month, perr := time.Parse("2006-01", *monthStr)
		if perr != nil {
			fmt.Fprintf(os.Stderr, "Invalid -month %q, expected YYYY-MM\n", *monthStr)
			os.Exit(1)
		}
		series, err = roller.RollMonth(ctx, baseline, month.Year(), int(month.Month()))
	} else {
		start, perr := parseStart(*startStr, cfg.Forecast)
		if perr != nil {
			fmt.Fprintf(os.Stderr, "Invalid -start: %v\n", perr)
			os.Exit(1)
		}
		series, err = roller.RollDays(ctx, baseline, start, *numDays)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Forecast failed: %v\n", err)
		os.Exit(1)
	}

	printSeries(series)

	if *csvPath != "" {
		if err := writeFile(*csvPath, func(f *os.File) error { return charts.WriteCSV(f, series) }); err != nil {
			logger.Fatal(ctx, "[CLI_ERROR] Failed to write CSV", logging.Fields{"path": *csvPath}, err)
		}
		fmt.Printf("\nCSV written to %s\n", *csvPath)
	}
	if *chartPath != "" {
		if err := writeFile(*chartPath, func(f *os.File) error { return charts.Render(f, series) }); err != nil {
			logger.Fatal(ctx, "[CLI_ERROR] Failed to write chart", logging.Fields{"path": *chartPath}, err)
		}
		fmt.Printf("Chart written to %s\n", *chartPath)
	}
}

func parseStart(value string, cfg config.ForecastConfig) (time.Time, error) {
	if value != "" {
		return time.Parse(models.DateLayout, value)
	}
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	return forecast.Day(time.Now().In(loc)), nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func printSeries(series *models.ForecastSeries) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println(strings.ToUpper(charts.Title(series)))
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%-12s %-4s %-8s %10s %10s %8s %10s  %-14s %s\n",
		"Date", "Day", "Holiday", "Outpat.", "Referral", "ER", "Predicted", "Level", "Name")
	fmt.Println(strings.Repeat("-", 80))

	for _, p := range series.Points {
		mark := ""
		switch {
		case p.DayClassification.IsPublicHoliday:
			mark = "yes"
		case p.DayClassification.IsPreviousDayHoliday:
			mark = "after"
		}
		fmt.Printf("%-12s %-4s %-8s %10s %10s %8s %10s  %-14s %s\n",
			p.Date.Format(models.DateLayout),
			p.DayClassification.WeekdayIndex.Code(),
			mark,
			fixed(p.AdjustedFeatures.TotalOutpatient),
			fixed(p.AdjustedFeatures.IntroOutpatient),
			fixed(p.AdjustedFeatures.ER),
			fixed(p.PredictedValue),
			p.BusynessLevel,
			p.DayClassification.HolidayName,
		)
	}

	s := series.Summary
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("Days:          %d\n", s.Count)
	fmt.Printf("Mean:          %s\n", fixed(s.Mean))
	fmt.Printf("Min / Max:     %s / %s\n", fixed(s.Min), fixed(s.Max))
	fmt.Printf("Quartiles:     %s / %s / %s\n", fixed(s.Quartiles.Q1), fixed(s.Quartiles.Q2), fixed(s.Quartiles.Q3))
	if s.WeekdayMean != nil {
		fmt.Printf("Weekday mean:  %s\n", fixed(*s.WeekdayMean))
	}
	if s.WeekendMean != nil {
		fmt.Printf("Weekend mean:  %s\n", fixed(*s.WeekendMean))
	}
}
