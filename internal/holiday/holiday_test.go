package holiday

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admission-forecast/internal/forecast"
	"admission-forecast/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewCalendarSource_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"japan", Config{Country: "jp", MinYear: 2000, MaxYear: 2100}, false},
		{"upper case country", Config{Country: "US", MinYear: 2000, MaxYear: 2100}, false},
		{"unknown country", Config{Country: "xx", MinYear: 2000, MaxYear: 2100}, true},
		{"inverted range", Config{Country: "jp", MinYear: 2030, MaxYear: 2020}, true},
		{"bad extra date", Config{Country: "jp", MinYear: 2000, MaxYear: 2100, ExtraDates: []string{"2025-13-01"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCalendarSource(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCalendarSource_Japan(t *testing.T) {
	src, err := NewCalendarSource(Config{Country: "jp", MinYear: 2000, MaxYear: 2100})
	require.NoError(t, err)

	tests := []struct {
		date time.Time
		want bool
	}{
		{date(2025, 1, 1), true},
		{date(2025, 5, 5), true},
		{date(2025, 1, 6), false},
		{date(2025, 1, 4), false}, // Saturday, not a holiday
	}

	for _, tt := range tests {
		got, err := src.IsPublicHoliday(tt.date)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.date.Format("2006-01-02"))
	}

	assert.Equal(t, "New Year's Day", src.HolidayName(date(2025, 1, 1)))
	assert.Equal(t, "Coming of Age Day", src.HolidayName(date(2025, 1, 13)))
	assert.Empty(t, src.HolidayName(date(2025, 1, 6)))
	assert.Equal(t, "jp", src.Country())
}

func TestCalendarSource_OutOfRange(t *testing.T) {
	src, err := NewCalendarSource(Config{Country: "jp", MinYear: 2020, MaxYear: 2030})
	require.NoError(t, err)

	_, err = src.IsPublicHoliday(date(2019, 12, 30))
	assert.True(t, errors.Is(err, ErrOutOfRange))

	// the day before the first covered date is answerable
	_, err = src.IsPublicHoliday(date(2019, 12, 31))
	assert.NoError(t, err)

	_, err = src.IsPublicHoliday(date(2031, 1, 1))
	assert.True(t, errors.Is(err, ErrOutOfRange))

	_, err = src.IsPublicHoliday(date(2030, 12, 31))
	assert.NoError(t, err)
}

func TestCalendarSource_ExtraDates(t *testing.T) {
	src, err := NewCalendarSource(Config{
		Country:    "jp",
		MinYear:    2000,
		MaxYear:    2100,
		ExtraDates: []string{"2025-12-29", " 2025-12-30 "},
	})
	require.NoError(t, err)

	for _, d := range []time.Time{date(2025, 12, 29), date(2025, 12, 30)} {
		ok, err := src.IsPublicHoliday(d)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, "Hospital holiday", src.HolidayName(date(2025, 12, 29)))
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(date(2025, 1, 1))

	ok, err := src.IsPublicHoliday(time.Date(2025, 1, 1, 18, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = src.IsPublicHoliday(date(2025, 1, 2))
	require.NoError(t, err)
	assert.False(t, ok)

	var empty *StaticSource
	ok, err = empty.IsPublicHoliday(date(2025, 1, 1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCalendarSource_ClassifierCarriesHolidayName(t *testing.T) {
	src, err := NewCalendarSource(Config{Country: "jp", MinYear: 2000, MaxYear: 2100})
	require.NoError(t, err)
	c := forecast.NewClassifier(src)

	day, err := c.Classify(date(2025, 1, 13))
	require.NoError(t, err)
	assert.True(t, day.IsPublicHoliday)
	assert.Equal(t, "Coming of Age Day", day.HolidayName)

	day, err = c.Classify(date(2025, 1, 14))
	require.NoError(t, err)
	assert.True(t, day.IsPreviousDayHoliday)
	assert.Empty(t, day.HolidayName)
}

func TestCalendarSource_FirstCoveredMonthRolls(t *testing.T) {
	src, err := NewCalendarSource(Config{Country: "jp", MinYear: 2000, MaxYear: 2100})
	require.NoError(t, err)

	oracle := forecast.OracleFunc(func(_ context.Context, r models.FeatureRecord) (float64, error) {
		return r[models.FeatureTotalOutpatient] / 10, nil
	})
	baseline := models.OperationalBaseline{TotalOutpatient: 500, IntroOutpatient: 20, ERCount: 15, BedCount: 280}

	series, err := forecast.NewRoller(oracle, src).RollMonth(context.Background(), baseline, 2000, 1)
	require.NoError(t, err)
	require.Len(t, series.Points, 31)
	assert.True(t, series.Points[0].DayClassification.IsPublicHoliday)
	assert.False(t, series.Points[0].DayClassification.IsPreviousDayHoliday)
}
