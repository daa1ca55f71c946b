// Package holiday provides public holiday sources for the forecast pipeline.
package holiday

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/jp"
	"github.com/rickar/cal/v2/us"

	"admission-forecast/internal/models"
)

// ErrOutOfRange is returned for dates outside a source's supported years
var ErrOutOfRange = errors.New("date outside supported holiday range")

// Config selects and bounds a CalendarSource
type Config struct {
	Country    string
	MinYear    int
	MaxYear    int
	ExtraDates []string
}

// CalendarSource answers holiday queries from a rickar/cal country calendar.
// It is read-only after construction.
type CalendarSource struct {
	country string
	cal     *cal.BusinessCalendar
	minYear int
	maxYear int
	extra   *StaticSource
}

// NewCalendarSource builds the calendar for cfg.Country ("jp" or "us")
func NewCalendarSource(cfg Config) (*CalendarSource, error) {
	holidays, err := countryHolidays(cfg.Country)
	if err != nil {
		return nil, err
	}
	if cfg.MinYear > cfg.MaxYear {
		return nil, fmt.Errorf("holiday min_year %d is after max_year %d", cfg.MinYear, cfg.MaxYear)
	}

	extra, err := ParseStatic(cfg.ExtraDates)
	if err != nil {
		return nil, fmt.Errorf("invalid holiday extra_dates: %w", err)
	}

	c := cal.NewBusinessCalendar()
	c.AddHoliday(holidays...)

	return &CalendarSource{
		country: strings.ToLower(cfg.Country),
		cal:     c,
		minYear: cfg.MinYear,
		maxYear: cfg.MaxYear,
		extra:   extra,
	}, nil
}

func countryHolidays(country string) ([]*cal.Holiday, error) {
	switch strings.ToLower(country) {
	case "jp":
		return jp.Holidays, nil
	case "us":
		return us.Holidays, nil
	default:
		return nil, fmt.Errorf("unsupported holiday country %q", country)
	}
}

// Country returns the lower-case country code
func (s *CalendarSource) Country() string {
	return s.country
}

// covers reports whether date can be looked up. December 31 of the year
// before MinYear is accepted so that MinYear-01-01 can check its previous day.
func (s *CalendarSource) covers(date time.Time) bool {
	y := date.Year()
	if y == s.minYear-1 && date.Month() == time.December && date.Day() == 31 {
		return true
	}
	return y >= s.minYear && y <= s.maxYear
}

// IsPublicHoliday reports whether date is a public holiday, substitute
// (observed) holidays and configured extra dates included
func (s *CalendarSource) IsPublicHoliday(date time.Time) (bool, error) {
	if !s.covers(date) {
		return false, fmt.Errorf("%w: year %d not in [%d, %d]", ErrOutOfRange, date.Year(), s.minYear, s.maxYear)
	}
	if ok, _ := s.extra.IsPublicHoliday(date); ok {
		return true, nil
	}
	actual, observed, _ := s.cal.IsHoliday(day(date))
	return actual || observed, nil
}

// HolidayName returns the holiday name for date, or "" when it is not a holiday
func (s *CalendarSource) HolidayName(date time.Time) string {
	if ok, _ := s.extra.IsPublicHoliday(date); ok {
		return "Hospital holiday"
	}
	actual, observed, h := s.cal.IsHoliday(day(date))
	if (actual || observed) && h != nil {
		return h.Name
	}
	return ""
}

// StaticSource is a fixed set of holiday dates
type StaticSource struct {
	dates map[string]struct{}
}

// NewStaticSource returns a source containing dates
func NewStaticSource(dates ...time.Time) *StaticSource {
	s := &StaticSource{dates: make(map[string]struct{}, len(dates))}
	for _, d := range dates {
		s.dates[d.Format(models.DateLayout)] = struct{}{}
	}
	return s
}

// ParseStatic builds a StaticSource from YYYY-MM-DD strings
func ParseStatic(values []string) (*StaticSource, error) {
	dates := make([]time.Time, 0, len(values))
	for _, v := range values {
		d, err := time.Parse(models.DateLayout, strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", v, err)
		}
		dates = append(dates, d)
	}
	return NewStaticSource(dates...), nil
}

// IsPublicHoliday never fails
func (s *StaticSource) IsPublicHoliday(date time.Time) (bool, error) {
	if s == nil {
		return false, nil
	}
	_, ok := s.dates[date.Format(models.DateLayout)]
	return ok, nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}
