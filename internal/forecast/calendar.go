package forecast

import (
	"errors"
	"time"

	"admission-forecast/internal/models"
)

// HolidaySource answers whether a date is a designated public holiday.
// Weekends are not holidays unless the source says so.
type HolidaySource interface {
	IsPublicHoliday(date time.Time) (bool, error)
}

// HolidayNamer is implemented by sources that can name their holidays
type HolidayNamer interface {
	HolidayName(date time.Time) string
}

// HolidayFunc adapts a plain function to HolidaySource
type HolidayFunc func(date time.Time) (bool, error)

// IsPublicHoliday calls f(date)
func (f HolidayFunc) IsPublicHoliday(date time.Time) (bool, error) {
	return f(date)
}

// Classifier derives the calendar features of a date
type Classifier struct {
	holidays HolidaySource
}

// NewClassifier creates a classifier backed by holidays
func NewClassifier(holidays HolidaySource) *Classifier {
	return &Classifier{holidays: holidays}
}

// Classify returns the weekday encoding and holiday flags of date
func (c *Classifier) Classify(date time.Time) (models.DayClassification, error) {
	day := Day(date)
	weekday := models.WeekdayOf(day)

	isHoliday, err := c.isHoliday(day)
	if err != nil {
		return models.DayClassification{}, err
	}
	prevHoliday, err := c.isHoliday(day.AddDate(0, 0, -1))
	if err != nil {
		return models.DayClassification{}, err
	}

	var name string
	if namer, ok := c.holidays.(HolidayNamer); ok && isHoliday {
		name = namer.HolidayName(day)
	}

	return models.DayClassification{
		Date:                 day,
		WeekdayIndex:         weekday,
		OneHot:               models.NewOneHot(weekday),
		IsPublicHoliday:      isHoliday,
		IsPreviousDayHoliday: prevHoliday,
		HolidayName:          name,
	}, nil
}

func (c *Classifier) isHoliday(day time.Time) (bool, error) {
	ok, err := c.holidays.IsPublicHoliday(day)
	if err != nil {
		var hsErr *models.HolidaySourceError
		if errors.As(err, &hsErr) {
			return false, err
		}
		return false, &models.HolidaySourceError{Date: day, Err: err}
	}
	return ok, nil
}

// Day truncates t to midnight UTC of its own calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
