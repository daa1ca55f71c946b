package models

import (
	"fmt"
	"strconv"
	"time"
)

// ValidationError represents invalid caller input.
// Validation errors are permanent.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// SchemaError reports a feature record that is incomplete or not numeric
type SchemaError struct {
	Field   string
	Value   string
	Message string
}

func (e *SchemaError) Error() string {
	return "schema error: " + e.Message
}

// IsTransient returns false, a malformed record never becomes valid on retry
func (e *SchemaError) IsTransient() bool {
	return false
}

// HolidaySourceError reports that the holiday calendar could not answer for Date
type HolidaySourceError struct {
	Date time.Time
	Err  error
}

func (e *HolidaySourceError) Error() string {
	return fmt.Sprintf("holiday source failed for %s: %v", e.Date.Format(DateLayout), e.Err)
}

func (e *HolidaySourceError) Unwrap() error {
	return e.Err
}

// IsTransient returns false; unsupported dates stay unsupported
func (e *HolidaySourceError) IsTransient() bool {
	return false
}

// PredictionError reports an oracle failure or a non-finite prediction for Date
type PredictionError struct {
	Date time.Time
	Err  error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed for %s: %v", e.Date.Format(DateLayout), e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// IsTransient returns true; the caller may retry the whole request
func (e *PredictionError) IsTransient() bool {
	return true
}

// DateLayout is the calendar date format used on the wire and in logs
const DateLayout = "2006-01-02"

func itoa(v int) string {
	return strconv.Itoa(v)
}
