package shared

import (
	"fmt"
	"time"
)

// MonthRange returns the half-open interval [first day of month, first day of next month).
func MonthRange(month, year int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// ValidateMonth checks a billing month reference.
func ValidateMonth(month, year int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month must be between 1 and 12", ErrValidation)
	}
	if year < 2000 || year > 2100 {
		return fmt.Errorf("%w: year out of range", ErrValidation)
	}
	return nil
}

// PreviousMonth steps back n months from the given reference.
func PreviousMonth(month, year, n int) (int, int) {
	t := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -n, 0)
	return int(t.Month()), t.Year()
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
