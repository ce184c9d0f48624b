package timeutil

import (
	"fmt"
	"time"
)

const DayLayout = "2006-01-02"

func StartOfDay(value time.Time) time.Time {
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, value.Location())
}

func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// StartOfMonth returns midnight on the first day of value's month.
func StartOfMonth(value time.Time) time.Time {
	return time.Date(value.Year(), value.Month(), 1, 0, 0, 0, 0, value.Location())
}

// EndOfMonth returns midnight on the last day of value's month.
func EndOfMonth(value time.Time) time.Time {
	return StartOfMonth(value).AddDate(0, 1, -1)
}

// AtClock places an "HH:MM" wall-clock value on the given day.
func AtClock(day time.Time, clock string) (time.Time, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, day.Location()), nil
}

// FormatDuration renders a duration as "6h 23m" or "45m". Negative values are
// rendered by magnitude; callers decide how to present overtime.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	total := int(d / time.Minute)
	hours := total / 60
	minutes := total % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// RemainingWorkday returns how much of a workday of the given length is left
// at now for a shift started at clockIn. The result is negative in overtime.
func RemainingWorkday(clockIn, now time.Time, workdayHours float64) time.Duration {
	workday := time.Duration(workdayHours * float64(time.Hour))
	worked := now.Truncate(time.Minute).Sub(clockIn.Truncate(time.Minute))
	return workday - worked
}
