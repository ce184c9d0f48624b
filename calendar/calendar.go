// Package calendar decides whether automatic clock actions should happen on a
// given date, from calendar entries reported by the attendance service.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"goclockin/internal/timeutil"
)

// ErrDataUnavailable is returned when no calendar entry covers the date.
var ErrDataUnavailable = errors.New("calendar data unavailable")

// Day is one normalized calendar entry. IsWorkingWeekday already encodes the
// account's configured work week.
type Day struct {
	Date             time.Time
	IsWorkingWeekday bool
	IsHoliday        bool
	IsLeave          bool
	// Label carries the leave or holiday name when the service reports one.
	Label string
}

// Verdict is the outcome of evaluating one date.
type Verdict struct {
	Working bool
	Reason  string
}

// IsWorkingDay reports whether clock actions should occur on date.
func IsWorkingDay(date time.Time, days []Day) (bool, error) {
	verdict, err := Evaluate(date, days)
	if err != nil {
		return false, err
	}
	return verdict.Working, nil
}

// Evaluate applies the decision order leave, holiday, weekday flag to the
// entry for date. The first entry matching the date is used.
func Evaluate(date time.Time, days []Day) (Verdict, error) {
	day, ok := find(date, days)
	if !ok {
		return Verdict{}, fmt.Errorf("%w: no entry for %s", ErrDataUnavailable, date.Format(timeutil.DayLayout))
	}

	switch {
	case day.IsLeave:
		return Verdict{Working: false, Reason: "Leave day: " + labelOr(day.Label, "Leave")}, nil
	case day.IsHoliday:
		return Verdict{Working: false, Reason: "Holiday: " + labelOr(day.Label, "Holiday")}, nil
	case !day.IsWorkingWeekday:
		return Verdict{Working: false, Reason: "Non-working day: " + day.Date.Weekday().String()}, nil
	default:
		return Verdict{Working: true, Reason: "Working day"}, nil
	}
}

func find(date time.Time, days []Day) (Day, bool) {
	for _, day := range days {
		if timeutil.SameDay(day.Date, date) {
			return day, true
		}
	}
	return Day{}, false
}

func labelOr(label, fallback string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return fallback
	}
	return label
}
