package calendar

import (
	"fmt"
	"strings"
	"time"

	"goclockin/internal/timeutil"
)

// RawHoliday is a company holiday attached to a raw calendar entry.
type RawHoliday struct {
	Summary string `json:"summary"`
}

// RawDay is one entry of the attendance calendar payload.
type RawDay struct {
	ID          string       `json:"id"`
	Day         int          `json:"day"`
	Date        string       `json:"date"`
	IsLaborable bool         `json:"is_laborable"`
	IsLeave     bool         `json:"is_leave"`
	LeaveName   string       `json:"leave_name"`
	Holidays    []RawHoliday `json:"holidays"`
}

// Normalize converts raw entries of one month into Days in loc. Entries
// without a parseable date fall back to the day-of-month within month.
//
// The service marks holidays as non-laborable; for those entries the weekday
// flag is derived from the calendar weekday since a holiday never reaches
// the weekday rule.
func Normalize(raw []RawDay, month time.Time, loc *time.Location) ([]Day, error) {
	if loc == nil {
		loc = time.Local
	}
	out := make([]Day, 0, len(raw))
	for i, entry := range raw {
		date, err := rawDate(entry, month, loc)
		if err != nil {
			return nil, fmt.Errorf("calendar entry %d: %w", i, err)
		}

		holiday := len(entry.Holidays) > 0
		label := strings.TrimSpace(entry.LeaveName)
		if !entry.IsLeave && holiday {
			label = holidayLabel(entry.Holidays)
		}

		working := entry.IsLaborable
		if holiday && !entry.IsLaborable {
			working = isWeekday(date)
		}

		out = append(out, Day{
			Date:             date,
			IsWorkingWeekday: working,
			IsHoliday:        holiday,
			IsLeave:          entry.IsLeave,
			Label:            label,
		})
	}
	return out, nil
}

func rawDate(entry RawDay, month time.Time, loc *time.Location) (time.Time, error) {
	if value := strings.TrimSpace(entry.Date); value != "" {
		parsed, err := time.ParseInLocation(timeutil.DayLayout, value, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
		}
		return parsed, nil
	}
	if entry.Day < 1 || entry.Day > 31 {
		return time.Time{}, fmt.Errorf("invalid day of month %d", entry.Day)
	}
	date := time.Date(month.Year(), month.Month(), entry.Day, 0, 0, 0, 0, loc)
	if date.Month() != month.Month() {
		return time.Time{}, fmt.Errorf("day %d out of range for %s", entry.Day, month.Format("2006-01"))
	}
	return date, nil
}

func holidayLabel(holidays []RawHoliday) string {
	names := make([]string, 0, len(holidays))
	for _, holiday := range holidays {
		if name := strings.TrimSpace(holiday.Summary); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func isWeekday(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}
