package web

import (
	"sort"
	"time"

	"goclockin/internal/timeutil"
	"goclockin/output"
	"goclockin/reconcile"
	"goclockin/storage"
)

type DayRow struct {
	Date        time.Time
	WorkedHours float64
	BreakHours  float64
	Open        bool
	Shifts      []ShiftRow
}

type ShiftRow struct {
	ID           string
	Start        string
	End          string
	DurationMins int
	Open         bool
}

type MonthDayRow struct {
	Date        time.Time
	WorkedHours float64
	ShiftCount  int
	Open        bool
	Weekend     bool
}

type MonthSummary struct {
	Days       []MonthDayRow
	TotalHours float64
}

type JournalRow struct {
	ID          int64      `json:"id"`
	At          time.Time  `json:"at"`
	Kind        string     `json:"kind"`
	Source      string     `json:"source"`
	Decision    string     `json:"decision"`
	ShiftID     string     `json:"shiftId,omitempty"`
	EffectiveAt *time.Time `json:"effectiveAt,omitempty"`
	Warning     string     `json:"warning,omitempty"`
	Outcome     string     `json:"outcome"`
	Error       string     `json:"error,omitempty"`
}

// BuildDailyView groups shifts by day. Open shifts from today run until now.
func BuildDailyView(shifts []reconcile.Shift, now time.Time) []DayRow {
	byDay := make(map[string][]reconcile.Shift)
	for _, shift := range shifts {
		key := shift.ClockIn.In(time.Local).Format(timeutil.DayLayout)
		byDay[key] = append(byDay[key], shift)
	}

	summaries := output.BuildDailySummaries(shifts, now)
	out := make([]DayRow, 0, len(summaries))
	for _, summary := range summaries {
		dayShifts := append([]reconcile.Shift(nil), byDay[summary.Date]...)
		sort.Slice(dayShifts, func(i, j int) bool {
			return dayShifts[i].ClockIn.Before(dayShifts[j].ClockIn)
		})

		rows := make([]ShiftRow, 0, len(dayShifts))
		for _, shift := range dayShifts {
			rows = append(rows, shiftRow(shift, now))
		}
		out = append(out, DayRow{
			Date:        timeutil.StartOfDay(summary.StartDateTime.In(time.Local)),
			WorkedHours: summary.WorkedHours,
			BreakHours:  summary.BreakHours,
			Open:        summary.Open,
			Shifts:      rows,
		})
	}
	return out
}

func shiftRow(shift reconcile.Shift, now time.Time) ShiftRow {
	row := ShiftRow{ID: shift.ID, Start: shift.ClockIn.Format("15:04")}
	end := shift.ClockIn
	switch {
	case shift.ClockOut != nil:
		end = *shift.ClockOut
		row.End = end.Format("15:04")
	default:
		row.Open = true
		if timeutil.SameDay(shift.ClockIn, now) {
			end = now
		}
	}
	row.DurationMins = max(0, int(end.Sub(shift.ClockIn).Minutes()))
	return row
}

func BuildMonthlyView(days []DayRow) MonthSummary {
	sorted := append([]DayRow(nil), days...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	summary := MonthSummary{
		Days: make([]MonthDayRow, 0, len(sorted)),
	}
	for _, day := range sorted {
		weekday := day.Date.Weekday()
		summary.Days = append(summary.Days, MonthDayRow{
			Date:        timeutil.StartOfDay(day.Date),
			WorkedHours: day.WorkedHours,
			ShiftCount:  len(day.Shifts),
			Open:        day.Open,
			Weekend:     weekday == time.Saturday || weekday == time.Sunday,
		})
		summary.TotalHours += day.WorkedHours
	}
	return summary
}

func fillMonthDays(monthStart time.Time, rows []DayRow) []DayRow {
	index := make(map[string]DayRow, len(rows))
	for _, row := range rows {
		index[timeutil.StartOfDay(row.Date).Format(timeutil.DayLayout)] = row
	}

	monthEnd := timeutil.EndOfMonth(monthStart)
	out := make([]DayRow, 0, monthEnd.Day())
	for day := monthStart; !day.After(monthEnd); day = day.AddDate(0, 0, 1) {
		if row, ok := index[day.Format(timeutil.DayLayout)]; ok {
			out = append(out, row)
			continue
		}
		out = append(out, DayRow{Date: day})
	}
	return out
}

func journalRows(records []storage.ActionRecord) []JournalRow {
	out := make([]JournalRow, 0, len(records))
	for _, record := range records {
		out = append(out, JournalRow{
			ID:          record.ID,
			At:          record.At,
			Kind:        record.Kind,
			Source:      record.Source,
			Decision:    record.Decision,
			ShiftID:     record.ShiftID,
			EffectiveAt: record.EffectiveAt,
			Warning:     record.Warning,
			Outcome:     record.Outcome,
			Error:       record.Error,
		})
	}
	return out
}
