package output

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"goclockin/internal/timeutil"
	"goclockin/reconcile"
)

// DailySummary aggregates the shifts of one day. An open shift counts up to
// now when it started today and is otherwise left out of the worked time.
type DailySummary struct {
	Date          string
	StartDateTime time.Time
	EndDateTime   time.Time
	WorkedHours   float64
	BreakHours    float64
	ShiftCount    int
	Open          bool
}

type interval struct {
	start time.Time
	end   time.Time
}

func BuildDailySummaries(shifts []reconcile.Shift, now time.Time) []DailySummary {
	if len(shifts) == 0 {
		return []DailySummary{}
	}

	byDay := make(map[string][]reconcile.Shift)
	for _, shift := range shifts {
		day := shift.ClockIn.In(time.Local).Format(timeutil.DayLayout)
		byDay[day] = append(byDay[day], shift)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	summaries := make([]DailySummary, 0, len(days))
	for _, day := range days {
		summaries = append(summaries, summarizeDay(day, byDay[day], now))
	}
	return summaries
}

func summarizeDay(day string, shifts []reconcile.Shift, now time.Time) DailySummary {
	sort.Slice(shifts, func(i, j int) bool {
		return shifts[i].ClockIn.Before(shifts[j].ClockIn)
	})

	summary := DailySummary{Date: day, ShiftCount: len(shifts)}
	intervals := make([]interval, 0, len(shifts))
	worked := time.Duration(0)
	for _, shift := range shifts {
		end := shift.ClockIn
		switch {
		case shift.ClockOut != nil:
			end = *shift.ClockOut
		case timeutil.SameDay(shift.ClockIn, now) && now.After(shift.ClockIn):
			summary.Open = true
			end = now
		default:
			summary.Open = true
		}
		if end.After(shift.ClockIn) {
			worked += end.Sub(shift.ClockIn)
		}
		intervals = append(intervals, interval{start: shift.ClockIn, end: end})
	}

	start := intervals[0].start
	end := start
	for _, item := range intervals {
		if item.end.After(end) {
			end = item.end
		}
	}

	breakDuration := end.Sub(start) - mergedCoverageWithinWindow(intervals, start, end)
	if breakDuration < 0 {
		breakDuration = 0
	}

	summary.StartDateTime = start
	summary.EndDateTime = end
	summary.WorkedHours = roundHours(worked.Hours())
	summary.BreakHours = roundHours(breakDuration.Hours())
	return summary
}

func mergedCoverageWithinWindow(intervals []interval, windowStart, windowEnd time.Time) time.Duration {
	if len(intervals) == 0 || !windowEnd.After(windowStart) {
		return 0
	}

	clipped := make([]interval, 0, len(intervals))
	for _, candidate := range intervals {
		start := maxTime(candidate.start, windowStart)
		end := minTime(candidate.end, windowEnd)
		if end.After(start) {
			clipped = append(clipped, interval{start: start, end: end})
		}
	}
	if len(clipped) == 0 {
		return 0
	}

	sort.Slice(clipped, func(i, j int) bool {
		return clipped[i].start.Before(clipped[j].start)
	})

	currentStart := clipped[0].start
	currentEnd := clipped[0].end
	covered := time.Duration(0)
	for _, candidate := range clipped[1:] {
		if candidate.start.After(currentEnd) {
			covered += currentEnd.Sub(currentStart)
			currentStart = candidate.start
			currentEnd = candidate.end
			continue
		}
		if candidate.end.After(currentEnd) {
			currentEnd = candidate.end
		}
	}
	covered += currentEnd.Sub(currentStart)
	return covered
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func roundHours(value float64) float64 {
	return math.Round(value*100) / 100
}

var summaryHeaders = []string{"Date", "StartTime", "EndTime", "WorkedHours", "BreakHours", "ShiftCount", "Open"}

func summaryRow(summary DailySummary) []string {
	return []string{
		summary.Date,
		summary.StartDateTime.Format("15:04"),
		summary.EndDateTime.Format("15:04"),
		fmt.Sprintf("%.2f", summary.WorkedHours),
		fmt.Sprintf("%.2f", summary.BreakHours),
		strconv.Itoa(summary.ShiftCount),
		strconv.FormatBool(summary.Open),
	}
}

func WriteDailySummaries(path, format string, summaries []DailySummary) error {
	rows := make([][]string, 0, len(summaries))
	for _, summary := range summaries {
		rows = append(rows, summaryRow(summary))
	}

	switch normalizeFormat(format) {
	case "csv":
		return writeCSV(path, summaryHeaders, rows)
	case "excel", "xlsx":
		return writeExcel(path, "Shifts", summaryHeaders, rows)
	default:
		return fmt.Errorf("unsupported output format for daily summaries: %s", format)
	}
}
