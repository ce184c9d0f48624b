package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"goclockin/reconcile"
	"goclockin/storage"
)

func TestBuildDailySummaries_CalculatesWorkedAndBreakHours(t *testing.T) {
	t.Parallel()

	shifts := []reconcile.Shift{
		closedShift(t, "1", "2026-01-05T08:00:00+01:00", "2026-01-05T12:00:00+01:00"),
		closedShift(t, "2", "2026-01-05T13:00:00+01:00", "2026-01-05T17:30:00+01:00"),
	}

	summaries := BuildDailySummaries(shifts, mustParse(t, "2026-02-01T10:00:00+01:00"))
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}

	summary := summaries[0]
	assertTimeEqual(t, mustParse(t, "2026-01-05T08:00:00+01:00"), summary.StartDateTime, "start time")
	assertTimeEqual(t, mustParse(t, "2026-01-05T17:30:00+01:00"), summary.EndDateTime, "end time")
	assertFloatEqual(t, 8.5, summary.WorkedHours, "worked hours")
	assertFloatEqual(t, 1.0, summary.BreakHours, "break hours")
	if summary.ShiftCount != 2 || summary.Open {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestBuildDailySummaries_OpenShiftCountsUntilNowOnlyToday(t *testing.T) {
	t.Parallel()

	now := mustParse(t, "2026-01-06T11:30:00+01:00")
	shifts := []reconcile.Shift{
		{ID: "9", ClockIn: mustParse(t, "2026-01-06T09:00:00+01:00")},
		{ID: "8", ClockIn: mustParse(t, "2026-01-05T09:00:00+01:00")},
	}

	summaries := BuildDailySummaries(shifts, now)
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}

	yesterday, today := summaries[0], summaries[1]
	if yesterday.Date != "2026-01-05" || !yesterday.Open {
		t.Fatalf("unexpected summary for stale open shift: %+v", yesterday)
	}
	assertFloatEqual(t, 0, yesterday.WorkedHours, "stale open shift worked hours")

	if today.Date != "2026-01-06" || !today.Open {
		t.Fatalf("unexpected summary for today: %+v", today)
	}
	assertFloatEqual(t, 2.5, today.WorkedHours, "open shift worked hours")
}

func TestBuildDailySummaries_Empty(t *testing.T) {
	t.Parallel()

	if got := BuildDailySummaries(nil, time.Now()); len(got) != 0 {
		t.Fatalf("expected no summaries, got %d", len(got))
	}
}

func TestWriteDailySummaries_CSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shifts.csv")
	summaries := BuildDailySummaries([]reconcile.Shift{
		closedShift(t, "1", "2026-01-05T08:00:00+01:00", "2026-01-05T16:15:00+01:00"),
	}, time.Now())
	if err := WriteDailySummaries(path, "csv", summaries); err != nil {
		t.Fatalf("write summaries: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d rows", len(rows))
	}
	if rows[1][0] != "2026-01-05" || rows[1][3] != "8.25" {
		t.Fatalf("unexpected summary row: %v", rows[1])
	}
}

func TestWriteDailySummaries_RejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	if err := WriteDailySummaries(filepath.Join(t.TempDir(), "x.pdf"), "pdf", nil); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestJournalWriters(t *testing.T) {
	t.Parallel()

	effective := mustParse(t, "2026-03-02T09:00:00+01:00")
	records := []storage.ActionRecord{
		{
			Account:     "ana@example.com",
			Kind:        "clock-in",
			Source:      "login",
			At:          mustParse(t, "2026-03-02T09:00:00+01:00"),
			Decision:    "create",
			ShiftID:     "41",
			EffectiveAt: &effective,
			Outcome:     "ok",
		},
		{
			Account:  "ana@example.com",
			Kind:     "clock-out",
			Source:   "sleep",
			At:       mustParse(t, "2026-03-02T13:00:00+01:00"),
			Decision: "skipped",
			Outcome:  "failed",
			Error:    "transport error",
		},
	}

	dir := t.TempDir()
	csvWriter, err := WriterForFormat("CSV")
	if err != nil {
		t.Fatalf("unexpected csv writer error: %v", err)
	}
	csvPath := filepath.Join(dir, "journal.csv")
	if err := csvWriter.Write(csvPath, records); err != nil {
		t.Fatalf("write csv journal: %v", err)
	}
	rows := readCSV(t, csvPath)
	if len(rows) != 3 {
		t.Fatalf("expected 3 csv rows, got %d", len(rows))
	}
	if rows[1][5] != "41" || rows[1][6] != "2026-03-02T09:00:00+01:00" {
		t.Fatalf("unexpected first journal row: %v", rows[1])
	}
	if rows[2][6] != "" || rows[2][9] != "transport error" {
		t.Fatalf("unexpected second journal row: %v", rows[2])
	}

	excelWriter, err := WriterForFormat("xlsx")
	if err != nil {
		t.Fatalf("unexpected excel writer error: %v", err)
	}
	excelPath := filepath.Join(dir, "journal.xlsx")
	if err := excelWriter.Write(excelPath, records); err != nil {
		t.Fatalf("write excel journal: %v", err)
	}
	file, err := excelize.OpenFile(excelPath)
	if err != nil {
		t.Fatalf("open excel journal: %v", err)
	}
	defer file.Close()
	value, err := file.GetCellValue("Journal", "C3")
	if err != nil {
		t.Fatalf("read excel cell: %v", err)
	}
	if value != "clock-out" {
		t.Fatalf("unexpected excel value: %q", value)
	}

	if _, err := WriterForFormat("pdf"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func closedShift(t *testing.T, id, start, end string) reconcile.Shift {
	t.Helper()
	out := mustParse(t, end)
	return reconcile.Shift{ID: id, ClockIn: mustParse(t, start), ClockOut: &out}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed
}

func assertTimeEqual(t *testing.T, expected, actual time.Time, label string) {
	t.Helper()
	if !expected.Equal(actual) {
		t.Fatalf("unexpected %s: expected %s, got %s", label, expected.Format(time.RFC3339), actual.Format(time.RFC3339))
	}
}

func assertFloatEqual(t *testing.T, expected, actual float64, label string) {
	t.Helper()
	if expected != actual {
		t.Fatalf("unexpected %s: expected %.2f, got %.2f", label, expected, actual)
	}
}
