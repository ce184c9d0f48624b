package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"goclockin/internal/timeutil"
	"goclockin/output"
)

var (
	exportFormat string
	exportMode   string
	exportOutput string
	exportMonth  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the action journal or Factorial shifts to CSV/Excel",
	Long: `Export one month of clocking data.

Modes:
- journal: every clock action goclockin attempted, with decision and outcome (local SQLite)
- shifts: per-day aggregates of the shifts recorded in Factorial (start/end, worked hours, break hours)

Output format can be selected explicitly via --format or inferred from --output extension.`,
	Example: `
  # Export this month's journal to CSV
  goclockin export --output ./journal.csv

  # Export February's Factorial shifts to Excel
  goclockin export --mode shifts --month 2026-02 --output ./shifts.xlsx

  # Force Excel format independent of extension
  goclockin export --format excel --output ./journal.out
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		format := exportFormat
		if strings.TrimSpace(format) == "" {
			format = detectExportFormat(exportOutput)
		}
		month, err := parseExportMonth(exportMonth, time.Now())
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		mode := strings.TrimSpace(strings.ToLower(exportMode))
		switch mode {
		case "", "journal":
			records, err := a.store.ListActions(a.service.Email(), month, month.AddDate(0, 1, 0))
			if err != nil {
				return err
			}
			writer, writerErr := output.WriterForFormat(format)
			if writerErr != nil {
				return writerErr
			}
			if err := writer.Write(exportOutput, records); err != nil {
				return err
			}
			fmt.Printf("Export completed. Rows: %d, Mode: journal, Month: %s, Format: %s, File: %s\n", len(records), month.Format("2006-01"), format, exportOutput)
		case "shifts":
			shifts, err := a.service.MonthShifts(ctx, month)
			if err != nil {
				return err
			}
			summaries := output.BuildDailySummaries(shifts, time.Now())
			if err := output.WriteDailySummaries(exportOutput, format, summaries); err != nil {
				return err
			}
			fmt.Printf("Export completed. Days: %d, Mode: shifts, Month: %s, Format: %s, File: %s\n", len(summaries), month.Format("2006-01"), format, exportOutput)
		default:
			return fmt.Errorf("unsupported export mode: %s (supported: journal, shifts)", exportMode)
		}
		return nil
	},
}

func detectExportFormat(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "csv":
		return "csv"
	case "xlsx", "xlsm", "xls":
		return "excel"
	default:
		return "csv"
	}
}

// parseExportMonth returns the first day of the YYYY-MM month in local time,
// or of now's month when value is empty.
func parseExportMonth(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return timeutil.StartOfMonth(now.In(time.Local)), nil
	}
	parsed, err := time.ParseInLocation("2006-01", value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --month %q (expected YYYY-MM)", value)
	}
	return parsed, nil
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportMode, "mode", "journal", "Export mode: journal|shifts")
	exportCmd.Flags().StringVar(&exportMonth, "month", "", "Month to export as YYYY-MM (default: current month)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "Output format: csv|excel (optional, inferred from output extension)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path")

	_ = exportCmd.MarkFlagRequired("output")
}
