package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"goclockin/internal/timeutil"
)

var (
	workdayDate    string
	workdayRefresh bool
)

var workdayCmd = &cobra.Command{
	Use:   "workday",
	Short: "Tell whether a date is a working day",
	Long: `Evaluate the Factorial calendar for a date.

Leave days, holidays and configured non-working weekdays are not working days.
The calendar is cached for the rest of the day; --refresh fetches it again.`,
	Example: `
  goclockin workday
  goclockin workday --date 2026-03-19 --refresh
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		date := timeutil.StartOfDay(time.Now())
		if raw := strings.TrimSpace(workdayDate); raw != "" {
			parsed, err := time.ParseInLocation(timeutil.DayLayout, raw, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --date %q (expected YYYY-MM-DD)", raw)
			}
			date = parsed
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		verdict, err := a.service.WorkingDay(ctx, date, workdayRefresh)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s): %s\n", date.Format(timeutil.DayLayout), date.Weekday(), verdict.Reason)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workdayCmd)

	workdayCmd.Flags().StringVar(&workdayDate, "date", "", "Date to evaluate, format YYYY-MM-DD (default: today)")
	workdayCmd.Flags().BoolVar(&workdayRefresh, "refresh", false, "Bypass the cached calendar")
}
