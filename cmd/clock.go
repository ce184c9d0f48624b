package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"goclockin/attendance"
	"goclockin/events"
)

var clockDirect bool

var clockInCmd = &cobra.Command{
	Use:   "clock-in",
	Short: "Clock in now, regardless of the working-day calendar",
	Example: `
  goclockin clock-in
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runManualClock(cmd, events.KindManualIn)
	},
}

var clockOutCmd = &cobra.Command{
	Use:   "clock-out",
	Short: "Clock out now, regardless of the working-day calendar",
	Example: `
  goclockin clock-out
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runManualClock(cmd, events.KindManualOut)
	},
}

// runManualClock goes through a running daemon so the action is serialized
// with automatic ones, and runs directly when no daemon answers.
func runManualClock(cmd *cobra.Command, kind events.Kind) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if !clockDirect {
		cfg, _ := loadConfig()
		path := "/api/clock-in"
		if kind == events.KindManualOut {
			path = "/api/clock-out"
		}
		outcome, err := newDaemonClient(cfg.Web.Listen).post(ctx, path)
		if err == nil {
			fmt.Println(outcome.Message)
			if outcome.Result == attendance.ResultFailed || outcome.Result == attendance.ResultConflict {
				return fmt.Errorf("%s", outcome.Message)
			}
			return nil
		}
		if !errors.Is(err, errDaemonUnavailable) {
			return err
		}
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var outcome attendance.Outcome
	if kind == events.KindManualOut {
		outcome = a.service.ManualClockOut(ctx)
	} else {
		outcome = a.service.ManualClockIn(ctx)
	}
	fmt.Println(outcome.Message())
	switch outcome.Result() {
	case attendance.ResultFailed:
		return outcome.Err
	case attendance.ResultConflict:
		return fmt.Errorf("%s", outcome.Message())
	}
	return nil
}

func init() {
	rootCmd.AddCommand(clockInCmd)
	rootCmd.AddCommand(clockOutCmd)

	for _, c := range []*cobra.Command{clockInCmd, clockOutCmd} {
		c.Flags().BoolVar(&clockDirect, "direct", false, "Do not go through a running daemon")
	}
}
