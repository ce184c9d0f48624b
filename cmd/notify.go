package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"goclockin/attendance"
	"goclockin/events"
)

var notifyDirect bool

var notifyCmd = &cobra.Command{
	Use:   "notify <login|wake|sleep|logout>",
	Short: "Report a session lifecycle event",
	Long: `Report a lifecycle event observed outside goclockin, for example from a
login script, a systemd sleep hook, or a screen locker.

The event goes to the running daemon so it is ordered with the events the daemon
observes itself. login and wake clock in; sleep and logout clock out. Both are
skipped on days that are not working days.`,
	Example: `
  # ~/.config/autostart or a login hook
  goclockin notify login

  # /usr/lib/systemd/system-sleep hook
  goclockin notify sleep
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		kind, err := events.ParseKind(args[0])
		if err != nil {
			return err
		}

		if !notifyDirect {
			cfg, _ := loadConfig()
			path := "/api/events/" + url.PathEscape(string(kind)) + "?origin=cli"
			outcome, err := newDaemonClient(cfg.Web.Listen).post(ctx, path)
			if err == nil {
				fmt.Println(outcome.Message)
				if outcome.Result == attendance.ResultFailed {
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

		ev := events.Event{Kind: kind, At: time.Now(), Origin: "cli"}
		outcome := a.service.HandleAction(ctx, ev.Request())
		fmt.Println(outcome.Message())
		if outcome.Result() == attendance.ResultFailed {
			return outcome.Err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)

	notifyCmd.Flags().BoolVar(&notifyDirect, "direct", false, "Do not go through a running daemon")
}
