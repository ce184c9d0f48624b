package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"goclockin/attendance"
)

var (
	statusJSON    bool
	statusDirect  bool
	statusRefresh bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's clock state",
	Long: `Show whether you are clocked in today and how much of the workday remains.

The status is read from a running daemon when one is reachable on web.listen;
otherwise it is computed directly against Factorial.`,
	Example: `
  goclockin status
  goclockin status --json
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if !statusDirect {
			cfg, _ := loadConfig()
			status, err := newDaemonClient(cfg.Web.Listen).status(ctx, statusRefresh)
			if err == nil {
				return printStatus(status.Status)
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
		return printStatus(a.service.CurrentStatus(ctx))
	},
}

func printStatus(status attendance.Status) error {
	if statusJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(struct {
			attendance.Status
			Summary string `json:"summary"`
		}{status, status.Summary()})
	}
	if status.Email != "" {
		fmt.Printf("Account: %s\n", status.Email)
	}
	fmt.Println(status.Summary())
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print status as JSON")
	statusCmd.Flags().BoolVar(&statusDirect, "direct", false, "Do not ask a running daemon; query Factorial directly")
	statusCmd.Flags().BoolVar(&statusRefresh, "refresh", false, "Ask the daemon to refresh before answering")
}
