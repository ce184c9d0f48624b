package cmd

import "github.com/spf13/cobra"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage goclockin configuration file values.",
	Long: `Create, edit, display, set, and delete the goclockin configuration file.

The configuration holds the Factorial URL, the account email, the workday length,
event timing (login delay, heartbeat, sleep gap), dispatcher retries, the local
web status page, notifications, and storage locations. The password is never part
of the configuration; use "goclockin auth login" for that.`,
	Example: `
  # Create default config in $HOME/.goclockin.yaml
  goclockin config create

  # Show active config and source file
  goclockin config show

  # Change one value
  goclockin config set workday.hours 7.5

  # Open active config in editor (creates example if missing)
  goclockin config edit

  # Delete active config file
  goclockin config delete
`,
}

func init() {
	rootCmd.AddCommand(configCmd)
}
