package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"goclockin/config"
)

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one configuration value.",
	Long: `Write a single value to the active config file and validate the result.

The file is created from the example template when missing. If the new value makes
the configuration invalid, the previous file content is restored.

Known keys: ` + strings.Join(config.Keys(), ", "),
	Example: `
  goclockin config set account.email ana@example.com
  goclockin config set workday.hours 7.5
  goclockin config set events.clock_out_on_shutdown false
`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(strings.TrimSpace(args[0]))
		if err := setConfigValue(key, args[1]); err != nil {
			return err
		}
		fmt.Printf("%s set to %s\n", key, args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
}
