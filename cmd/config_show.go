package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"goclockin/config"
)

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show active configuration values.",
	Long: `Display the currently loaded configuration and the resolved config file path.

Values are validated first. An invalid configuration is reported together with the
values goclockin falls back to; manual clocking keeps working in that state.`,
	Example: `
  # Show active configuration
  goclockin config show
`,
	Run: func(cmd *cobra.Command, args []string) {
		printConfig(os.Stdout, viper.ConfigFileUsed())
	},
}

func printConfig(w io.Writer, configPath string) {
	cfg, err := loadConfig()
	if configPath != "" {
		fmt.Fprintln(w, "Config file loaded from:", configPath)
	} else {
		fmt.Fprintln(w, "No config file found, using defaults.")
	}
	if err != nil {
		fmt.Fprintln(w, "Invalid config:", err)
		fmt.Fprintln(w, "Fallback configuration:")
	} else {
		fmt.Fprintln(w, "Configuration:")
	}

	values := map[string]any{
		config.KeyFactorialURL:        cfg.Factorial.URL,
		config.KeyFactorialTimeout:    cfg.Factorial.Timeout,
		config.KeyAccountEmail:        cfg.Account.Email,
		config.KeyWorkdayHours:        cfg.Workday.Hours,
		config.KeyEventsLoginDelay:    cfg.Events.LoginDelay,
		config.KeyEventsHeartbeat:     cfg.Events.Heartbeat,
		config.KeyEventsSleepGap:      cfg.Events.SleepGap,
		config.KeyEventsClockOutOnEnd: cfg.Events.ClockOutOnShutdown,
		config.KeyRetryAttempts:       cfg.Dispatcher.RetryAttempts,
		config.KeyRetryDelay:          cfg.Dispatcher.RetryDelay,
		config.KeyStatusRefresh:       cfg.Status.RefreshInterval,
		config.KeyWebEnabled:          cfg.Web.Enabled,
		config.KeyWebListen:           cfg.Web.Listen,
		config.KeyNotificationsOn:     cfg.Notifications.Enabled,
		config.KeyStorageDB:           cfg.Storage.DB,
		config.KeyCredentialsDir:      cfg.Credentials.Dir,
	}
	for _, key := range config.Keys() {
		fmt.Fprintf(w, "%s: %v\n", key, values[key])
	}
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
