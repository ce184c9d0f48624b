package cmd

import "github.com/spf13/cobra"

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Factorial login.",
	Long: `Authentication helpers for the Factorial account.

Use "auth login" to validate and store credentials (or capture a browser session with --browser).
Use "auth logout" to drop the session, and --forget to delete stored credentials.
Use "auth show-cookies" to print the saved browser session cookie.`,
}

func init() {
	rootCmd.AddCommand(authCmd)
}
