package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var authLogoutForget bool

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Drop the Factorial session.",
	Long: `Drop the Factorial session held by this process.

With --forget the stored password, the saved browser session, and the cached
calendar of the account are deleted, so automatic clocking stops until the next
"auth login". A running daemon keeps its in-memory session until it restarts.`,
	Example: `
  goclockin auth logout --forget
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		email := a.service.Email()
		if err := a.service.Logout(authLogoutForget); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		switch {
		case authLogoutForget && email != "":
			fmt.Printf("Logged out; stored credentials for %s removed.\n", email)
		default:
			fmt.Println("Logged out.")
		}
		return nil
	},
}

func init() {
	authCmd.AddCommand(authLogoutCmd)

	authLogoutCmd.Flags().BoolVar(&authLogoutForget, "forget", false, "Also delete stored credentials and the saved browser session")
}
