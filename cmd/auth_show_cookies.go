package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"goclockin/factorial"
)

var (
	authShowCookiesStateFile string
	authShowCookiesURL       string
)

var authShowCookiesCmd = &cobra.Command{
	Use:   "show-cookies",
	Short: "Print the saved session cookie as HTTP Cookie header.",
	Long: `Read the auth state JSON written by "auth login --browser" and print the session cookie.

Output format:
_factorial_session_v2=<...>`,
	Example: `
  # Print cookie header from default auth state file
  goclockin auth show-cookies
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stateFile, err := resolveDefaultAuthStatePath(authShowCookiesStateFile)
		if err != nil {
			return err
		}

		_, _, host, err := resolveFactorialURLs(authShowCookiesURL)
		if err != nil {
			return err
		}

		state, err := factorial.LoadAuthState(stateFile)
		if err != nil {
			return err
		}
		value, err := state.SessionCookie(host)
		if err != nil {
			return err
		}
		fmt.Printf("%s=%s\n", factorial.SessionCookieName, value)
		return nil
	},
}

func init() {
	authCmd.AddCommand(authShowCookiesCmd)

	authShowCookiesCmd.Flags().StringVar(&authShowCookiesStateFile, "state-file", "", "Path to auth state JSON (default: <credentials.dir>/factorial-auth-state.json)")
	authShowCookiesCmd.Flags().StringVar(&authShowCookiesURL, "url", "", "Override Factorial URL from config")
}
