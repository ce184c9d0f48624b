package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Write the example configuration file.",
	Long: `Write the commented example configuration to the active config path.

An existing file is never overwritten.`,
	Example: `
  goclockin config create
  goclockin --configFile ./work.yaml config create
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath(cfgFile, viper.ConfigFileUsed())
		if err != nil {
			return err
		}
		created, err := ensureConfigFile(path)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Created %s\n", path)
		} else {
			fmt.Printf("%s already exists, left unchanged\n", path)
		}
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the configuration file in an editor.",
	Long: `Open the active configuration in $VISUAL, $EDITOR or vi.

The file is created from the example first when missing. After the editor exits
the content is validated; an invalid edit is rolled back to the previous content.
A running daemon picks up the change on its next start.`,
	Example: `
  EDITOR="code --wait" goclockin config edit
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath(cfgFile, viper.ConfigFileUsed())
		if err != nil {
			return err
		}
		if created, err := ensureConfigFile(path); err != nil {
			return err
		} else if created {
			fmt.Printf("Created %s from the example\n", path)
		}

		editor, err := editorCommand(os.Getenv("VISUAL"), os.Getenv("EDITOR"), path)
		if err != nil {
			return err
		}
		editor.Stdin, editor.Stdout, editor.Stderr = os.Stdin, os.Stdout, os.Stderr

		err = rewriteConfigFile(path, func() error {
			if err := editor.Run(); err != nil {
				return fmt.Errorf("run editor: %w", err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("Saved and validated %s\n", path)
		return nil
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the loaded configuration file.",
	Long: `Remove the configuration file goclockin loaded.

Stored credentials and the journal database stay; use
"goclockin auth logout --forget" to remove the password.`,
	Example: `
  goclockin config delete
  goclockin --configFile ./work.yaml config delete
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.ConfigFileUsed()
		if path == "" {
			return fmt.Errorf("no configuration file loaded")
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
		fmt.Printf("Deleted %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configCreateCmd, configEditCmd, configDeleteCmd)
}
