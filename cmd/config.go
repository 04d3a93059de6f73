package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// ConfigCmd is the top-level config command.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage passgit configuration",
	Long: `Provides commands for the settings stored in config.toml.

Examples:
  # Show the current settings
  passgit config show

  # Set the identity used for sync commits
  passgit config set-author "Ada Lovelace" ada@example.com

  # Merge instead of rebasing when pulling
  passgit config set-sync --merge`,
}

func init() {
	addLoggingFlags(ConfigCmd)
}

// ResetConfigState resets all config command global variables to their default values for testing.
func ResetConfigState() {
	resetConfigShowState()
	resetConfigSetSyncState()
	resetConfigCobraFlagState()
}

// resetConfigCobraFlagState resets the flag state for all config commands to prevent test pollution.
func resetConfigCobraFlagState() {
	for _, c := range append([]*cobra.Command{ConfigCmd}, ConfigCmd.Commands()...) {
		c.Flags().VisitAll(func(flag *pflag.Flag) {
			flag.Changed = false
		})
	}
}
