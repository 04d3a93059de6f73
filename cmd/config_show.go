package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/utils"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var configShowJSON bool

func init() {
	configShowCmd.Flags().BoolVar(&configShowJSON, "json", false, "output in JSON format")
	ConfigCmd.AddCommand(configShowCmd)
}

// resetConfigShowState resets the config show command's global state for testing.
func resetConfigShowState() {
	configShowJSON = false
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Displays the settings passgit reads from config.toml, with defaults filled in.
The proxy password is never printed.

Examples:
  passgit config show
  passgit config show --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting config show command")
		Logger.Debugf("Loading settings from %s", configs.SettingsFilePath())

		settings, err := configs.LoadSettings()
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to load settings: %v", err)
		}
		if settings.Remote.Proxy != nil && settings.Remote.Proxy.Password != "" {
			redacted := *settings.Remote.Proxy
			redacted.Password = utils.Redact(redacted.Password)
			settings.Remote.Proxy = &redacted
		}

		if configShowJSON {
			output, err := json.MarshalIndent(settings, "", "  ")
			if err != nil {
				return Logger.ErrorfAndReturn("Failed to marshal settings to JSON: %v", err)
			}
			fmt.Println(string(output))
			return nil
		}

		outputSettingsText(settings)
		return nil
	},
}

// outputSettingsText prints settings in human-readable format.
func outputSettingsText(s *configs.Settings) {
	fmt.Println(color.CyanString("Configuration") + " (" + configs.SettingsFilePath() + "):")
	fmt.Println()

	url := s.Remote.URL
	if url == "" {
		url = color.HiBlackString("not set")
	} else {
		url = color.GreenString(url)
	}
	fmt.Printf("  %-16s %s\n", "Remote:", url)
	fmt.Printf("  %-16s %s\n", "Auth mode:", s.Remote.AuthMode)
	fmt.Printf("  %-16s %s\n", "Branch:", s.Remote.Branch)
	fmt.Printf("  %-16s %t\n", "Multiplexing:", s.Remote.UseMultiplexing)
	fmt.Printf("  %-16s %ds\n", "Timeout:", s.Remote.TimeoutSeconds)
	if proxy := s.Remote.ProxyAddress(); proxy != "" {
		fmt.Printf("  %-16s %s\n", "Proxy:", proxy)
	}

	fmt.Println()
	if s.Author.Name != "" || s.Author.Email != "" {
		fmt.Printf("  %-16s %s <%s>\n", "Author:", color.GreenString(s.Author.Name), s.Author.Email)
	} else {
		fmt.Printf("  %-16s %s\n", "Author:", color.HiBlackString("not set"))
	}
	pull := "merge"
	if s.Sync.RebaseOnPull {
		pull = "rebase"
	}
	fmt.Printf("  %-16s %s\n", "Pull mode:", pull)
	fmt.Printf("  %-16s %q\n", "Commit message:", s.Sync.CommitMessage)
}
