package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/hostkey"
	"github.com/PolarWolf314/passgit/internal/ui"
	"github.com/PolarWolf314/passgit/internal/utils"
	"github.com/PolarWolf314/passgit/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	remoteAuth    string
	remoteBranch  string
	proxyUsername string
	proxyPassword bool
	proxyClear    bool

	// RemoteCmd is the top-level remote command.
	RemoteCmd = &cobra.Command{
		Use:   "remote",
		Short: "Configure the git remote of the password store",
		Long: `Provides commands for the remote the password store syncs with.

Examples:
  # Use an SSH remote with the managed SSH key
  passgit remote set git@github.com:me/passwords.git

  # Use an HTTPS remote with a password
  passgit remote set https://me@git.example.com/passwords.git --auth password

  # Route connections through a proxy
  passgit remote proxy proxy.local 3128

  # Trust a remote whose host key legitimately changed
  passgit remote clear-host-key`,
	}
)

func init() {
	addLoggingFlags(RemoteCmd)

	remoteSetCmd.Flags().StringVar(&remoteAuth, "auth", "", "authentication mode: none, password or ssh-key (defaults from the url)")
	remoteSetCmd.Flags().StringVar(&remoteBranch, "branch", "", "branch to sync (default \"master\")")
	remoteProxyCmd.Flags().StringVar(&proxyUsername, "username", "", "proxy username")
	remoteProxyCmd.Flags().BoolVar(&proxyPassword, "password", false, "prompt for the proxy password")
	remoteProxyCmd.Flags().BoolVar(&proxyClear, "clear", false, "remove the proxy")

	RemoteCmd.AddCommand(remoteSetCmd)
	RemoteCmd.AddCommand(remoteShowCmd)
	RemoteCmd.AddCommand(remoteProxyCmd)
	RemoteCmd.AddCommand(remoteClearHostKeyCmd)
}

// resetRemoteCommandState resets the remote command's global state for testing.
func resetRemoteCommandState() {
	remoteAuth = ""
	remoteBranch = ""
	proxyUsername = ""
	proxyPassword = false
	proxyClear = false
}

func newRemote(settings *configs.Settings) *workflows.Remote {
	return &workflows.Remote{
		Settings: settings,
		HostKeys: hostkey.NewStore(configs.UserPassgitSettings.HostKeyPath),
		Cache:    sharedCredentialCache(),
		Log:      Logger,
	}
}

// defaultAuthMode picks the usual auth mode for a remote url.
func defaultAuthMode(rawURL string) configs.AuthMode {
	parsed, err := configs.ParseRemoteURL(rawURL)
	if err == nil && parsed.Protocol == configs.ProtocolHTTPS {
		return configs.AuthModePassword
	}
	return configs.AuthModeSSHKey
}

var remoteSetCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Set the remote url and authentication mode",
	Long: `Validates and stores the remote url and authentication mode.

HTTPS remotes accept the none and password modes; SSH remotes accept
password and ssh-key and must name a user (git@host:path).

Changing the url forgets the pinned host key and the cached password, and
turns multiplexing back on.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting remote set command")
		s, cleanup := startSpinner("Updating remote...")
		defer cleanup()

		mode := defaultAuthMode(args[0])
		if remoteAuth != "" {
			parsed, err := configs.ParseAuthMode(remoteAuth)
			if err != nil {
				s.FinalMSG = ui.Failure(err.Error(), "Use one of none, password or ssh-key")
				return nil
			}
			mode = parsed
		}
		Logger.Debugf("Remote %q with auth mode %s", args[0], mode)

		settings, err := configs.LoadSettings()
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to load settings: %v", err)
		}

		result, err := newRemote(settings).Update(cmd.Context(), workflows.UpdateRemoteOptions{
			URL:      args[0],
			AuthMode: mode,
			Branch:   remoteBranch,
		})
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to update remote: %v", err)
		}

		if result.Validation.Kind != configs.Valid {
			s.FinalMSG = ui.Failure("Invalid remote: "+result.Validation.Message(), "")
			return nil
		}

		msg := ui.Succeeded("Remote set to " + ui.Highlight.Sprint(settings.Remote.URL) + " using " + ui.Highlight.Sprint(string(mode)))
		if result.URLChanged {
			msg += "\n" + ui.Hint("The host key will be trusted on the next connection")
		}
		s.FinalMSG = msg
		return nil
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the remote configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting remote show command")

		settings, err := configs.LoadSettings()
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to load settings: %v", err)
		}

		info, err := newRemote(settings).Show(cmd.Context())
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to read remote: %v", err)
		}

		if info.URL == "" {
			fmt.Println(ui.Warned("No remote configured"))
			fmt.Println(ui.Hint("Run " + ui.Code.Sprint("passgit remote set <url>")))
			return nil
		}

		fmt.Printf("URL:           %s\n", ui.Highlight.Sprint(info.URL))
		fmt.Printf("Auth mode:     %s\n", info.AuthMode)
		fmt.Printf("Branch:        %s\n", info.Branch)
		fmt.Printf("Multiplexing:  %t\n", info.Multiplexing)
		if info.Proxy != "" {
			fmt.Printf("Proxy:         %s\n", info.Proxy)
		}
		if info.PinnedHostKey != "" {
			fmt.Printf("Host key:      %s\n", info.PinnedHostKey)
		} else {
			fmt.Printf("Host key:      %s\n", ui.Muted.Sprint("not pinned"))
		}
		return nil
	},
}

var remoteProxyCmd = &cobra.Command{
	Use:   "proxy [host] [port]",
	Short: "Set or remove the proxy used to reach the remote",
	Long: `Stores an upstream proxy. HTTPS remotes use it as an HTTP proxy, SSH remotes
as a SOCKS5 proxy. The port defaults to 8080.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting remote proxy command")

		opts := workflows.ProxyOptions{}
		if !proxyClear {
			if len(args) == 0 {
				return fmt.Errorf("a proxy host is required unless --clear is set")
			}
			opts.Host = strings.TrimSpace(args[0])
			if len(args) == 2 {
				port, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid proxy port %q", args[1])
				}
				opts.Port = port
			}
			opts.Username = proxyUsername
			if proxyPassword {
				password, err := utils.ReadPassphrase("Proxy password: ")
				if err != nil {
					return Logger.ErrorfAndReturn("Failed to read proxy password: %v", err)
				}
				opts.Password = string(password)
			}
		}

		settings, err := configs.LoadSettings()
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to load settings: %v", err)
		}
		if err := newRemote(settings).SetProxy(cmd.Context(), opts); err != nil {
			return Logger.ErrorfAndReturn("Failed to set proxy: %v", err)
		}

		if opts.Host == "" {
			fmt.Println(ui.Succeeded("Proxy removed"))
			return nil
		}
		fmt.Println(ui.Succeeded("Proxy set to " + ui.Highlight.Sprint(settings.Remote.ProxyAddress())))
		return nil
	},
}

var remoteClearHostKeyCmd = &cobra.Command{
	Use:   "clear-host-key",
	Short: "Forget the pinned host key of the remote",
	Long: `Removes the pinned SSH host key. The key presented on the next connection is
trusted and pinned again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting remote clear-host-key command")

		settings, err := configs.LoadSettings()
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to load settings: %v", err)
		}
		if err := newRemote(settings).ClearHostKey(cmd.Context()); err != nil {
			return Logger.ErrorfAndReturn("Failed to clear host key: %v", err)
		}

		fmt.Println(ui.Succeeded("Pinned host key cleared"))
		return nil
	},
}
