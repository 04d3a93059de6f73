package cmd

import (
	"github.com/PolarWolf314/passgit/internal/workflows"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	syncMessage string
	syncMerge   bool
	pullMerge   bool
	resetYes    bool

	// GitCmd is the top-level git command.
	GitCmd = &cobra.Command{
		Use:   "git",
		Short: "Synchronize the password store with its git remote",
		Long: `Provides the git operations that keep the password store in sync with its remote.

Examples:
  # Clone the configured remote into the password store
  passgit git clone

  # Commit local changes, pull and push in one go
  passgit git sync

  # Throw away local changes and match the remote
  passgit git reset --yes

  # Leave a stuck merge or rebase, keeping local work on a side branch
  passgit git recover`,
	}
)

func init() {
	addLoggingFlags(GitCmd)

	syncCmd.Flags().StringVarP(&syncMessage, "message", "m", "", "commit message for local changes (defaults to the configured message)")
	syncCmd.Flags().BoolVar(&syncMerge, "merge", false, "merge remote changes instead of rebasing onto them")
	pullCmd.Flags().BoolVar(&pullMerge, "merge", false, "merge remote changes instead of rebasing onto them")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "do not ask for confirmation")

	GitCmd.AddCommand(cloneCmd)
	GitCmd.AddCommand(pullCmd)
	GitCmd.AddCommand(pushCmd)
	GitCmd.AddCommand(syncCmd)
	GitCmd.AddCommand(resetCmd)
	GitCmd.AddCommand(recoverCmd)
	GitCmd.AddCommand(gcCmd)
}

// resetGitCommandState resets the git command's global state for testing.
func resetGitCommandState() {
	syncMessage = ""
	syncMerge = false
	pullMerge = false
	resetYes = false
	for _, c := range append([]*cobra.Command{GitCmd}, GitCmd.Commands()...) {
		c.Flags().VisitAll(func(flag *pflag.Flag) {
			flag.Changed = false
		})
	}
}

// mergeOverride turns a --merge flag into a pull mode override.
func mergeOverride(cmd *cobra.Command, merge bool) *bool {
	if !cmd.Flags().Changed("merge") {
		return nil
	}
	rebase := !merge
	return &rebase
}

var cloneCmd = &cobra.Command{
	Use:   "clone",
	Short: "Clone the remote into the password store",
	Long: `Clones the configured remote into the password store directory.

An empty remote is fine: the store is initialized locally with the remote
configured, and the first sync pushes it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGit(cmd.Context(), workflows.RequestClone, workflows.RunOptions{}, "Cloning password store...", "Password store cloned")
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull remote changes into the password store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := workflows.RunOptions{Rebase: mergeOverride(cmd, pullMerge)}
		return runGit(cmd.Context(), workflows.RequestPull, opts, "Pulling changes...", "Pulled remote changes")
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push local commits to the remote",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGit(cmd.Context(), workflows.RequestPush, workflows.RunOptions{}, "Pushing changes...", "Pushed local changes")
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Commit local changes, pull and push",
	Long: `Stages and commits every local change, pulls the remote branch and pushes
the result.

When the remote refuses several channels on one connection, passgit turns
multiplexing off and syncs with a separate pull and push from then on.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := workflows.RunOptions{
			Message: syncMessage,
			Rebase:  mergeOverride(cmd, syncMerge),
		}
		return runGit(cmd.Context(), workflows.RequestSync, opts, "Syncing password store...", "Password store synced")
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard local changes and match the remote",
	Long: `Fetches the remote, recreates the local branch from it and hard resets the
working tree. Local commits and uncommitted changes are lost.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			confirmed, err := confirm("This discards all local changes in the password store. Continue? [y/N] ")
			if err != nil {
				return Logger.ErrorfAndReturn("Failed to read confirmation: %v", err)
			}
			if !confirmed {
				Logger.Infof("Reset aborted by user")
				return nil
			}
		}
		return runGit(cmd.Context(), workflows.RequestReset, workflows.RunOptions{}, "Resetting to remote...", "Password store now matches the remote")
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Leave a stuck merge or rebase",
	Long: `Aborts a stopped rebase or clears a stopped merge, saves the local state on a
conflicting-<branch>-<timestamp> branch, pushes it and checks the original
branch out again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGit(cmd.Context(), workflows.RequestRecover, workflows.RunOptions{}, "Recovering repository...", "Repository recovered")
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Compact the local repository",
	Long:  `Prunes unreachable objects and repacks the object store. No network access is needed.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGit(cmd.Context(), workflows.RequestGc, workflows.RunOptions{}, "Compacting repository...", "Repository compacted")
	},
}
