// Package workflows provides high-level orchestration for passgit commands.
//
// Workflows coordinate the configs, credentials, gitops and audit packages
// to implement complete user-facing features, independent of CLI concerns
// like flag parsing, spinners and output formatting.
//
// # Design Philosophy
//
// The cmd/ package should be a thin layer that:
//   - Parses command-line flags and arguments
//   - Builds the workflow's dependencies
//   - Calls the workflow and formats the result
//
// Workflows handle everything else:
//   - Checking that a remote is configured
//   - Choosing and composing git operations
//   - Classifying failures and deciding what the user sees
//   - Recording audit trail entries
//
// # Available Workflows
//
//   - Git.Run: clone, pull, push, sync, reset, recover and gc
//   - Remote.Update, Remote.SetProxy, Remote.Show, Remote.ClearHostKey
//   - GenerateKey, ImportKey, ShowKey, DeleteKey
//
// # Error Handling
//
// Git.Run returns a *gitops.GitError for failures it has already shown
// through the Presenter. Cancellations come back unwrapped and unshown;
// check them with errors.Is:
//
//	err := git.Run(ctx, workflows.RequestSync, workflows.RunOptions{})
//	if errors.Is(err, kerrors.ErrCancelledByUser) {
//	    return nil
//	}
//
// # Context Usage
//
// All workflow functions accept a context.Context as their first parameter.
// Cancelling it stops a running operation between commands.
package workflows
