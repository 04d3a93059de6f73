package gitops

import (
	"time"

	"github.com/PolarWolf314/passgit/internal/vcs"
)

// Command is one step of an Operation. The set of implementations is
// closed; the executor switches over all of them.
type Command interface {
	command()
}

type CloneCommand struct {
	Branch string
}

type AddCommand struct {
	Pattern string
}

// StatusCommand records the number of uncommitted changes for the
// CommitCommand that follows it.
type StatusCommand struct{}

type CommitCommand struct {
	All     bool
	Message string
}

type PullCommand struct {
	Rebase bool
	Branch string
}

type PushCommand struct {
	All    bool
	Remote string
}

type FetchCommand struct {
	Remote string
	Prune  bool
}

type CheckoutCommand struct {
	Branch     string
	Create     bool
	Force      bool
	Track      bool
	StartPoint string
}

type BranchCreateCommand struct {
	Name       string
	Force      bool
	StartPoint string
}

type ResetCommand struct {
	Mode vcs.ResetMode
	Ref  string
}

type RebaseCommand struct {
	Op vcs.RebaseOp
}

type GcCommand struct {
	Aggressive bool
	Expire     time.Time
}

func (CloneCommand) command()        {}
func (AddCommand) command()          {}
func (StatusCommand) command()       {}
func (CommitCommand) command()       {}
func (PullCommand) command()         {}
func (PushCommand) command()         {}
func (FetchCommand) command()        {}
func (CheckoutCommand) command()     {}
func (BranchCreateCommand) command() {}
func (ResetCommand) command()        {}
func (RebaseCommand) command()       {}
func (GcCommand) command()           {}

// CommandName is the git verb for c, used in logs and errors.
func CommandName(c Command) string {
	switch c.(type) {
	case CloneCommand:
		return "clone"
	case AddCommand:
		return "add"
	case StatusCommand:
		return "status"
	case CommitCommand:
		return "commit"
	case PullCommand:
		return "pull"
	case PushCommand:
		return "push"
	case FetchCommand:
		return "fetch"
	case CheckoutCommand:
		return "checkout"
	case BranchCreateCommand:
		return "branch"
	case ResetCommand:
		return "reset"
	case RebaseCommand:
		return "rebase"
	case GcCommand:
		return "gc"
	default:
		return "unknown"
	}
}

// needsRemote reports whether c talks to the remote.
func needsRemote(c Command) bool {
	switch c.(type) {
	case CloneCommand, PullCommand, PushCommand, FetchCommand:
		return true
	default:
		return false
	}
}
