package gitops

import (
	"context"
	"fmt"
	"time"

	"github.com/PolarWolf314/passgit/internal/vcs"
)

// gcExpire is how old an unreachable object must be before gc drops it.
const gcExpire = 14 * 24 * time.Hour

func NewCloneOperation(env *Env) *Operation {
	return &Operation{
		Name:         "clone",
		Commands:     []Command{CloneCommand{Branch: env.branch()}},
		RequiresAuth: true,
		env:          env,
	}
}

func NewPullOperation(env *Env, rebase bool) *Operation {
	return &Operation{
		Name:         "pull",
		Commands:     []Command{PullCommand{Rebase: rebase, Branch: env.branch()}},
		RequiresAuth: true,
		env:          env,
	}
}

// NewCommitAndPullOperation is the first half of a sync: local changes are
// committed before pulling so the following push carries them.
func NewCommitAndPullOperation(env *Env, message string, rebase bool) *Operation {
	return &Operation{
		Name: "pull",
		Commands: []Command{
			AddCommand{Pattern: "."},
			StatusCommand{},
			CommitCommand{All: true, Message: message},
			PullCommand{Rebase: rebase, Branch: env.branch()},
		},
		RequiresAuth: true,
		env:          env,
	}
}

func NewPushOperation(env *Env) *Operation {
	return &Operation{
		Name:         "push",
		Commands:     []Command{PushCommand{All: true, Remote: DefaultRemote}},
		RequiresAuth: true,
		env:          env,
	}
}

// NewSyncOperation commits local changes, if any, then pulls and pushes.
func NewSyncOperation(env *Env, message string, rebase bool) *Operation {
	return &Operation{
		Name: "sync",
		Commands: []Command{
			AddCommand{Pattern: "."},
			StatusCommand{},
			CommitCommand{All: true, Message: message},
			PullCommand{Rebase: rebase, Branch: env.branch()},
			PushCommand{All: true, Remote: DefaultRemote},
		},
		RequiresAuth: true,
		env:          env,
	}
}

// NewResetToRemoteOperation discards local divergence: the branch is
// recreated from the remote and checked out over the worktree.
func NewResetToRemoteOperation(env *Env) *Operation {
	branch := env.branch()
	upstream := DefaultRemote + "/" + branch
	return &Operation{
		Name: "reset",
		Commands: []Command{
			FetchCommand{Remote: DefaultRemote, Prune: true},
			BranchCreateCommand{Name: branch, Force: true, StartPoint: upstream},
			CheckoutCommand{Branch: branch, Force: true, Track: true},
			ResetCommand{Mode: vcs.ResetHard, Ref: upstream},
		},
		RequiresAuth: true,
		env:          env,
	}
}

// NewBreakOutOfDetachedOperation leaves a stopped merge or rebase. The
// local work is kept on a conflicting-<branch>-<millis> branch that is
// pushed, then the original branch is checked out again. The repository
// state is read here, so the commands match the state at construction.
func NewBreakOutOfDetachedOperation(env *Env) (*Operation, error) {
	state, err := env.Engine.State()
	if err != nil {
		return nil, err
	}

	branch, err := env.Engine.CurrentBranch()
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = env.branch()
	}

	op := &Operation{
		Name:         "recover",
		RequiresAuth: true,
		env:          env,
	}

	var leave Command
	switch state {
	case vcs.StateMerging:
		leave = ResetCommand{Mode: vcs.ResetHard}
		op.preExecute = func(context.Context) (bool, error) {
			if err := env.Engine.ClearMergeState(); err != nil {
				return false, err
			}
			return true, nil
		}
	case vcs.StateRebasing:
		leave = RebaseCommand{Op: vcs.RebaseAbort}
	default:
		op.preExecute = func(context.Context) (bool, error) {
			env.notice("The repository is not in a merging or rebasing state, nothing to recover")
			return false, nil
		}
		return op, nil
	}

	conflicting := fmt.Sprintf("conflicting-%s-%d", branch, env.now().UnixMilli())
	op.Commands = []Command{
		leave,
		CheckoutCommand{Branch: conflicting, Create: true},
		PushCommand{Remote: DefaultRemote},
		CheckoutCommand{Branch: branch},
	}
	op.postExecute = func(err error) {
		if err == nil {
			env.notice("Local changes were saved to branch %s", conflicting)
		}
	}
	return op, nil
}

// NewGcOperation compacts the local object store. It never touches the
// network.
func NewGcOperation(env *Env) *Operation {
	return &Operation{
		Name: "gc",
		Commands: []Command{
			GcCommand{Aggressive: true, Expire: env.now().Add(-gcExpire)},
		},
		env: env,
	}
}
