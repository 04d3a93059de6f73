package gitops

import (
	"context"
	"fmt"

	kerrors "github.com/PolarWolf314/passgit/internal/errors"
	"github.com/PolarWolf314/passgit/internal/vcs"
)

// Executor runs the commands of one operation in order. It is not
// reusable: the change count captured by Status belongs to one run.
type Executor struct {
	env    *Env
	remote vcs.Remote
	online bool

	uncommitted int
}

// NewExecutor returns an executor for one run. remote is nil when the
// operation opened no session; commands that need the network then fail
// with ErrNoSession.
func NewExecutor(env *Env, remote *vcs.Remote) *Executor {
	x := &Executor{env: env}
	if remote != nil {
		x.remote = *remote
		x.online = true
	}
	return x
}

// Run executes commands, stopping at the first failure.
func (x *Executor) Run(ctx context.Context, name string, commands []Command) error {
	stop := x.env.progress(fmt.Sprintf("Running git %s...", name))
	defer stop()

	for _, cmd := range commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		if needsRemote(cmd) && !x.online {
			return &CommandError{Command: CommandName(cmd), Cause: kerrors.ErrNoSession}
		}

		x.env.Log.Debugf("git %s: %+v", CommandName(cmd), cmd)
		if err := x.exec(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) exec(ctx context.Context, cmd Command) error {
	engine := x.env.Engine
	wrap := func(err error) error {
		if err == nil {
			return nil
		}
		return &CommandError{Command: CommandName(cmd), Cause: err}
	}

	switch c := cmd.(type) {
	case CloneCommand:
		return wrap(engine.Clone(ctx, x.remote, c.Branch))

	case AddCommand:
		return wrap(engine.Add(ctx, c.Pattern))

	case StatusCommand:
		n, err := engine.Status(ctx)
		if err != nil {
			return wrap(err)
		}
		x.uncommitted = n
		x.env.Log.Debugf("%d uncommitted changes", n)
		return nil

	case CommitCommand:
		if x.uncommitted <= 0 {
			x.env.Log.Debugf("Nothing to commit")
			return nil
		}
		sig := vcs.Signature(x.env.Author.Name, x.env.Author.Email, x.env.now())
		return wrap(engine.Commit(ctx, c.All, c.Message, sig, sig))

	case PullCommand:
		mode := vcs.PullMerge
		if c.Rebase {
			mode = vcs.PullRebase
		}
		res, err := engine.Pull(ctx, x.remote, c.Branch, mode)
		if err != nil {
			return wrap(err)
		}
		if ge := pullFailure(res); ge != nil {
			return ge
		}
		return nil

	case PushCommand:
		remote := x.remote
		remote.Name = c.Remote
		res, err := engine.Push(ctx, remote, c.All)
		if err != nil {
			return wrap(err)
		}
		for _, u := range res.Updates {
			if u.Status == vcs.PushUpToDate {
				x.env.notice("%s is already up to date", u.Ref)
				continue
			}
			if ge := pushFailure(u); ge != nil {
				return ge
			}
		}
		return nil

	case FetchCommand:
		remote := x.remote
		remote.Name = c.Remote
		return wrap(engine.Fetch(ctx, remote, c.Prune))

	case CheckoutCommand:
		return wrap(engine.Checkout(ctx, vcs.CheckoutOptions{
			Branch:     c.Branch,
			Create:     c.Create,
			Force:      c.Force,
			Track:      c.Track,
			StartPoint: c.StartPoint,
		}))

	case BranchCreateCommand:
		return wrap(engine.BranchCreate(ctx, vcs.BranchOptions{
			Name:       c.Name,
			Force:      c.Force,
			StartPoint: c.StartPoint,
		}))

	case ResetCommand:
		return wrap(engine.Reset(ctx, c.Mode, c.Ref))

	case RebaseCommand:
		return wrap(engine.Rebase(ctx, c.Op))

	case GcCommand:
		return wrap(engine.Gc(ctx, vcs.GcOptions{Aggressive: c.Aggressive, Expire: c.Expire}))

	default:
		return wrap(fmt.Errorf("%w: %T", kerrors.ErrUnsupportedCommand, cmd))
	}
}
