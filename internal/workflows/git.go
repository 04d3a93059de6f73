package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/PolarWolf314/passgit/internal/audit"
	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/credentials"
	kerrors "github.com/PolarWolf314/passgit/internal/errors"
	"github.com/PolarWolf314/passgit/internal/gitops"
	logger "github.com/PolarWolf314/passgit/internal/logging"
	"github.com/PolarWolf314/passgit/internal/vcs"
)

// Request is a user-facing git action.
type Request string

const (
	RequestClone   Request = "clone"
	RequestPull    Request = "pull"
	RequestPush    Request = "push"
	RequestSync    Request = "sync"
	RequestReset   Request = "reset"
	RequestRecover Request = "recover"
	RequestGc      Request = "gc"
)

// Presenter is the UI the orchestrator reports to.
type Presenter interface {
	gitops.Prompter

	// ShowError presents a failure to the user. It is called at most once
	// per Run and never for cancellations.
	ShowError(err *gitops.GitError)
}

// RunOptions configures one Run.
type RunOptions struct {
	// Message overrides the configured sync commit message.
	Message string

	// Rebase overrides the configured pull mode when set.
	Rebase *bool
}

// Git runs git requests against the password store.
type Git struct {
	Settings      *configs.Settings
	Engine        vcs.Engine
	Sessions      gitops.SessionOpener
	Keys          *credentials.KeyStore
	Passwords     *credentials.Finder
	Cache         *credentials.Cache
	Authenticator credentials.Authenticator
	Presenter     Presenter
	Log           logger.Logger

	// SaveSettings persists Settings after the orchestrator changes them.
	// Defaults to configs.SaveSettings.
	SaveSettings func(*configs.Settings) error

	// Now defaults to time.Now.
	Now func() time.Time
}

// Run executes req.
//
// A missing remote fails with ErrRemoteNotConfigured before anything
// touches the network; gc is exempt since it is local only. When the
// remote refuses extra channels, multiplexing is turned off in the
// settings and the request is retried once.
//
// Cancellations (ErrCancelledByUser, ErrSSHKeyMissing) are returned as is
// without calling Presenter.ShowError. Every other failure clears the
// cached credentials, is shown once and is returned as a *gitops.GitError.
func (g *Git) Run(ctx context.Context, req Request, opts RunOptions) error {
	entry := audit.LogWithUser("git " + string(req))
	entry.Remote = g.Settings.Remote.URL
	entry.Branch = g.Settings.Remote.Branch
	entry.AuthMode = string(g.Settings.Remote.AuthMode)

	err := g.run(ctx, req, opts, &entry)
	audit.Log(entry)
	return err
}

func (g *Git) run(ctx context.Context, req Request, opts RunOptions, entry *audit.Entry) error {
	if req != RequestGc && !g.Settings.Remote.IsConfigured() {
		entry.Outcome = audit.OutcomeSkipped
		entry.Error = kerrors.ErrRemoteNotConfigured.Error()
		return kerrors.ErrRemoteNotConfigured
	}

	classifier := gitops.Classifier{DisableMultiplexing: g.disableMultiplexing}
	retried := false
	for {
		err := g.execute(ctx, req, opts, entry)
		if err == nil {
			entry.Outcome = audit.OutcomeSuccess
			return nil
		}

		if gitops.IsCancellation(err) {
			g.Log.Debugf("git %s cancelled: %v", req, err)
			if g.Passwords != nil {
				g.Passwords.Reset()
			}
			entry.Outcome = audit.OutcomeCancelled
			return err
		}

		ge := classifier.Classify(err)
		if ge.Kind == gitops.TooManyChannels && !retried {
			g.Log.Warnf("Remote refused an extra channel, retrying git %s without multiplexing", req)
			retried = true
			entry.Retried = true
			continue
		}

		g.clearCredentials()
		entry.Outcome = audit.OutcomeFailed
		entry.Kind = ge.Kind.String()
		entry.Error = ge.Error()
		g.Log.Debugf("git %s failed: %v", req, err)
		if g.Presenter != nil {
			g.Presenter.ShowError(ge)
		}
		return ge
	}
}

func (g *Git) execute(ctx context.Context, req Request, opts RunOptions, entry *audit.Entry) error {
	ops, err := g.operations(req, opts)
	if err != nil {
		return err
	}

	for _, op := range ops {
		if op.RequiresAuth {
			entry.Sessions++
		}
		if err := op.ExecuteAfterAuthentication(ctx, g.Settings.Remote.AuthMode); err != nil {
			return err
		}
	}
	return nil
}

// operations builds fresh operations for req from the current settings.
func (g *Git) operations(req Request, opts RunOptions) ([]*gitops.Operation, error) {
	env := g.env()

	message := opts.Message
	if message == "" {
		message = g.Settings.Sync.CommitMessage
	}
	if message == "" {
		message = configs.DefaultCommitMessage
	}
	rebase := g.Settings.Sync.RebaseOnPull
	if opts.Rebase != nil {
		rebase = *opts.Rebase
	}

	switch req {
	case RequestClone:
		return []*gitops.Operation{gitops.NewCloneOperation(env)}, nil
	case RequestPull:
		return []*gitops.Operation{gitops.NewPullOperation(env, rebase)}, nil
	case RequestPush:
		return []*gitops.Operation{gitops.NewPushOperation(env)}, nil
	case RequestSync:
		if g.Settings.Remote.UseMultiplexing {
			return []*gitops.Operation{gitops.NewSyncOperation(env, message, rebase)}, nil
		}
		g.Log.Debugf("Multiplexing is off, syncing as a pull followed by a push")
		return []*gitops.Operation{
			gitops.NewCommitAndPullOperation(env, message, rebase),
			gitops.NewPushOperation(env),
		}, nil
	case RequestReset:
		return []*gitops.Operation{gitops.NewResetToRemoteOperation(env)}, nil
	case RequestRecover:
		op, err := gitops.NewBreakOutOfDetachedOperation(env)
		if err != nil {
			return nil, fmt.Errorf("reading repository state: %w", err)
		}
		return []*gitops.Operation{op}, nil
	case RequestGc:
		return []*gitops.Operation{gitops.NewGcOperation(env)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", kerrors.ErrUnsupportedCommand, req)
	}
}

func (g *Git) env() *gitops.Env {
	return &gitops.Env{
		Engine:        g.Engine,
		Sessions:      g.Sessions,
		Remote:        g.Settings.Remote,
		Author:        g.Settings.Author,
		Prompter:      g.Presenter,
		Log:           g.Log,
		Keys:          g.Keys,
		Passwords:     g.Passwords,
		Cache:         g.Cache,
		Authenticator: g.Authenticator,
		Now:           g.Now,
	}
}

func (g *Git) disableMultiplexing() {
	g.Settings.Remote.UseMultiplexing = false
	if err := g.save(); err != nil {
		g.Log.Warnf("Could not save settings after disabling multiplexing: %v", err)
	}
}

func (g *Git) save() error {
	if g.SaveSettings != nil {
		return g.SaveSettings(g.Settings)
	}
	return configs.SaveSettings(g.Settings)
}

// clearCredentials drops the cached password and key secret so the next
// attempt prompts again.
func (g *Git) clearCredentials() {
	if g.Passwords != nil {
		g.Passwords.Reset()
	}
	if g.Cache != nil {
		g.Cache.Clear()
	}
}
