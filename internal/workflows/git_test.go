package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/PolarWolf314/passgit/internal/audit"
	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/credentials"
	kerrors "github.com/PolarWolf314/passgit/internal/errors"
	"github.com/PolarWolf314/passgit/internal/gitops"
	"github.com/PolarWolf314/passgit/internal/vcs"
	"github.com/PolarWolf314/passgit/internal/vcs/vcstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRunWithoutRemoteFailsBeforeAnyNetwork(t *testing.T) {
	for _, req := range []Request{RequestClone, RequestPull, RequestPush, RequestSync, RequestReset, RequestRecover} {
		t.Run(string(req), func(t *testing.T) {
			f := newFixture(t)
			f.git.Settings.Remote.URL = ""

			err := f.git.Run(ctx, req, RunOptions{})

			assert.ErrorIs(t, err, kerrors.ErrRemoteNotConfigured)
			assert.Empty(t, f.engine.Calls())
			assert.Zero(t, f.opener.count())
			assert.Empty(t, f.presenter.errors)
		})
	}
}

func TestGcRunsWithoutRemote(t *testing.T) {
	f := newFixture(t)
	f.git.Settings.Remote.URL = ""

	require.NoError(t, f.git.Run(ctx, RequestGc, RunOptions{}))
	assert.Equal(t, []string{"Gc"}, f.engine.Methods())
	assert.Zero(t, f.opener.count())
}

// A sync opens one session with multiplexing and exactly two without.
func TestProperty_SyncSessions(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		multiplexing := rapid.Bool().Draw(rt, "multiplexing")
		f.engine.Uncommitted = rapid.IntRange(0, 5).Draw(rt, "uncommitted")
		f.git.Settings.Remote.UseMultiplexing = multiplexing

		require.NoError(rt, f.git.Run(ctx, RequestSync, RunOptions{}))

		want := 1
		if !multiplexing {
			want = 2
		}
		assert.Equal(rt, want, f.opener.count())

		methods := []string{"Add", "Status", "Pull", "Push"}
		if f.engine.Uncommitted > 0 {
			methods = []string{"Add", "Status", "Commit", "Pull", "Push"}
		}
		assert.Equal(rt, methods, f.engine.Methods())
	})
}

func TestSyncUsesConfiguredMessageAndMode(t *testing.T) {
	f := newFixture(t)
	f.engine.Uncommitted = 1
	f.git.Settings.Sync.CommitMessage = "store sync"
	f.git.Settings.Sync.RebaseOnPull = false

	require.NoError(t, f.git.Run(ctx, RequestSync, RunOptions{}))
	calls := f.engine.Calls()
	assert.Equal(t, "store sync", calls[2].Args.(vcstest.CommitArgs).Message)
	assert.Equal(t, vcs.PullMerge, calls[3].Args.(vcstest.PullArgs).Mode)

	f.engine.ForgetCalls()
	rebase := true
	require.NoError(t, f.git.Run(ctx, RequestSync, RunOptions{Message: "override", Rebase: &rebase}))
	calls = f.engine.Calls()
	assert.Equal(t, "override", calls[2].Args.(vcstest.CommitArgs).Message)
	assert.Equal(t, vcs.PullRebase, calls[3].Args.(vcstest.PullArgs).Mode)
}

func TestSyncWithoutSSHKeyIsACancellation(t *testing.T) {
	f := newFixture(t)
	f.git.Settings.Remote.AuthMode = configs.AuthModeSSHKey

	err := f.git.Run(ctx, RequestSync, RunOptions{})

	assert.ErrorIs(t, err, kerrors.ErrSSHKeyMissing)
	assert.True(t, gitops.IsCancellation(err))
	assert.Equal(t, 1, f.presenter.keyOffers)
	assert.Empty(t, f.presenter.errors)
	assert.Zero(t, f.opener.count())
	assert.Empty(t, f.engine.Calls())
}

func TestCancelledPINChallengeShowsNoError(t *testing.T) {
	f := newFixture(t)
	f.git.Settings.Remote.AuthMode = configs.AuthModeSSHKey
	require.NoError(t, f.git.Keys.Generate(credentials.KeyTypeEd25519, []byte("1234"), "test", false))
	f.git.Authenticator = credentials.PromptAuthenticator{
		Prompt: func(string) ([]byte, error) { return nil, kerrors.ErrCancelledByUser },
	}
	f.git.Cache.SetPassword([]byte("hunter2"))

	err := f.git.Run(ctx, RequestPush, RunOptions{})

	assert.ErrorIs(t, err, kerrors.ErrCancelledByUser)
	assert.Empty(t, f.presenter.errors)
	assert.Zero(t, f.opener.count())
	_, ok := f.git.Cache.Password()
	assert.False(t, ok, "cancellation resets the cached password")
}

func TestFailedPINChallengeIsShown(t *testing.T) {
	f := newFixture(t)
	f.git.Settings.Remote.AuthMode = configs.AuthModeSSHKey
	require.NoError(t, f.git.Keys.Generate(credentials.KeyTypeEd25519, []byte("1234"), "test", false))
	f.git.Authenticator = credentials.PromptAuthenticator{
		Prompt: func(string) ([]byte, error) { return nil, errors.New("sensor unavailable") },
	}

	err := f.git.Run(ctx, RequestPush, RunOptions{})

	var ge *gitops.GitError
	require.ErrorAs(t, err, &ge)
	assert.ErrorIs(t, err, kerrors.ErrDeviceAuthFailed)
	assert.Len(t, f.presenter.errors, 1)
	assert.Zero(t, f.opener.count())
}

func TestPushRejectedIsShownOnce(t *testing.T) {
	f := newFixture(t)
	f.engine.PushResult = &vcs.PushResult{Updates: []vcs.RefUpdate{
		{Ref: "refs/heads/main", Status: vcs.PushRejectedNonFastForward},
	}}
	f.git.Cache.SetPassword([]byte("hunter2"))
	f.git.Cache.SetKeySecret([]byte("1234"))

	err := f.git.Run(ctx, RequestPush, RunOptions{})

	var ge *gitops.GitError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, gitops.PushNonFastForward, ge.Kind)
	require.Len(t, f.presenter.errors, 1)
	assert.Same(t, ge, f.presenter.errors[0])

	_, ok := f.git.Cache.Password()
	assert.False(t, ok)
	_, ok = f.git.Cache.KeySecret()
	assert.False(t, ok)
}

// failingPush fails the first push with err and then behaves normally.
type failingPush struct {
	*vcstest.Engine
	err    error
	failed int
	limit  int
}

func (e *failingPush) Push(ctx context.Context, remote vcs.Remote, all bool) (*vcs.PushResult, error) {
	res, err := e.Engine.Push(ctx, remote, all)
	if e.failed < e.limit {
		e.failed++
		return nil, e.err
	}
	return res, err
}

func TestTooManyChannelsRetriesOnceWithoutMultiplexing(t *testing.T) {
	f := newFixture(t)
	engine := &failingPush{Engine: f.engine, err: errors.New("ssh: cannot open additional channels"), limit: 1}
	f.git.Engine = engine

	require.NoError(t, f.git.Run(ctx, RequestSync, RunOptions{}))

	assert.False(t, f.git.Settings.Remote.UseMultiplexing)
	assert.Equal(t, 1, f.saves)
	assert.Empty(t, f.presenter.errors)
	// One sync session, then pull and push on their own sessions.
	assert.Equal(t, 3, f.opener.count())
	assert.Equal(t, []string{"Add", "Status", "Pull", "Push", "Add", "Status", "Pull", "Push"}, f.engine.Methods())

	entries, err := audit.ReadEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Retried)
	assert.Equal(t, audit.OutcomeSuccess, entries[0].Outcome)
}

func TestTooManyChannelsFallbackIsOneShot(t *testing.T) {
	f := newFixture(t)
	engine := &failingPush{Engine: f.engine, err: errors.New("ssh: cannot open additional channels"), limit: 2}
	f.git.Engine = engine

	err := f.git.Run(ctx, RequestSync, RunOptions{})

	var ge *gitops.GitError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, gitops.TooManyChannels, ge.Kind)
	assert.Len(t, f.presenter.errors, 1)
	assert.Equal(t, 2, engine.failed)
}

func TestRunRecordsAuditEntry(t *testing.T) {
	f := newFixture(t)
	f.engine.Errors["Pull"] = errors.New("dial tcp: i/o timeout")

	require.Error(t, f.git.Run(ctx, RequestPull, RunOptions{}))

	entries, err := audit.ReadEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "git pull", entry.Operation)
	assert.Equal(t, "tester", entry.User)
	assert.Equal(t, audit.OutcomeFailed, entry.Outcome)
	assert.Equal(t, "Unknown", entry.Kind)
	assert.Equal(t, "dial tcp: i/o timeout", entry.Error)
	assert.Equal(t, "git@example.com:me/store.git", entry.Remote)
	assert.Equal(t, string(configs.AuthModePassword), entry.AuthMode)
	assert.Equal(t, 1, entry.Sessions)
	assert.NotEmpty(t, entry.ID)
}

func TestRecoverWhenNothingToRecover(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.git.Run(ctx, RequestRecover, RunOptions{}))
	assert.Len(t, f.presenter.notices, 1)
	assert.Zero(t, f.opener.count())
}

func TestRecoverFromRebase(t *testing.T) {
	f := newFixture(t)
	f.engine.RepoState = vcs.StateRebasing

	require.NoError(t, f.git.Run(ctx, RequestRecover, RunOptions{}))
	assert.Equal(t, []string{"Rebase", "Checkout", "Push", "Checkout"}, f.engine.Methods())
	assert.Equal(t, 1, f.opener.count())
}

func TestUnknownRequest(t *testing.T) {
	f := newFixture(t)
	err := f.git.Run(ctx, Request("bisect"), RunOptions{})

	var ge *gitops.GitError
	require.ErrorAs(t, err, &ge)
	assert.ErrorIs(t, err, kerrors.ErrUnsupportedCommand)
}
