package workflows

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/PolarWolf314/passgit/internal/credentials"
	logger "github.com/PolarWolf314/passgit/internal/logging"
	"github.com/PolarWolf314/passgit/internal/transport/sshtest"
	"github.com/PolarWolf314/passgit/internal/vcs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSSHFixture runs the orchestrator with a real engine against a git
// server reached over SSH.
func newSSHFixture(t *testing.T) (*fixture, *sshtest.Server, *vcs.GoGit) {
	t.Helper()
	sshtest.RequireGit(t)

	srv := &sshtest.Server{Root: t.TempDir(), User: "git", Password: "hunter2"}
	srv.InitBare(t, "store.git")
	addr := srv.Start(t, sshtest.NewHostKey(t))

	f := newFixture(t)
	engine := vcs.NewGoGit(filepath.Join(t.TempDir(), "store"), logger.Logger{})
	f.git.Engine = engine
	f.git.Settings.Remote.URL = "ssh://git@" + addr + "/store.git"
	f.git.Passwords = credentials.NewFinder(func(bool) ([]byte, error) {
		return []byte("hunter2"), nil
	}, f.git.Cache)
	return f, srv, engine
}

func TestSyncHandshakesOverSSH(t *testing.T) {
	for _, tc := range []struct {
		multiplexing bool
		handshakes   int
	}{
		{multiplexing: true, handshakes: 1},
		{multiplexing: false, handshakes: 2},
	} {
		t.Run(fmt.Sprintf("multiplexing=%t", tc.multiplexing), func(t *testing.T) {
			f, srv, engine := newSSHFixture(t)
			f.git.Settings.Remote.UseMultiplexing = tc.multiplexing

			require.NoError(t, f.git.Run(ctx, RequestClone, RunOptions{}))
			require.Equal(t, 1, srv.Handshakes())

			require.NoError(t, os.WriteFile(filepath.Join(engine.Path(), "site.gpg"), []byte("secret"), 0600))
			require.NoError(t, f.git.Run(ctx, RequestSync, RunOptions{}))

			assert.Equal(t, tc.handshakes, srv.Handshakes()-1)
			assert.Empty(t, f.presenter.errors)

			n, err := engine.Status(ctx)
			require.NoError(t, err)
			assert.Zero(t, n, "the entry was committed and pushed")
		})
	}
}
