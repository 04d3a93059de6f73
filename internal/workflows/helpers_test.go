package workflows

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/credentials"
	"github.com/PolarWolf314/passgit/internal/gitops"
	"github.com/PolarWolf314/passgit/internal/hostkey"
	logger "github.com/PolarWolf314/passgit/internal/logging"
	"github.com/PolarWolf314/passgit/internal/transport"
	"github.com/PolarWolf314/passgit/internal/vcs/vcstest"
)

var ctx = context.Background()

// withDataDir points the user settings at temp directories for the
// duration of the test, so audit entries land there.
func withDataDir(t *testing.T) *configs.UserSettings {
	t.Helper()
	tempDir := t.TempDir()
	original := configs.UserPassgitSettings
	configs.UserPassgitSettings = configs.NewUserSettings(filepath.Join(tempDir, "config"), filepath.Join(tempDir, "data"), "tester")
	t.Cleanup(func() {
		configs.UserPassgitSettings = original
	})
	return configs.UserPassgitSettings
}

// countingOpener opens real sessions, which never dial on Open.
type countingOpener struct {
	factory *transport.Factory

	mu    sync.Mutex
	opens int
}

func (o *countingOpener) Open(ctx context.Context, cfg configs.RemoteConfig, creds transport.Credentials) (*transport.Session, error) {
	o.mu.Lock()
	o.opens++
	o.mu.Unlock()
	return o.factory.Open(ctx, cfg, creds)
}

func (o *countingOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

type fakePresenter struct {
	mu        sync.Mutex
	errors    []*gitops.GitError
	notices   []string
	keyOffers int
}

func (p *fakePresenter) Progress(string) func() { return func() {} }

func (p *fakePresenter) Notice(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, msg)
}

func (p *fakePresenter) OfferKeySetup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keyOffers++
}

func (p *fakePresenter) ShowError(err *gitops.GitError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, err)
}

type fixture struct {
	git       *Git
	engine    *vcstest.Engine
	opener    *countingOpener
	presenter *fakePresenter
	hostKeys  *hostkey.Store
	saves     int
	paths     *configs.UserSettings
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	paths := withDataDir(t)

	hostKeys := hostkey.NewStore(paths.HostKeyPath)
	cache := credentials.NewCache(time.Minute)
	settings := configs.DefaultSettings()
	settings.Remote.URL = "git@example.com:me/store.git"
	settings.Remote.AuthMode = configs.AuthModePassword
	settings.Remote.Branch = "main"
	settings.Author = configs.Author{Name: "Ada", Email: "ada@example.com"}

	f := &fixture{
		engine:    vcstest.New(),
		opener:    &countingOpener{factory: transport.NewFactory(hostKeys, logger.Logger{})},
		presenter: &fakePresenter{},
		hostKeys:  hostKeys,
		paths:     paths,
	}
	f.git = &Git{
		Settings:  settings,
		Engine:    f.engine,
		Sessions:  f.opener,
		Keys:      credentials.NewKeyStore(paths.KeysPath),
		Passwords: credentials.NewFinder(nil, cache),
		Cache:     cache,
		Presenter: f.presenter,
		SaveSettings: func(*configs.Settings) error {
			f.saves++
			return nil
		},
		Now: func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	return f
}
