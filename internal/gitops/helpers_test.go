package gitops

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/credentials"
	"github.com/PolarWolf314/passgit/internal/hostkey"
	logger "github.com/PolarWolf314/passgit/internal/logging"
	"github.com/PolarWolf314/passgit/internal/transport"
	"github.com/PolarWolf314/passgit/internal/vcs/vcstest"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// countingOpener opens real sessions, which never dial on Open, and keeps
// them for inspection.
type countingOpener struct {
	factory *transport.Factory

	mu       sync.Mutex
	sessions []*transport.Session
	creds    []transport.Credentials
}

func newCountingOpener(t *testing.T) *countingOpener {
	store := hostkey.NewStore(filepath.Join(t.TempDir(), ".host_key"))
	return &countingOpener{factory: transport.NewFactory(store, logger.Logger{})}
}

func (o *countingOpener) Open(ctx context.Context, cfg configs.RemoteConfig, creds transport.Credentials) (*transport.Session, error) {
	s, err := o.factory.Open(ctx, cfg, creds)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions = append(o.sessions, s)
	o.creds = append(o.creds, creds)
	return s, nil
}

func (o *countingOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

type fakePrompter struct {
	mu        sync.Mutex
	started   int
	stopped   int
	notices   []string
	keyOffers int
}

func (p *fakePrompter) Progress(string) func() {
	p.mu.Lock()
	p.started++
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.stopped++
		p.mu.Unlock()
	}
}

func (p *fakePrompter) Notice(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, msg)
}

func (p *fakePrompter) OfferKeySetup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keyOffers++
}

// fakeAuthenticator answers every challenge with result and counts calls.
type fakeAuthenticator struct {
	result credentials.ChallengeResult

	mu    sync.Mutex
	calls int
}

func (a *fakeAuthenticator) Challenge(_ string, result chan<- credentials.ChallengeResult) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	result <- a.result
	close(result)
}

type fixture struct {
	env      *Env
	engine   *vcstest.Engine
	opener   *countingOpener
	prompter *fakePrompter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine := vcstest.New()
	opener := newCountingOpener(t)
	prompter := &fakePrompter{}
	cache := credentials.NewCache(time.Minute)

	env := &Env{
		Engine:   engine,
		Sessions: opener,
		Remote: configs.RemoteConfig{
			URL:             "git@example.com:me/store.git",
			AuthMode:        configs.AuthModePassword,
			Branch:          "main",
			UseMultiplexing: true,
			TimeoutSeconds:  10,
		},
		Author:    configs.Author{Name: "Ada", Email: "ada@example.com"},
		Prompter:  prompter,
		Keys:      credentials.NewKeyStore(filepath.Join(t.TempDir(), "keys")),
		Passwords: credentials.NewFinder(nil, cache),
		Cache:     cache,
		Now:       func() time.Time { return fixedNow },
	}
	return &fixture{env: env, engine: engine, opener: opener, prompter: prompter}
}
