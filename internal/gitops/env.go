package gitops

import (
	"context"
	"fmt"
	"time"

	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/credentials"
	logger "github.com/PolarWolf314/passgit/internal/logging"
	"github.com/PolarWolf314/passgit/internal/transport"
	"github.com/PolarWolf314/passgit/internal/vcs"
)

// DefaultRemote is the remote name operations push to and reset from.
const DefaultRemote = "origin"

// SessionOpener opens the transport session of one operation.
// *transport.Factory implements it.
type SessionOpener interface {
	Open(ctx context.Context, cfg configs.RemoteConfig, creds transport.Credentials) (*transport.Session, error)
}

// Prompter is the part of the UI operations talk to while running.
type Prompter interface {
	// Progress shows an indicator until the returned func is called.
	Progress(message string) (stop func())

	// Notice shows an informational message.
	Notice(message string)

	// OfferKeySetup tells the user an SSH key is needed and how to
	// generate or import one.
	OfferKeySetup()
}

// Env is what operations need from the rest of passgit.
type Env struct {
	Engine   vcs.Engine
	Sessions SessionOpener
	Remote   configs.RemoteConfig
	Author   configs.Author
	Prompter Prompter
	Log      logger.Logger

	Keys          *credentials.KeyStore
	Passwords     *credentials.Finder
	Cache         *credentials.Cache
	Authenticator credentials.Authenticator

	// Now defaults to time.Now.
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) branch() string {
	if e.Remote.Branch == "" {
		return configs.DefaultBranch
	}
	return e.Remote.Branch
}

func (e *Env) progress(message string) func() {
	if e.Prompter == nil {
		return func() {}
	}
	return e.Prompter.Progress(message)
}

func (e *Env) notice(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.Log.Infof("%s", msg)
	if e.Prompter != nil {
		e.Prompter.Notice(msg)
	}
}
