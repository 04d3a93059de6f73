package gitops

import (
	"context"
	"errors"
	"fmt"

	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/credentials"
	kerrors "github.com/PolarWolf314/passgit/internal/errors"
	"github.com/PolarWolf314/passgit/internal/transport"
	"github.com/PolarWolf314/passgit/internal/vcs"

	"golang.org/x/crypto/ssh"
)

// Operation is a named sequence of commands. Build one with the New*
// constructors and run it once.
type Operation struct {
	Name         string
	Commands     []Command
	RequiresAuth bool

	// preExecute may veto the run by returning false.
	preExecute func(ctx context.Context) (bool, error)

	// postExecute runs after the commands, whatever their outcome.
	postExecute func(err error)

	env   *Env
	creds transport.Credentials
}

// Execute runs the operation with whatever credentials were registered.
// A vetoed run is a successful no-op.
func (o *Operation) Execute(ctx context.Context) (err error) {
	if o.postExecute != nil {
		defer func() { o.postExecute(err) }()
	}
	if o.preExecute != nil {
		proceed, preErr := o.preExecute(ctx)
		if preErr != nil {
			return preErr
		}
		if !proceed {
			o.env.Log.Debugf("%s: nothing to do", o.Name)
			return nil
		}
	}

	var remote *vcs.Remote
	if o.RequiresAuth {
		session, openErr := o.env.Sessions.Open(ctx, o.env.Remote, o.creds)
		if openErr != nil {
			return openErr
		}
		defer func() {
			if cerr := session.CredentialErr(); err != nil && cerr != nil {
				err = &transport.AuthExhaustedError{Cause: cerr}
			}
			_ = session.Close()
		}()
		remote = &vcs.Remote{
			Name:  DefaultRemote,
			URL:   session.Endpoint(),
			Auth:  session.Auth(),
			Proxy: session.Proxy(),
		}
	}

	return NewExecutor(o.env, remote).Run(ctx, o.Name, o.Commands)
}

// ExecuteAfterAuthentication registers the credentials mode calls for and
// then runs the operation. Operations without RequiresAuth skip straight
// to Execute.
func (o *Operation) ExecuteAfterAuthentication(ctx context.Context, mode configs.AuthMode) error {
	if !o.RequiresAuth {
		return o.Execute(ctx)
	}

	creds, err := o.env.credentialsFor(ctx, mode)
	if err != nil {
		return err
	}
	o.creds = creds
	return o.Execute(ctx)
}

func (e *Env) credentialsFor(ctx context.Context, mode configs.AuthMode) (transport.Credentials, error) {
	creds := transport.Credentials{Mode: mode}

	switch mode {
	case configs.AuthModeNone:
		return creds, nil

	case configs.AuthModePassword:
		creds.Passwords = e.Passwords
		return creds, nil

	case configs.AuthModeSSHKey:
		if e.Keys == nil || !e.Keys.HasKey() {
			if e.Prompter != nil {
				e.Prompter.OfferKeySetup()
			}
			return creds, kerrors.ErrSSHKeyMissing
		}

		gated, err := e.Keys.RequiresDeviceAuth()
		if err != nil {
			return creds, err
		}

		var secret []byte
		if gated {
			secret, err = e.unlockKey(ctx)
			if err != nil {
				return creds, err
			}
		}

		keys := e.Keys
		creds.Signers = func() ([]ssh.Signer, error) {
			signer, err := keys.Signer(secret)
			if err != nil {
				return nil, err
			}
			return []ssh.Signer{signer}, nil
		}
		return creds, nil

	default:
		return creds, fmt.Errorf("%w: %q", kerrors.ErrInvalidAuthMode, mode)
	}
}

// unlockKey returns the PIN for a gated key, from the cache or by running
// the device challenge.
func (e *Env) unlockKey(ctx context.Context) ([]byte, error) {
	if e.Cache != nil {
		if secret, ok := e.Cache.KeySecret(); ok {
			return secret, nil
		}
	}
	if e.Authenticator == nil {
		return nil, kerrors.ErrNotInteractive
	}

	res := credentials.Await(ctx, e.Authenticator, "Unlock your SSH key")
	switch res.Status {
	case credentials.ChallengeSucceeded:
		if _, err := e.Keys.Signer(res.Secret); err != nil {
			return nil, err
		}
		if e.Cache != nil {
			e.Cache.SetKeySecret(res.Secret)
		}
		return res.Secret, nil
	case credentials.ChallengeCancelled:
		if res.Err != nil && !errors.Is(res.Err, kerrors.ErrCancelledByUser) {
			return nil, fmt.Errorf("%w: %v", kerrors.ErrCancelledByUser, res.Err)
		}
		return nil, kerrors.ErrCancelledByUser
	default:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %v", kerrors.ErrDeviceAuthFailed, res.Err)
		}
		return nil, kerrors.ErrDeviceAuthFailed
	}
}
