package transport

import (
	"context"
	"sync"
	"time"

	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/credentials"
	kerrors "github.com/PolarWolf314/passgit/internal/errors"
	"github.com/PolarWolf314/passgit/internal/hostkey"
	logger "github.com/PolarWolf314/passgit/internal/logging"

	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	"golang.org/x/crypto/ssh"
)

// Credentials is what a session may offer the remote. Only the fields that
// match Mode are used.
type Credentials struct {
	Mode configs.AuthMode

	// Passwords answers password and keyboard-interactive prompts.
	Passwords *credentials.Finder

	// Signers loads the SSH key. It is called on the first handshake that
	// reaches public key auth, never earlier.
	Signers func() ([]ssh.Signer, error)
}

// Factory opens one Session per operation.
type Factory struct {
	hostKeys *hostkey.Store
	log      logger.Logger
}

func NewFactory(hostKeys *hostkey.Store, log logger.Logger) *Factory {
	return &Factory{hostKeys: hostKeys, log: log}
}

// Open resolves the remote in cfg and prepares its auth method. No network
// traffic happens here. An SSH session dials when its first command runs
// and later commands reuse that connection.
func (f *Factory) Open(ctx context.Context, cfg configs.RemoteConfig, creds Credentials) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !cfg.IsConfigured() {
		return nil, &SessionError{Cause: kerrors.ErrRemoteNotConfigured}
	}

	u, err := configs.ParseRemoteURL(cfg.URL)
	if err != nil {
		return nil, &SessionError{Remote: cfg.URL, Cause: err}
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = configs.DefaultTimeoutSeconds * time.Second
	}

	s := &Session{
		Host:     u.Host,
		Port:     u.Port,
		User:     u.User,
		Protocol: u.Protocol,
		proxy:    proxyOptions(u.Protocol, cfg),
	}

	switch u.Protocol {
	case configs.ProtocolSSH:
		installSSHTransport()
		auth := newSSHAuth(u.User, creds, f.hostKeys, timeout)
		s.conn = newSSHConn(auth, s.proxy, timeout, f.log)
		s.endpoint = sshEndpoint(u)
		s.auth = auth
		s.credErr = auth.Err
		s.finder = creds.Passwords
	case configs.ProtocolHTTPS:
		installHTTPClient(timeout)
		s.endpoint = u.Raw
		if creds.Mode == configs.AuthModePassword && creds.Passwords != nil {
			s.auth = &httpsAuth{user: u.User, finder: creds.Passwords}
			s.credErr = creds.Passwords.Err
			s.finder = creds.Passwords
		}
	default:
		return nil, &SessionError{Remote: cfg.URL, Cause: kerrors.ErrUnsupportedProtocol}
	}

	f.log.Debugf("Opened %s session for %s (user %q, proxy %q)", u.Protocol, s.endpoint, u.User, s.proxy.URL)
	return s, nil
}

// Session is the transport context of one operation.
type Session struct {
	Host     string
	Port     int
	User     string
	Protocol configs.Protocol

	endpoint string
	auth     gittransport.AuthMethod
	proxy    gittransport.ProxyOptions
	finder   *credentials.Finder
	credErr  func() error
	conn     *sshConn

	mu     sync.Mutex
	closed bool
}

// Endpoint is the remote URL in a form go-git accepts.
func (s *Session) Endpoint() string { return s.endpoint }

// Auth returns the auth method, or nil when the remote needs none.
func (s *Session) Auth() gittransport.AuthMethod { return s.auth }

func (s *Session) Proxy() gittransport.ProxyOptions { return s.proxy }

// CredentialErr returns the first error hit while obtaining credentials,
// such as a cancelled password prompt. go-git only sees a failed
// handshake, so callers use this to recover the real cause.
func (s *Session) CredentialErr() error {
	if s.credErr == nil {
		return nil
	}
	return s.credErr()
}

// Close zeroes the password held for this operation and hangs up the SSH
// connection. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.finder != nil {
		s.finder.Forget()
	}
	if s.conn != nil {
		return s.conn.close()
	}
	return nil
}
