package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/hostkey"

	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"
)

const passwordRetries = 3

type algorithmSet struct {
	kex      []string
	hostKeys []string
	ciphers  []string
	macs     []string
}

var (
	algorithmsOnce sync.Once
	sshAlgorithms  algorithmSet
)

// algorithms returns the preference lists offered on every connection.
// SHA-1 based kex, host key and MAC algorithms are left out, as are CBC
// ciphers.
func algorithms() algorithmSet {
	algorithmsOnce.Do(func() {
		sshAlgorithms = algorithmSet{
			kex: []string{
				"curve25519-sha256",
				"curve25519-sha256@libssh.org",
				"ecdh-sha2-nistp521",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp256",
				"diffie-hellman-group16-sha512",
				"diffie-hellman-group14-sha256",
			},
			hostKeys: []string{
				ssh.KeyAlgoED25519,
				ssh.KeyAlgoECDSA521,
				ssh.KeyAlgoECDSA384,
				ssh.KeyAlgoECDSA256,
				ssh.KeyAlgoRSASHA512,
				ssh.KeyAlgoRSASHA256,
			},
			ciphers: []string{
				"chacha20-poly1305@openssh.com",
				"aes256-gcm@openssh.com",
				"aes128-gcm@openssh.com",
				"aes256-ctr",
				"aes192-ctr",
				"aes128-ctr",
			},
			macs: []string{
				"hmac-sha2-512-etm@openssh.com",
				"hmac-sha2-256-etm@openssh.com",
				"hmac-sha2-512",
				"hmac-sha2-256",
			},
		}
	})
	return sshAlgorithms
}

// sshAuth is the gitssh.AuthMethod handed to go-git. It offers the public
// key first, then password and keyboard-interactive.
type sshAuth struct {
	user     string
	creds    Credentials
	hostKeys *hostkey.Store
	timeout  time.Duration
	conn     *sshConn

	mu  sync.Mutex
	err error
}

var _ gitssh.AuthMethod = (*sshAuth)(nil)

func newSSHAuth(user string, creds Credentials, hostKeys *hostkey.Store, timeout time.Duration) *sshAuth {
	return &sshAuth{user: user, creds: creds, hostKeys: hostKeys, timeout: timeout}
}

func (a *sshAuth) Name() string { return "passgit-ssh" }

func (a *sshAuth) String() string {
	return fmt.Sprintf("user: %s, name: %s", a.user, a.Name())
}

func (a *sshAuth) ClientConfig() (*ssh.ClientConfig, error) {
	if a.hostKeys == nil {
		return nil, fmt.Errorf("no host key store configured")
	}

	alg := algorithms()
	return &ssh.ClientConfig{
		Config: ssh.Config{
			KeyExchanges: alg.kex,
			Ciphers:      alg.ciphers,
			MACs:         alg.macs,
		},
		User:              a.user,
		Auth:              a.methods(),
		HostKeyCallback:   a.hostKeys.Callback(),
		HostKeyAlgorithms: alg.hostKeys,
		Timeout:           a.timeout,
	}, nil
}

// methods builds the auth chain for one connection. The password attempt
// counter is per connection so only a rejection on this handshake counts
// as a retry.
func (a *sshAuth) methods() []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if a.creds.Mode == configs.AuthModeSSHKey && a.creds.Signers != nil {
		methods = append(methods, ssh.PublicKeysCallback(a.signers))
	}
	if a.creds.Passwords != nil {
		p := &passwordPrompt{auth: a}
		methods = append(methods,
			ssh.RetryableAuthMethod(ssh.PasswordCallback(p.password), passwordRetries),
			ssh.RetryableAuthMethod(ssh.KeyboardInteractive(p.keyboardInteractive), passwordRetries),
		)
	}
	return methods
}

func (a *sshAuth) signers() ([]ssh.Signer, error) {
	defer a.conn.holdDeadline()()
	signers, err := a.creds.Signers()
	if err != nil {
		a.fail(err)
		return nil, err
	}
	return signers, nil
}

type passwordPrompt struct {
	auth     *sshAuth
	attempts int
}

func (p *passwordPrompt) password() (string, error) {
	retry := p.attempts > 0
	p.attempts++
	defer p.auth.conn.holdDeadline()()

	pw, err := p.auth.creds.Passwords.Password(retry)
	if err != nil {
		p.auth.fail(err)
		return "", err
	}
	return pw, nil
}

func (p *passwordPrompt) keyboardInteractive(_, _ string, questions []string, echos []bool) ([]string, error) {
	answers := make([]string, len(questions))
	for i := range questions {
		if i < len(echos) && echos[i] {
			continue
		}
		pw, err := p.password()
		if err != nil {
			return nil, err
		}
		answers[i] = pw
	}
	return answers, nil
}

func (a *sshAuth) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		a.err = err
	}
}

// Err returns the first credential error seen during any handshake.
func (a *sshAuth) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// sshEndpoint rewrites a remote into a URL go-git's endpoint parser
// accepts. go-git cannot parse scp remotes whose user holds an '@' or
// whose path has no '/', so those become ssh:// URLs without a user. The
// user still reaches the server through sshAuth.
func sshEndpoint(u *configs.RemoteURL) string {
	if u.SCP && !strings.Contains(u.User, "@") && strings.Contains(u.Path, "/") {
		return u.Raw
	}
	path := strings.TrimPrefix(u.Path, "/")
	return fmt.Sprintf("ssh://%s/%s", net.JoinHostPort(u.Host, strconv.Itoa(u.Port)), path)
}
