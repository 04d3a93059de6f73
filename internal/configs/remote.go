package configs

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	kerrors "github.com/PolarWolf314/passgit/internal/errors"
)

// Protocol is the transport family derived from a remote URL.
type Protocol string

const (
	ProtocolHTTPS Protocol = "https"
	ProtocolSSH   Protocol = "ssh"
)

// AllowedAuthModes returns the auth modes a protocol admits, in display order.
func AllowedAuthModes(p Protocol) []AuthMode {
	switch p {
	case ProtocolHTTPS:
		return []AuthMode{AuthModeNone, AuthModePassword}
	case ProtocolSSH:
		return []AuthMode{AuthModePassword, AuthModeSSHKey}
	default:
		return nil
	}
}

// RemoteURL is a parsed remote address. SCP marks the scheme-less
// user@host:path form.
type RemoteURL struct {
	Raw      string
	Scheme   string
	Protocol Protocol
	User     string
	Host     string
	Port     int
	Path     string
	SCP      bool
}

// ParseRemoteURL parses http(s)://, ssh:// and scp-like remotes.
//
// Usernames may contain '@' (an email address is common), which net/url
// rejects, so the ssh forms split user from host on the last '@' of the
// authority.
func ParseRemoteURL(raw string) (*RemoteURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty url", kerrors.ErrInvalidRemoteURL)
	}

	if i := strings.Index(raw, "://"); i >= 0 {
		scheme := strings.ToLower(raw[:i])
		switch scheme {
		case "http", "https":
			return parseHTTPURL(raw, scheme)
		case "ssh":
			return parseSSHURL(raw, raw[i+3:])
		default:
			return nil, fmt.Errorf("%w: %q", kerrors.ErrUnsupportedProtocol, scheme)
		}
	}

	return parseSCPURL(raw)
}

func parseHTTPURL(raw, scheme string) (*RemoteURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidRemoteURL, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", kerrors.ErrInvalidRemoteURL)
	}

	port := 443
	if scheme == "http" {
		port = 80
	}
	if p := u.Port(); p != "" {
		if port, err = parsePort(p); err != nil {
			return nil, err
		}
	}

	var user string
	if u.User != nil {
		user = u.User.Username()
	}

	return &RemoteURL{
		Raw:      raw,
		Scheme:   scheme,
		Protocol: ProtocolHTTPS,
		User:     user,
		Host:     u.Hostname(),
		Port:     port,
		Path:     u.Path,
	}, nil
}

func parseSSHURL(raw, rest string) (*RemoteURL, error) {
	authority, path := rest, ""
	if slash := strings.Index(rest, "/"); slash >= 0 {
		authority, path = rest[:slash], rest[slash:]
	}

	user, hostPort := SplitUserHost(authority)
	host, port, err := splitHostPort(hostPort, 22)
	if err != nil {
		return nil, err
	}
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", kerrors.ErrInvalidRemoteURL)
	}

	if unescaped, err := url.PathUnescape(user); err == nil {
		user = unescaped
	}

	return &RemoteURL{
		Raw:      raw,
		Scheme:   "ssh",
		Protocol: ProtocolSSH,
		User:     user,
		Host:     host,
		Port:     port,
		Path:     path,
	}, nil
}

func parseSCPURL(raw string) (*RemoteURL, error) {
	colon := strings.Index(raw, ":")
	if colon < 0 {
		// A bare path. It has no scheme so it counts as ssh, and validation
		// reports the missing user.
		return &RemoteURL{Raw: raw, Protocol: ProtocolSSH, Path: raw, Port: 22, SCP: true}, nil
	}

	user, host := SplitUserHost(raw[:colon])
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", kerrors.ErrInvalidRemoteURL)
	}

	return &RemoteURL{
		Raw:      raw,
		Protocol: ProtocolSSH,
		User:     user,
		Host:     host,
		Port:     22,
		Path:     raw[colon+1:],
		SCP:      true,
	}, nil
}

// SplitUserHost splits a user@host authority on its last '@'. The user is
// empty when there is no '@'.
func SplitUserHost(authority string) (user, host string) {
	at := strings.LastIndex(authority, "@")
	if at < 0 {
		return "", authority
	}
	return authority[:at], authority[at+1:]
}

func splitHostPort(hostPort string, defaultPort int) (string, int, error) {
	if !strings.Contains(hostPort, ":") || (strings.HasPrefix(hostPort, "[") && strings.HasSuffix(hostPort, "]")) {
		return strings.Trim(hostPort, "[]"), defaultPort, nil
	}
	host, p, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", kerrors.ErrInvalidRemoteURL, err)
	}
	if p == "" {
		return host, defaultPort, nil
	}
	port, err := parsePort(p)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func parsePort(p string) (int, error) {
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: bad port %q", kerrors.ErrInvalidRemoteURL, p)
	}
	return port, nil
}

// ValidationKind is the outcome of validating a connection change.
type ValidationKind int

const (
	Valid ValidationKind = iota
	MissingUsername
	AuthModeMismatch
	FailedToParseURL
)

func (k ValidationKind) String() string {
	switch k {
	case Valid:
		return "valid"
	case MissingUsername:
		return "missing username"
	case AuthModeMismatch:
		return "auth mode mismatch"
	case FailedToParseURL:
		return "failed to parse url"
	default:
		return fmt.Sprintf("ValidationKind(%d)", int(k))
	}
}

type ValidationResult struct {
	Kind     ValidationKind
	Protocol Protocol
	Allowed  []AuthMode
	URL      *RemoteURL
}

// Message renders the result for the user.
func (r ValidationResult) Message() string {
	switch r.Kind {
	case Valid:
		return "connection settings are valid"
	case MissingUsername:
		return fmt.Sprintf("a %s remote needs a username, e.g. git@host:path", r.Protocol)
	case AuthModeMismatch:
		allowed := make([]string, len(r.Allowed))
		for i, m := range r.Allowed {
			allowed[i] = string(m)
		}
		return fmt.Sprintf("a %s remote only supports auth modes: %s", r.Protocol, strings.Join(allowed, ", "))
	default:
		return "the remote url could not be parsed"
	}
}

// ValidateConnection checks an auth mode against a remote URL without
// touching any state.
func ValidateConnection(mode AuthMode, rawURL string) ValidationResult {
	parsed, err := ParseRemoteURL(rawURL)
	if err != nil {
		return ValidationResult{Kind: FailedToParseURL}
	}

	if mode != AuthModeNone && parsed.Protocol != ProtocolHTTPS && strings.TrimSpace(parsed.User) == "" {
		return ValidationResult{Kind: MissingUsername, Protocol: parsed.Protocol, URL: parsed}
	}

	allowed := AllowedAuthModes(parsed.Protocol)
	for _, m := range allowed {
		if m == mode {
			return ValidationResult{Kind: Valid, Protocol: parsed.Protocol, URL: parsed}
		}
	}
	return ValidationResult{Kind: AuthModeMismatch, Protocol: parsed.Protocol, Allowed: allowed, URL: parsed}
}

// UpdateConnectionSettingsIfValid applies mode and url when they validate.
// The second return value reports whether the URL changed, in which case
// the caller must drop per-remote state (pinned host key, cached password).
func (s *Settings) UpdateConnectionSettingsIfValid(mode AuthMode, rawURL string) (ValidationResult, bool) {
	result := ValidateConnection(mode, rawURL)
	if result.Kind != Valid {
		return result, false
	}

	rawURL = strings.TrimSpace(rawURL)
	changed := rawURL != s.Remote.URL
	s.Remote.URL = rawURL
	s.Remote.AuthMode = mode
	if changed {
		s.Remote.UseMultiplexing = true
	}
	return result, changed
}
