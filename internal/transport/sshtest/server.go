// Package sshtest runs an SSH server on loopback that serves git
// repositories with the system git binary. It counts handshakes and
// channels so tests can see how a client uses its connections.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// Server accepts User with Password and runs git-upload-pack and
// git-receive-pack against repositories under Root.
type Server struct {
	Root     string
	User     string
	Password string

	// Stall makes every command hang without writing anything.
	Stall bool

	// MaxChannels, when set, limits the session channels per connection.
	MaxChannels int

	handshakes atomic.Int32
	channels   atomic.Int32

	mu    sync.Mutex
	conns []net.Conn
}

// RequireGit skips the test when git is not on PATH.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not on PATH")
	}
}

// NewHostKey returns a fresh ed25519 host key.
func NewHostKey(t testing.TB) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

// InitBare creates an empty bare repository at Root/name.
func (s *Server) InitBare(t testing.TB, name string) {
	t.Helper()
	out, err := exec.Command("git", "init", "--bare", "--initial-branch=main", filepath.Join(s.Root, name)).CombinedOutput()
	require.NoError(t, err, string(out))
}

// Start listens on loopback and returns the address. The server stops
// when the test ends.
func (s *Server) Start(t testing.TB, hostKey ssh.Signer) string {
	t.Helper()

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == s.User && string(pass) == s.Password {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	cfg.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ln.Close()
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, c := range s.conns {
			_ = c.Close()
		}
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.conns = append(s.conns, conn)
			s.mu.Unlock()
			go s.serve(conn, cfg)
		}
	}()

	return ln.Addr().String()
}

// Handshakes is the number of connections that authenticated.
func (s *Server) Handshakes() int { return int(s.handshakes.Load()) }

// Channels is the number of session channels opened.
func (s *Server) Channels() int { return int(s.channels.Load()) }

func (s *Server) serve(conn net.Conn, cfg *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer sconn.Close()
	s.handshakes.Add(1)

	go ssh.DiscardRequests(reqs)
	opened := 0
	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "session channels only")
			continue
		}
		if s.MaxChannels > 0 && opened >= s.MaxChannels {
			_ = nc.Reject(ssh.Prohibited, "open failed")
			continue
		}
		opened++
		ch, chReqs, err := nc.Accept()
		if err != nil {
			continue
		}
		s.channels.Add(1)
		go s.session(ch, chReqs)
	}
}

func (s *Server) session(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()

	for req := range reqs {
		if req.Type != "exec" {
			_ = req.Reply(false, nil)
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			continue
		}
		service, dir, ok := s.parse(payload.Command)
		if !ok {
			_ = req.Reply(false, nil)
			continue
		}
		_ = req.Reply(true, nil)

		if s.Stall {
			_, _ = io.Copy(io.Discard, ch)
			return
		}

		status := s.run(ch, service, dir)
		_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
		return
	}
}

// parse splits "git-upload-pack '/store.git'" into the git subcommand and
// the repository directory under Root.
func (s *Server) parse(command string) (string, string, bool) {
	service, path, ok := strings.Cut(command, " ")
	if !ok {
		return "", "", false
	}
	sub := strings.TrimPrefix(service, "git-")
	if sub != "upload-pack" && sub != "receive-pack" {
		return "", "", false
	}
	path = strings.Trim(path, "'")
	return sub, filepath.Join(s.Root, filepath.FromSlash(path)), true
}

func (s *Server) run(ch ssh.Channel, service, dir string) uint32 {
	cmd := exec.Command("git", service, dir)
	cmd.Stdin = ch
	cmd.Stdout = ch
	cmd.Stderr = ch.Stderr()
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return uint32(exit.ExitCode())
		}
		return 1
	}
	return 0
}
