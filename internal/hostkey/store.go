package hostkey

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// ErrHostKeyChanged is wrapped by every MismatchError.
var ErrHostKeyChanged = errors.New("remote host key changed")

// MismatchError reports a presented host key that differs from the pin.
type MismatchError struct {
	Host     string
	Pinned   string
	Received string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v for %s: pinned %s, received %s", ErrHostKeyChanged, e.Host, e.Pinned, e.Received)
}

func (e *MismatchError) Unwrap() error {
	return ErrHostKeyChanged
}

// Store persists one pinned fingerprint at a fixed path.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Pinned returns the stored fingerprint and whether one exists.
func (s *Store) Pinned() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *Store) read() (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read pinned host key: %w", err)
	}
	fp := strings.TrimSpace(string(data))
	if fp == "" {
		return "", false, nil
	}
	return fp, true, nil
}

// Clear removes the pin so the next connection is trusted on first use.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear pinned host key: %w", err)
	}
	return nil
}

// Verify implements ssh.HostKeyCallback.
func (s *Store) Verify(hostname string, _ net.Addr, key ssh.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	received := ssh.FingerprintSHA256(key)

	pinned, ok, err := s.read()
	if err != nil {
		return err
	}
	if !ok {
		return s.pin(received)
	}

	if subtle.ConstantTimeCompare([]byte(pinned), []byte(received)) != 1 {
		return &MismatchError{Host: hostname, Pinned: pinned, Received: received}
	}
	return nil
}

// Callback returns Verify as an ssh.HostKeyCallback.
func (s *Store) Callback() ssh.HostKeyCallback {
	return s.Verify
}

func (s *Store) pin(fingerprint string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create host key directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(fingerprint+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to pin host key: %w", err)
	}
	return nil
}
