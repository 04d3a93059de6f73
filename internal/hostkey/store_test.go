package hostkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func newTestKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	key, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("failed to wrap key: %v", err)
	}
	return key
}

func TestVerifyPinsOnFirstUse(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "data", ".host_key"))
	key := newTestKey(t)

	if err := store.Verify("example.com:22", nil, key); err != nil {
		t.Fatalf("first connection should be trusted: %v", err)
	}

	pinned, ok, err := store.Pinned()
	if err != nil || !ok {
		t.Fatalf("expected a pin, got ok=%v err=%v", ok, err)
	}
	if !strings.HasPrefix(pinned, "SHA256:") {
		t.Errorf("expected SHA256: prefix, got %q", pinned)
	}
	if pinned != ssh.FingerprintSHA256(key) {
		t.Errorf("pinned %q, want %q", pinned, ssh.FingerprintSHA256(key))
	}
}

func TestVerifySameKeyTwice(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), ".host_key"))
	key := newTestKey(t)

	if err := store.Verify("example.com:22", nil, key); err != nil {
		t.Fatalf("first connection failed: %v", err)
	}
	first, _, _ := store.Pinned()

	if err := store.Verify("example.com:22", nil, key); err != nil {
		t.Fatalf("second connection failed: %v", err)
	}
	second, _, _ := store.Pinned()

	if first != second {
		t.Errorf("pin changed between connections: %q then %q", first, second)
	}
}

func TestVerifyRejectsChangedKey(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), ".host_key"))

	if err := store.Verify("example.com:22", nil, newTestKey(t)); err != nil {
		t.Fatalf("first connection failed: %v", err)
	}

	err := store.Verify("example.com:22", nil, newTestKey(t))
	if err == nil {
		t.Fatal("expected mismatch error for a changed host key")
	}
	if !errors.Is(err, ErrHostKeyChanged) {
		t.Errorf("expected ErrHostKeyChanged, got %v", err)
	}
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *MismatchError, got %T", err)
	}
	if mismatch.Pinned == mismatch.Received {
		t.Error("mismatch should carry two different fingerprints")
	}
}

func TestClearAllowsRetrust(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".host_key")
	store := NewStore(path)

	if err := store.Verify("a:22", nil, newTestKey(t)); err != nil {
		t.Fatalf("first connection failed: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected pin file to be removed, stat err = %v", err)
	}

	if err := store.Verify("a:22", nil, newTestKey(t)); err != nil {
		t.Fatalf("new key should be trusted after clearing: %v", err)
	}
}

func TestClearWithoutPin(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), ".host_key"))
	if err := store.Clear(); err != nil {
		t.Fatalf("clearing a missing pin should succeed: %v", err)
	}
}
