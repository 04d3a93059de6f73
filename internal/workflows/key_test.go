package workflows

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PolarWolf314/passgit/internal/audit"
	"github.com/PolarWolf314/passgit/internal/credentials"
	kerrors "github.com/PolarWolf314/passgit/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLifecycle(t *testing.T) {
	paths := withDataDir(t)
	store := credentials.NewKeyStore(paths.KeysPath)
	cache := credentials.NewCache(time.Minute)

	_, err := ShowKey(ctx, store)
	assert.ErrorIs(t, err, kerrors.ErrSSHKeyMissing)

	generated, err := GenerateKey(ctx, store, cache, GenerateKeyOptions{Type: credentials.KeyTypeEd25519, Comment: "passgit"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(generated.PublicKey, "ssh-ed25519 "))
	assert.False(t, generated.Protected)
	assert.Equal(t, store.PrivateKeyPath(), generated.Path)

	_, err = GenerateKey(ctx, store, cache, GenerateKeyOptions{})
	assert.ErrorIs(t, err, kerrors.ErrSSHKeyExists)

	cache.SetKeySecret([]byte("1234"))
	protected, err := GenerateKey(ctx, store, cache, GenerateKeyOptions{Type: credentials.KeyTypeECDSA, PIN: []byte("1234"), Force: true})
	require.NoError(t, err)
	assert.True(t, protected.Protected)
	assert.NotEqual(t, generated.PublicKey, protected.PublicKey)
	_, ok := cache.KeySecret()
	assert.False(t, ok, "a new key invalidates the cached PIN")

	require.NoError(t, DeleteKey(ctx, store, cache))
	_, err = ShowKey(ctx, store)
	assert.ErrorIs(t, err, kerrors.ErrSSHKeyMissing)

	entries, err := audit.ReadEntries()
	require.NoError(t, err)
	ops := make([]string, len(entries))
	for i, e := range entries {
		ops[i] = e.Operation
	}
	assert.Equal(t, []string{"key generate", "key generate", "key delete"}, ops)
}

func TestImportKey(t *testing.T) {
	paths := withDataDir(t)
	source := credentials.NewKeyStore(filepath.Join(t.TempDir(), "source"))
	require.NoError(t, source.Generate(credentials.KeyTypeEd25519, nil, "", false))
	want, err := source.PublicKey()
	require.NoError(t, err)

	store := credentials.NewKeyStore(paths.KeysPath)
	imported, err := ImportKey(ctx, store, nil, ImportKeyOptions{PrivateKeyPath: source.PrivateKeyPath()})
	require.NoError(t, err)
	assert.Equal(t, want, imported.PublicKey)

	_, err = ImportKey(ctx, store, nil, ImportKeyOptions{PrivateKeyPath: source.PrivateKeyPath()})
	assert.ErrorIs(t, err, kerrors.ErrSSHKeyExists)
}

func TestImportKeyFromBytes(t *testing.T) {
	paths := withDataDir(t)
	source := credentials.NewKeyStore(filepath.Join(t.TempDir(), "source"))
	require.NoError(t, source.Generate(credentials.KeyTypeEd25519, nil, "", false))
	want, err := source.PublicKey()
	require.NoError(t, err)
	private, err := os.ReadFile(source.PrivateKeyPath())
	require.NoError(t, err)

	store := credentials.NewKeyStore(paths.KeysPath)
	imported, err := ImportKey(ctx, store, nil, ImportKeyOptions{PrivateKey: private})
	require.NoError(t, err)
	assert.Equal(t, want, imported.PublicKey)
}

func TestImportProtectedKeyNeedsPublicHalf(t *testing.T) {
	paths := withDataDir(t)
	dir := t.TempDir()
	source := credentials.NewKeyStore(dir)
	require.NoError(t, source.Generate(credentials.KeyTypeEd25519, []byte("1234"), "", false))

	lonely := filepath.Join(t.TempDir(), "id_ed25519")
	data, err := os.ReadFile(source.PrivateKeyPath())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(lonely, data, 0600))

	store := credentials.NewKeyStore(paths.KeysPath)
	_, err = ImportKey(ctx, store, nil, ImportKeyOptions{PrivateKeyPath: lonely})
	assert.ErrorIs(t, err, kerrors.ErrInvalidPrivateKey)

	imported, err := ImportKey(ctx, store, nil, ImportKeyOptions{PrivateKeyPath: lonely, PublicKeyPath: source.PublicKeyPath()})
	require.NoError(t, err)
	assert.True(t, imported.Protected)

	_, err = ImportKey(ctx, store, nil, ImportKeyOptions{PrivateKeyPath: filepath.Join(dir, "missing"), Force: true})
	assert.Error(t, err)
}
