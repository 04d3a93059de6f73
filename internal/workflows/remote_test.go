package workflows

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PolarWolf314/passgit/internal/audit"
	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/credentials"
	"github.com/PolarWolf314/passgit/internal/hostkey"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type remoteFixture struct {
	remote *Remote
	cache  *credentials.Cache
	saves  int
}

func newRemoteFixture(t *testing.T, url string) *remoteFixture {
	t.Helper()
	paths := withDataDir(t)

	settings := configs.DefaultSettings()
	settings.Remote.URL = url
	settings.Remote.AuthMode = configs.AuthModeSSHKey

	f := &remoteFixture{cache: credentials.NewCache(time.Minute)}
	f.remote = &Remote{
		Settings: settings,
		HostKeys: hostkey.NewStore(paths.HostKeyPath),
		Cache:    f.cache,
		SaveSettings: func(*configs.Settings) error {
			f.saves++
			return nil
		},
	}
	return f
}

func pin(t *testing.T, store *hostkey.Store) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0700))
	require.NoError(t, os.WriteFile(store.Path(), []byte("SHA256:c3RvcmVkLWZpbmdlcnByaW50\n"), 0600))
}

func TestUpdateRemoteURLChangeDropsPerRemoteState(t *testing.T) {
	f := newRemoteFixture(t, "ssh://git@old.example.com/me/store.git")
	f.remote.Settings.Remote.UseMultiplexing = false
	pin(t, f.remote.HostKeys)
	f.cache.SetPassword([]byte("hunter2"))

	result, err := f.remote.Update(ctx, UpdateRemoteOptions{
		URL:      "ssh://git@new.example.com/me/store.git",
		AuthMode: configs.AuthModeSSHKey,
	})
	require.NoError(t, err)

	assert.Equal(t, configs.Valid, result.Validation.Kind)
	assert.True(t, result.URLChanged)
	assert.NoFileExists(t, f.remote.HostKeys.Path())
	assert.True(t, f.remote.Settings.Remote.UseMultiplexing)
	_, ok := f.cache.Password()
	assert.False(t, ok)
	assert.Equal(t, 1, f.saves)

	entries, err := audit.ReadEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "remote set", entries[0].Operation)
	assert.Equal(t, "ssh://git@new.example.com/me/store.git", entries[0].Remote)
}

func TestUpdateRemoteSameURLKeepsPin(t *testing.T) {
	url := "git@example.com:me/store.git"
	f := newRemoteFixture(t, url)
	pin(t, f.remote.HostKeys)
	f.cache.SetPassword([]byte("hunter2"))

	result, err := f.remote.Update(ctx, UpdateRemoteOptions{URL: url, AuthMode: configs.AuthModePassword, Branch: "main"})
	require.NoError(t, err)

	assert.False(t, result.URLChanged)
	assert.FileExists(t, f.remote.HostKeys.Path())
	_, ok := f.cache.Password()
	assert.True(t, ok)
	assert.Equal(t, configs.AuthModePassword, f.remote.Settings.Remote.AuthMode)
	assert.Equal(t, "main", f.remote.Settings.Remote.Branch)
}

func TestUpdateRemoteRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		mode configs.AuthMode
		url  string
		want configs.ValidationKind
	}{
		{"https without authority", configs.AuthModePassword, "https://", configs.FailedToParseURL},
		{"ssh key over https", configs.AuthModeSSHKey, "https://github.com/x/y", configs.AuthModeMismatch},
		{"scp without user", configs.AuthModeSSHKey, "example.com:me/store.git", configs.MissingUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRemoteFixture(t, "git@example.com:me/store.git")
			pin(t, f.remote.HostKeys)

			result, err := f.remote.Update(ctx, UpdateRemoteOptions{URL: tt.url, AuthMode: tt.mode})
			require.NoError(t, err)

			assert.Equal(t, tt.want, result.Validation.Kind)
			assert.Equal(t, "git@example.com:me/store.git", f.remote.Settings.Remote.URL)
			assert.FileExists(t, f.remote.HostKeys.Path())
			assert.Zero(t, f.saves)
		})
	}
}

func TestSetProxy(t *testing.T) {
	f := newRemoteFixture(t, "git@example.com:me/store.git")

	require.NoError(t, f.remote.SetProxy(ctx, ProxyOptions{Host: "proxy.local", Port: 3128, Username: "u"}))
	info, err := f.remote.Show(ctx)
	require.NoError(t, err)
	assert.Equal(t, "proxy.local:3128", info.Proxy)

	require.NoError(t, f.remote.SetProxy(ctx, ProxyOptions{}))
	assert.Nil(t, f.remote.Settings.Remote.Proxy)
	assert.Equal(t, 2, f.saves)

	assert.Error(t, f.remote.SetProxy(ctx, ProxyOptions{Host: "proxy.local", Port: 70000}))
}

func TestShowAndClearHostKey(t *testing.T) {
	f := newRemoteFixture(t, "git@example.com:me/store.git")

	info, err := f.remote.Show(ctx)
	require.NoError(t, err)
	assert.Empty(t, info.PinnedHostKey)
	assert.Equal(t, "git@example.com:me/store.git", info.URL)
	assert.True(t, info.Multiplexing)

	pin(t, f.remote.HostKeys)
	info, err = f.remote.Show(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SHA256:c3RvcmVkLWZpbmdlcnByaW50", info.PinnedHostKey)

	require.NoError(t, f.remote.ClearHostKey(ctx))
	assert.NoFileExists(t, f.remote.HostKeys.Path())
	require.NoError(t, f.remote.ClearHostKey(ctx))
}
