package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempSettings(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	original := UserPassgitSettings
	UserPassgitSettings = NewUserSettings(filepath.Join(dir, "config"), filepath.Join(dir, "data"), "tester")
	t.Cleanup(func() { UserPassgitSettings = original })
}

func TestLoadSettingsWithoutFile(t *testing.T) {
	withTempSettings(t)

	settings, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)
	assert.False(t, settings.Remote.IsConfigured())
}

func TestSaveAndLoadSettings(t *testing.T) {
	withTempSettings(t)

	settings := DefaultSettings()
	settings.Remote.URL = "git@github.com:me/passwords.git"
	settings.Remote.UseMultiplexing = false
	settings.Remote.Proxy = &Proxy{Host: "proxy.local", Port: 1080, Username: "me", Password: "secret"}
	settings.Author = Author{Name: "Ada", Email: "ada@example.com"}
	settings.Sync.RebaseOnPull = false
	require.NoError(t, SaveSettings(settings))

	info, err := os.Stat(SettingsFilePath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, settings, loaded)
	assert.True(t, loaded.Remote.IsConfigured())
}

func TestLoadSettingsFillsDefaults(t *testing.T) {
	withTempSettings(t)

	require.NoError(t, os.MkdirAll(UserPassgitSettings.ConfigsPath, 0700))
	content := "[remote]\nurl = \"https://git.example.com/pw.git\"\nauth_mode = \"password\"\nbranch = \"\"\ntimeout_seconds = 0\n"
	require.NoError(t, os.WriteFile(SettingsFilePath(), []byte(content), 0600))

	settings, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, AuthModePassword, settings.Remote.AuthMode)
	assert.Equal(t, DefaultBranch, settings.Remote.Branch)
	assert.Equal(t, DefaultTimeoutSeconds, settings.Remote.TimeoutSeconds)
	assert.True(t, settings.Remote.UseMultiplexing)
	assert.True(t, settings.Sync.RebaseOnPull)
	assert.Equal(t, DefaultCommitMessage, settings.Sync.CommitMessage)
}

func TestLoadSettingsRejectsBrokenFile(t *testing.T) {
	withTempSettings(t)

	require.NoError(t, os.MkdirAll(UserPassgitSettings.ConfigsPath, 0700))
	require.NoError(t, os.WriteFile(SettingsFilePath(), []byte("[remote\nurl ="), 0600))

	_, err := LoadSettings()
	assert.Error(t, err)
}

func TestParseAuthMode(t *testing.T) {
	tests := []struct {
		in   string
		want AuthMode
	}{
		{"", AuthModeNone},
		{"none", AuthModeNone},
		{"Password", AuthModePassword},
		{"pass", AuthModePassword},
		{"ssh-key", AuthModeSSHKey},
		{" ssh ", AuthModeSSHKey},
		{"key", AuthModeSSHKey},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAuthMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseAuthMode("kerberos")
	assert.Error(t, err)
}

func TestProxyAddress(t *testing.T) {
	assert.Equal(t, "", RemoteConfig{}.ProxyAddress())
	assert.Equal(t, "", RemoteConfig{Proxy: &Proxy{}}.ProxyAddress())
	assert.Equal(t, "proxy:8080", RemoteConfig{Proxy: &Proxy{Host: "proxy"}}.ProxyAddress())
	assert.Equal(t, "proxy:3128", RemoteConfig{Proxy: &Proxy{Host: "proxy", Port: 3128}}.ProxyAddress())
}

func TestNewUserSettings(t *testing.T) {
	s := NewUserSettings("/cfg", "/data", "me")
	assert.Equal(t, filepath.Join("/data", "store"), s.StorePath)
	assert.Equal(t, filepath.Join("/data", "keys"), s.KeysPath)
	assert.Equal(t, filepath.Join("/data", ".host_key"), s.HostKeyPath)
	assert.Equal(t, filepath.Join("/data", "audit.jsonl"), s.AuditPath)
	assert.Equal(t, "me", s.Username)
}
