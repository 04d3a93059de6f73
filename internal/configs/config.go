package configs

import (
	"fmt"
	"os"
	"strings"
)

// AuthMode selects how passgit authenticates against the remote.
type AuthMode string

const (
	AuthModeNone     AuthMode = "none"
	AuthModePassword AuthMode = "password"
	AuthModeSSHKey   AuthMode = "ssh-key"
)

// ParseAuthMode accepts the persisted spelling plus a few common aliases.
func ParseAuthMode(s string) (AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return AuthModeNone, nil
	case "password", "pass":
		return AuthModePassword, nil
	case "ssh-key", "sshkey", "ssh", "key":
		return AuthModeSSHKey, nil
	default:
		return "", fmt.Errorf("unknown auth mode %q", s)
	}
}

const (
	DefaultBranch         = "master"
	DefaultTimeoutSeconds = 10
	DefaultCommitMessage  = "[passgit] Sync"
)

type Settings struct {
	Remote RemoteConfig `toml:"remote"`
	Author Author       `toml:"author"`
	Sync   SyncSettings `toml:"sync"`
}

type RemoteConfig struct {
	URL             string   `toml:"url"`
	AuthMode        AuthMode `toml:"auth_mode"`
	Branch          string   `toml:"branch"`
	UseMultiplexing bool     `toml:"use_multiplexing"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
	Proxy           *Proxy   `toml:"proxy,omitempty"`
}

type Proxy struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
}

type Author struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

type SyncSettings struct {
	RebaseOnPull  bool   `toml:"rebase_on_pull"`
	CommitMessage string `toml:"commit_message"`
}

// DefaultSettings returns the settings used when no config file exists.
func DefaultSettings() *Settings {
	return &Settings{
		Remote: RemoteConfig{
			AuthMode:        AuthModeSSHKey,
			Branch:          DefaultBranch,
			UseMultiplexing: true,
			TimeoutSeconds:  DefaultTimeoutSeconds,
		},
		Sync: SyncSettings{
			RebaseOnPull:  true,
			CommitMessage: DefaultCommitMessage,
		},
	}
}

// LoadSettings loads config.toml, filling absent keys with defaults.
func LoadSettings() (*Settings, error) {
	settings := DefaultSettings()

	configPath := SettingsFilePath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return settings, nil
	}

	if err := LoadTOML(configPath, settings); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if settings.Remote.Branch == "" {
		settings.Remote.Branch = DefaultBranch
	}
	if settings.Remote.TimeoutSeconds <= 0 {
		settings.Remote.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if settings.Sync.CommitMessage == "" {
		settings.Sync.CommitMessage = DefaultCommitMessage
	}

	return settings, nil
}

// SaveSettings writes the settings to config.toml.
func SaveSettings(settings *Settings) error {
	if err := SaveTOML(SettingsFilePath(), settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// IsConfigured reports whether a remote URL has been set.
func (r RemoteConfig) IsConfigured() bool {
	return strings.TrimSpace(r.URL) != ""
}

// ProxyAddress returns host:port, or "" when no proxy is configured.
func (r RemoteConfig) ProxyAddress() string {
	if r.Proxy == nil || r.Proxy.Host == "" {
		return ""
	}
	port := r.Proxy.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", r.Proxy.Host, port)
}
