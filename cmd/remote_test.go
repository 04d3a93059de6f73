package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PolarWolf314/passgit/internal/configs"
)

func TestRemoteSet(t *testing.T) {
	t.Run("SSHDefaultsToKey", func(t *testing.T) {
		setupTestEnvironment(t)

		output := runCLI(t, "remote", "set", "git@github.com:me/passwords.git")
		if !strings.Contains(output, "Remote set to") {
			t.Fatalf("Expected success, got: %s", output)
		}

		settings, err := configs.LoadSettings()
		if err != nil {
			t.Fatalf("Failed to load settings: %v", err)
		}
		if settings.Remote.URL != "git@github.com:me/passwords.git" {
			t.Errorf("Unexpected url %q", settings.Remote.URL)
		}
		if settings.Remote.AuthMode != configs.AuthModeSSHKey {
			t.Errorf("Expected ssh-key mode, got %q", settings.Remote.AuthMode)
		}
	})

	t.Run("HTTPSDefaultsToPassword", func(t *testing.T) {
		setupTestEnvironment(t)

		runCLI(t, "remote", "set", "https://git.example.com/me/passwords.git", "--branch", "main")

		settings, err := configs.LoadSettings()
		if err != nil {
			t.Fatalf("Failed to load settings: %v", err)
		}
		if settings.Remote.AuthMode != configs.AuthModePassword {
			t.Errorf("Expected password mode, got %q", settings.Remote.AuthMode)
		}
		if settings.Remote.Branch != "main" {
			t.Errorf("Expected branch main, got %q", settings.Remote.Branch)
		}
	})

	t.Run("MismatchIsRejected", func(t *testing.T) {
		setupTestEnvironment(t)

		output := runCLI(t, "remote", "set", "https://git.example.com/me/passwords.git", "--auth", "ssh-key")
		if !strings.Contains(output, "Invalid remote") {
			t.Errorf("Expected validation failure, got: %s", output)
		}
		if _, err := os.Stat(configs.SettingsFilePath()); !os.IsNotExist(err) {
			t.Errorf("Settings must not be written for an invalid remote")
		}
	})

	t.Run("UnknownAuthMode", func(t *testing.T) {
		setupTestEnvironment(t)

		output := runCLI(t, "remote", "set", "git@github.com:me/passwords.git", "--auth", "kerberos")
		if !strings.Contains(output, "unknown auth mode") {
			t.Errorf("Expected auth mode error, got: %s", output)
		}
	})

	t.Run("URLChangeForgetsHostKey", func(t *testing.T) {
		setupTestEnvironment(t)

		runCLI(t, "remote", "set", "git@github.com:me/passwords.git")
		hostKeyPath := configs.UserPassgitSettings.HostKeyPath
		if err := os.MkdirAll(filepath.Dir(hostKeyPath), 0700); err != nil {
			t.Fatalf("Failed to create data dir: %v", err)
		}
		if err := os.WriteFile(hostKeyPath, []byte("SHA256:c3RvcmVkLWZpbmdlcnByaW50"), 0600); err != nil {
			t.Fatalf("Failed to pin host key: %v", err)
		}

		runCLI(t, "remote", "set", "git@gitlab.com:me/passwords.git")

		if _, err := os.Stat(hostKeyPath); !os.IsNotExist(err) {
			t.Errorf("Expected pinned host key to be removed")
		}
	})
}

func TestRemoteShow(t *testing.T) {
	t.Run("NotConfigured", func(t *testing.T) {
		setupTestEnvironment(t)

		output := runCLI(t, "remote", "show")
		if !strings.Contains(output, "No remote configured") {
			t.Errorf("Expected warning, got: %s", output)
		}
	})

	t.Run("Configured", func(t *testing.T) {
		setupTestEnvironment(t)
		runCLI(t, "remote", "set", "git@github.com:me/passwords.git")

		output := runCLI(t, "remote", "show")
		for _, want := range []string{"git@github.com:me/passwords.git", "ssh-key", "master", "not pinned"} {
			if !strings.Contains(output, want) {
				t.Errorf("Expected %q in output, got: %s", want, output)
			}
		}
	})
}

func TestRemoteProxy(t *testing.T) {
	setupTestEnvironment(t)

	output := runCLI(t, "remote", "proxy", "proxy.local", "3128", "--username", "me")
	if !strings.Contains(output, "proxy.local:3128") {
		t.Fatalf("Expected proxy address, got: %s", output)
	}
	settings, err := configs.LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.Remote.Proxy == nil || settings.Remote.Proxy.Username != "me" {
		t.Fatalf("Expected proxy with username, got %+v", settings.Remote.Proxy)
	}

	output = runCLI(t, "remote", "proxy", "--clear")
	if !strings.Contains(output, "Proxy removed") {
		t.Errorf("Expected proxy removal, got: %s", output)
	}
	settings, err = configs.LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.Remote.ProxyAddress() != "" {
		t.Errorf("Expected no proxy, got %q", settings.Remote.ProxyAddress())
	}
}

func TestRemoteProxyRejectsBadPort(t *testing.T) {
	setupTestEnvironment(t)

	_, err := captureOutput(func() error {
		resetCommandState()
		return createTestCLI("remote", "proxy", "proxy.local", "port").Execute()
	})
	if err == nil {
		t.Errorf("Expected an error for a non-numeric port")
	}
}
