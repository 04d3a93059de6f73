// Package cmd contains testing utilities shared between command tests.
// This file provides common functions for setting up test environments,
// capturing output, and running commands through a fresh root command.
package cmd

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/PolarWolf314/passgit/internal/configs"
	logger "github.com/PolarWolf314/passgit/internal/logging"
	"github.com/spf13/cobra"
)

// setupTestEnvironment points every passgit path into a temporary directory
// and resets command state.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()

	original := configs.UserPassgitSettings
	configs.UserPassgitSettings = configs.NewUserSettings(
		filepath.Join(tempDir, "config"),
		filepath.Join(tempDir, "data"),
		"testuser",
	)

	resetCommandState()
	t.Cleanup(func() {
		configs.UserPassgitSettings = original
		resetCommandState()
	})
	return tempDir
}

// resetCommandState puts every command group back to its defaults.
func resetCommandState() {
	resetGitCommandState()
	resetRemoteCommandState()
	resetKeyCommandState()
	ResetConfigState()
}

// captureOutput captures both stdout and stderr during function execution.
func captureOutput(fn func() error) (string, error) {
	// Save original stdout and stderr
	originalStdout := os.Stdout
	originalStderr := os.Stderr

	// Create pipes to capture output
	stdoutReader, stdoutWriter, _ := os.Pipe()
	stderrReader, stderrWriter, _ := os.Pipe()

	// Replace stdout and stderr
	os.Stdout = stdoutWriter
	os.Stderr = stderrWriter

	// Channel to collect output
	outputChan := make(chan string, 2)

	// Start goroutines to read from pipes
	go func() {
		var buf bytes.Buffer
		_, err := io.Copy(&buf, stdoutReader)
		if err != nil {
			log.Fatalf("Failed to run copy command: %s", err)
		}
		outputChan <- buf.String()
	}()

	go func() {
		var buf bytes.Buffer
		_, err := io.Copy(&buf, stderrReader)
		if err != nil {
			log.Fatalf("Failed to run copy command: %s", err)
		}
		outputChan <- buf.String()
	}()

	// Execute the function
	err := fn()

	// Close writers to signal EOF
	stdoutWriter.Close()
	stderrWriter.Close()

	// Restore original stdout and stderr
	os.Stdout = originalStdout
	os.Stderr = originalStderr

	stdout := <-outputChan
	stderr := <-outputChan

	return stdout + stderr, err
}

// createTestCLI creates a root command wired with every command group and
// set to run args.
func createTestCLI(args ...string) *cobra.Command {
	Logger = logger.Logger{}

	rootCmd := &cobra.Command{
		Use:   "passgit",
		Short: "passgit - keep a password store in sync with a git remote.",
	}
	rootCmd.AddCommand(GitCmd)
	rootCmd.AddCommand(RemoteCmd)
	rootCmd.AddCommand(KeyCmd)
	rootCmd.AddCommand(ConfigCmd)

	rootCmd.SetArgs(args)
	return rootCmd
}

// runCLI executes args from default command state and returns everything
// printed.
func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	resetCommandState()
	output, err := captureOutput(func() error {
		return createTestCLI(args...).Execute()
	})
	if err != nil {
		t.Fatalf("passgit %v failed: %v\noutput: %s", args, err, output)
	}
	return output
}
