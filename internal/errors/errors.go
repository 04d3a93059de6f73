package errors

import "errors"

// Remote errors indicate problems with the configured remote.
var (
	// ErrRemoteNotConfigured indicates no remote URL has been set.
	ErrRemoteNotConfigured = errors.New("git remote is not configured")

	// ErrInvalidRemoteURL indicates the remote URL could not be parsed.
	ErrInvalidRemoteURL = errors.New("invalid remote url")

	// ErrUnsupportedProtocol indicates the remote URL scheme is neither ssh nor http(s).
	ErrUnsupportedProtocol = errors.New("unsupported remote protocol")

	// ErrInvalidAuthMode indicates an unknown authentication mode.
	ErrInvalidAuthMode = errors.New("invalid authentication mode")
)

// Credential errors indicate missing, locked or refused credentials.
var (
	// ErrCancelledByUser indicates the user dismissed an authentication prompt.
	ErrCancelledByUser = errors.New("cancelled by user")

	// ErrSSHKeyMissing indicates SSH key authentication was requested but no key exists.
	ErrSSHKeyMissing = errors.New("no ssh key has been generated or imported")

	// ErrSSHKeyExists indicates a key is already present and would be overwritten.
	ErrSSHKeyExists = errors.New("an ssh key already exists")

	// ErrInvalidPrivateKey indicates the private key is malformed or unsupported.
	ErrInvalidPrivateKey = errors.New("invalid or unsupported private key format")

	// ErrDeviceAuthFailed indicates the PIN challenge failed for a reason other than cancellation.
	ErrDeviceAuthFailed = errors.New("device authentication failed")

	// ErrNotInteractive indicates a prompt was needed but no terminal is attached.
	ErrNotInteractive = errors.New("cannot prompt: not running in a terminal")
)

// Repository errors indicate issues with the local password store.
var (
	// ErrStoreNotCloned indicates the password store has no git repository yet.
	ErrStoreNotCloned = errors.New("password store has not been cloned")

	// ErrStoreExists indicates a clone target already contains a repository.
	ErrStoreExists = errors.New("password store already exists")

	// ErrNoSession indicates a network command ran without an open transport session.
	ErrNoSession = errors.New("no transport session is open")

	// ErrSessionClosed indicates a command tried to use a transport session after it was closed.
	ErrSessionClosed = errors.New("transport session is closed")

	// ErrRemoteTimeout indicates the remote stopped sending or accepting data for longer than the configured timeout.
	ErrRemoteTimeout = errors.New("the remote stopped responding")

	// ErrUnsupportedCommand indicates the engine cannot run the requested command variant.
	ErrUnsupportedCommand = errors.New("unsupported git command")
)
