package transport

import "fmt"

// SessionError wraps a failure to set up a session for Remote.
type SessionError struct {
	Remote string
	Cause  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("failed to open session for %s: %v", e.Remote, e.Cause)
}

func (e *SessionError) Unwrap() error { return e.Cause }

// AuthExhaustedError is returned when every offered credential was refused
// or could not be obtained. Cause holds the credential failure, such as a
// cancelled prompt.
type AuthExhaustedError struct {
	Cause error
}

func (e *AuthExhaustedError) Error() string {
	if e.Cause == nil {
		return "authentication failed: no more authentication methods available"
	}
	return fmt.Sprintf("authentication failed: %v", e.Cause)
}

func (e *AuthExhaustedError) Unwrap() error { return e.Cause }
