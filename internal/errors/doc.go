// Package errors provides typed error values for passgit.
//
// Using sentinel errors allows callers to handle specific error conditions
// programmatically with errors.Is() rather than string matching. This makes
// error handling more robust and refactoring-safe.
//
// # Error Categories
//
// Errors are grouped by category:
//
//   - Remote errors: Remote configuration issues (ErrRemoteNotConfigured)
//   - Credential errors: Missing or locked credentials (ErrSSHKeyMissing, ErrCancelledByUser)
//   - Repository errors: Local working tree state (ErrStoreNotCloned, ErrStoreExists)
//
// # Cancellation
//
// ErrCancelledByUser and ErrSSHKeyMissing are not failures. The workflows
// layer checks for them first and returns to the user without an error
// dialog:
//
//	if errors.Is(err, kerrors.ErrCancelledByUser) {
//	    return nil
//	}
//
// Wrap errors with additional context:
//
//	return fmt.Errorf("reading key from %s: %w", path, errors.ErrSSHKeyMissing)
package errors
