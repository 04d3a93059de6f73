// Package gitops defines the git operations passgit runs against the
// password store and the executor that runs them.
//
// An Operation is data: a name, an ordered list of Commands and whether it
// needs an authenticated session. The constructors (NewSyncOperation,
// NewResetToRemoteOperation, ...) only differ in that data.
//
// # Running an operation
//
//	op := gitops.NewSyncOperation(env, "sync", true)
//	err := op.ExecuteAfterAuthentication(ctx, settings.Remote.AuthMode)
//
// ExecuteAfterAuthentication resolves credentials for the auth mode (which
// may run a PIN challenge for a protected SSH key), opens one transport
// session, runs every command in order and closes the session.
//
// # Errors
//
// Failures come back wrapped: *CommandError around engine errors,
// *transport.SessionError around session setup, *transport.AuthExhaustedError
// when credentials ran out. Classifier.Classify walks those wrappers once and
// returns a *GitError whose Kind is stable enough to act on. Check
// IsCancellation first: a user backing out of a prompt is not an error.
package gitops
