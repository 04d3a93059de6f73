// Package transport opens authenticated sessions against the configured
// git remote.
//
// A Session bundles everything go-git needs to talk to the remote for one
// operation: a normalized endpoint, an auth method (SSH or HTTPS) that
// pulls credentials lazily, and optional proxy settings. SSH sessions pin
// the server's host key on first use through the hostkey package and
// refuse a changed key afterwards.
//
// An SSH session dials once, on its first command, and runs every later
// command of the operation as a new channel on that connection. A command
// that sees no traffic for the configured timeout drops the connection
// and fails with ErrRemoteTimeout.
//
// Sessions are created by a Factory and must be closed by the caller once
// the operation finishes, successful or not. Closing zeroes any password
// held for the operation and hangs up the connection.
package transport
