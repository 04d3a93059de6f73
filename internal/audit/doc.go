// Package audit provides audit trail logging for passgit git operations.
//
// Every run of a git operation (clone, pull, push, sync, reset, recover,
// gc) is recorded with its outcome, so a user can tell after the fact when
// the store was last synced and why a sync failed.
//
// # Log Format
//
// The audit log is stored as JSON Lines (one JSON object per line) at:
//
//	$XDG_DATA_HOME/passgit/audit.jsonl
//
// Each entry contains:
//   - A random UUID
//   - Timestamp (RFC3339 with microseconds, UTC)
//   - Local username
//   - Operation name and outcome
//   - Operation-specific details (remote, branch, error kind, etc.)
//
// # Usage
//
//	entry := audit.LogWithUser("sync")
//	entry.Outcome = audit.OutcomeSuccess
//	audit.Log(entry)
//
// # Failure Handling
//
// Audit logging is best-effort. If logging fails (permissions, disk full,
// etc.), the operation continues without error.
package audit
