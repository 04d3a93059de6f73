package gitops

import (
	"fmt"
)

// Kind is the user-facing category of a git failure.
type Kind int

const (
	Unknown Kind = iota
	PullRebaseFailed
	PullMergeFailed
	PushNonFastForward
	PushRemoteRejected
	PushGeneric
	HostKeyChanged
	TooManyChannels
	IncompleteClone
)

var kindNames = map[Kind]string{
	Unknown:            "Unknown",
	PullRebaseFailed:   "PullRebaseFailed",
	PullMergeFailed:    "PullMergeFailed",
	PushNonFastForward: "PushNonFastForward",
	PushRemoteRejected: "PushRemoteRejected",
	PushGeneric:        "PushGeneric",
	HostKeyChanged:     "HostKeyChanged",
	TooManyChannels:    "TooManyChannels",
	IncompleteClone:    "IncompleteClone",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// GitError is a classified failure. Values are only built in classify.go.
type GitError struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *GitError) Error() string {
	switch e.Kind {
	case PullRebaseFailed:
		return withDetail("pull with rebase failed, local and remote changes conflict", e.Detail)
	case PullMergeFailed:
		return withDetail("pull with merge failed, local and remote changes conflict", e.Detail)
	case PushNonFastForward:
		return "the remote contains changes you do not have locally, pull first"
	case PushRemoteRejected:
		return "the remote rejected the push as a non-fast-forward update, pull first"
	case PushGeneric:
		return withDetail("push failed", e.Detail)
	case HostKeyChanged:
		return "the remote host key has changed since it was first trusted; if this is expected, run `passgit remote clear-host-key`"
	case TooManyChannels:
		return "the remote does not allow several channels per connection, multiplexing has been turned off"
	case IncompleteClone:
		return "the repository appears to be an incomplete clone, delete it and clone again"
	default:
		if e.Detail != "" {
			return e.Detail
		}
		if e.Cause != nil {
			return e.Cause.Error()
		}
		return "unknown git error"
	}
}

func (e *GitError) Unwrap() error { return e.Cause }

func withDetail(msg, detail string) string {
	if detail == "" {
		return msg
	}
	return msg + ": " + detail
}

// CommandError records which command of an operation failed.
type CommandError struct {
	Command string
	Cause   error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s: %v", e.Command, e.Cause)
}

func (e *CommandError) Unwrap() error { return e.Cause }
