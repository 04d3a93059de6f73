package gitops

import (
	"context"
	"errors"
	"strings"

	kerrors "github.com/PolarWolf314/passgit/internal/errors"
	"github.com/PolarWolf314/passgit/internal/hostkey"
	"github.com/PolarWolf314/passgit/internal/transport"
	"github.com/PolarWolf314/passgit/internal/vcs"

	"github.com/go-git/go-git/v5/plumbing"
)

const (
	tooManyChannelsSignature = "cannot open additional channels"
	nonFastForwardSignature  = "non-fast-forward"
)

// incompleteCloneSignatures are messages go-git produces when objects the
// refs point at are missing from the local object store.
var incompleteCloneSignatures = []string{
	"object not found",
	"packfile not found",
	"reference delta not found",
}

// Classifier turns raw operation errors into a GitError.
type Classifier struct {
	// DisableMultiplexing is called when the remote refused an extra
	// channel, before TooManyChannels is returned.
	DisableMultiplexing func()
}

// IsCancellation reports whether err means the user backed out. These are
// never shown as errors.
func IsCancellation(err error) bool {
	return errors.Is(err, kerrors.ErrCancelledByUser) ||
		errors.Is(err, kerrors.ErrSSHKeyMissing) ||
		errors.Is(err, context.Canceled)
}

// Classify maps err to its GitError. A GitError anywhere in the wrapper
// chain is returned as is.
func (c Classifier) Classify(err error) *GitError {
	if err == nil {
		return nil
	}
	root := unwrapKnown(err)
	if ge, ok := root.(*GitError); ok {
		return ge
	}

	msg := root.Error()
	switch {
	case strings.Contains(msg, tooManyChannelsSignature):
		if c.DisableMultiplexing != nil {
			c.DisableMultiplexing()
		}
		return &GitError{Kind: TooManyChannels, Cause: root}
	case errors.Is(root, hostkey.ErrHostKeyChanged), strings.Contains(msg, hostkey.ErrHostKeyChanged.Error()):
		return &GitError{Kind: HostKeyChanged, Cause: root}
	case isIncompleteClone(root, msg):
		return &GitError{Kind: IncompleteClone, Cause: root}
	default:
		return &GitError{Kind: Unknown, Detail: msg, Cause: root}
	}
}

// unwrapKnown follows the wrappers this module puts around failures until
// it reaches something else.
func unwrapKnown(err error) error {
	for {
		switch e := err.(type) {
		case *GitError:
			return e
		case *CommandError:
			err = e.Cause
		case *transport.SessionError:
			err = e.Cause
		case *transport.AuthExhaustedError:
			if e.Cause == nil {
				return e
			}
			err = e.Cause
		default:
			return err
		}
		if err == nil {
			return errors.New("unknown error")
		}
	}
}

func isIncompleteClone(err error, msg string) bool {
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return true
	}
	for _, sig := range incompleteCloneSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// pullFailure returns the error for an unsuccessful pull, or nil.
func pullFailure(res *vcs.PullResult) *GitError {
	if res == nil {
		return nil
	}
	if res.Rebase != nil && !res.Rebase.Status.Successful() {
		return &GitError{Kind: PullRebaseFailed, Detail: stepDetail(res.Rebase)}
	}
	if res.Merge != nil && !res.Merge.Status.Successful() {
		return &GitError{Kind: PullMergeFailed, Detail: stepDetail(res.Merge)}
	}
	return nil
}

func stepDetail(s *vcs.StepResult) string {
	if len(s.Conflicts) > 0 {
		return "conflicting entries: " + strings.Join(s.Conflicts, ", ")
	}
	return s.Message
}

// pushFailure returns the error for one ref update, or nil when the update
// needs no error. UP_TO_DATE is reported by the caller as a notice.
func pushFailure(u vcs.RefUpdate) *GitError {
	switch u.Status {
	case vcs.PushRejectedNonFastForward:
		return &GitError{Kind: PushNonFastForward, Detail: u.Ref}
	case vcs.PushRejectedNoDelete, vcs.PushRejectedRemoteChanged, vcs.PushNonExisting, vcs.PushNotAttempted:
		return &GitError{Kind: PushGeneric, Detail: u.Status.String()}
	case vcs.PushRejectedOtherReason:
		if strings.Contains(u.Message, nonFastForwardSignature) {
			return &GitError{Kind: PushRemoteRejected, Detail: u.Message}
		}
		return &GitError{Kind: PushGeneric, Detail: u.Message}
	default:
		return nil
	}
}
