package gitops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	kerrors "github.com/PolarWolf314/passgit/internal/errors"
	"github.com/PolarWolf314/passgit/internal/hostkey"
	"github.com/PolarWolf314/passgit/internal/transport"
	"github.com/PolarWolf314/passgit/internal/vcs"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPushFailurePerStatus(t *testing.T) {
	want := map[vcs.PushStatus]Kind{
		vcs.PushRejectedNonFastForward: PushNonFastForward,
		vcs.PushRejectedNoDelete:       PushGeneric,
		vcs.PushRejectedRemoteChanged:  PushGeneric,
		vcs.PushNonExisting:            PushGeneric,
		vcs.PushNotAttempted:           PushGeneric,
		vcs.PushRejectedOtherReason:    PushGeneric,
	}

	for _, status := range vcs.AllPushStatuses() {
		t.Run(status.String(), func(t *testing.T) {
			ge := pushFailure(vcs.RefUpdate{Ref: "refs/heads/main", Status: status, Message: "hook declined"})

			kind, isError := want[status]
			if !isError {
				assert.Nil(t, ge)
				return
			}
			require.NotNil(t, ge)
			assert.Equal(t, kind, ge.Kind)
		})
	}
}

func TestPushGenericCarriesStatusName(t *testing.T) {
	ge := pushFailure(vcs.RefUpdate{Status: vcs.PushRejectedNoDelete})
	require.NotNil(t, ge)
	assert.Equal(t, "REJECTED_NODELETE", ge.Detail)
	assert.Equal(t, "push failed: REJECTED_NODELETE", ge.Error())
}

// Every status maps to the same GitError kind whatever the ref or server
// message, except REJECTED_OTHER_REASON which looks at the message.
func TestProperty_PushClassification(t *testing.T) {
	statuses := vcs.AllPushStatuses()

	rapid.Check(t, func(rt *rapid.T) {
		status := rapid.SampledFrom(statuses).Draw(rt, "status")
		message := rapid.String().Draw(rt, "message")
		if rapid.Bool().Draw(rt, "mentionsNonFastForward") {
			message += " non-fast-forward " + rapid.String().Draw(rt, "suffix")
		}
		ref := "refs/heads/" + rapid.StringMatching(`[a-z]{1,12}`).Draw(rt, "branch")

		ge := pushFailure(vcs.RefUpdate{Ref: ref, Status: status, Message: message})

		switch status {
		case vcs.PushOK, vcs.PushUpToDate:
			assert.Nil(rt, ge)
		case vcs.PushRejectedNonFastForward:
			require.NotNil(rt, ge)
			assert.Equal(rt, PushNonFastForward, ge.Kind)
		case vcs.PushRejectedOtherReason:
			require.NotNil(rt, ge)
			if strings.Contains(message, "non-fast-forward") {
				assert.Equal(rt, PushRemoteRejected, ge.Kind)
			} else {
				assert.Equal(rt, PushGeneric, ge.Kind)
				assert.Equal(rt, message, ge.Detail)
			}
		default:
			require.NotNil(rt, ge)
			assert.Equal(rt, PushGeneric, ge.Kind)
			assert.Equal(rt, status.String(), ge.Detail)
		}
	})
}

func TestClassify(t *testing.T) {
	mismatch := &hostkey.MismatchError{Host: "example.com", Pinned: "SHA256:a", Received: "SHA256:b"}

	tests := []struct {
		name   string
		err    error
		want   Kind
		detail string
	}{
		{
			name: "too many channels behind wrappers",
			err:  &CommandError{Command: "push", Cause: errors.New("ssh: cannot open additional channels")},
			want: TooManyChannels,
		},
		{
			name: "host key mismatch",
			err:  &CommandError{Command: "pull", Cause: fmt.Errorf("ssh: handshake failed: %w", mismatch)},
			want: HostKeyChanged,
		},
		{
			name: "host key mismatch by message",
			err:  errors.New("ssh: handshake failed: " + mismatch.Error()),
			want: HostKeyChanged,
		},
		{
			name: "missing objects",
			err:  &CommandError{Command: "pull", Cause: fmt.Errorf("reading tree: %w", plumbing.ErrObjectNotFound)},
			want: IncompleteClone,
		},
		{
			name:   "auth exhausted without cause",
			err:    &transport.SessionError{Remote: "x", Cause: &transport.AuthExhaustedError{}},
			want:   Unknown,
			detail: "authentication failed: no more authentication methods available",
		},
		{
			name:   "unknown keeps the root message",
			err:    &CommandError{Command: "fetch", Cause: errors.New("dial tcp: i/o timeout")},
			want:   Unknown,
			detail: "dial tcp: i/o timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ge := Classifier{}.Classify(tt.err)
			require.NotNil(t, ge)
			assert.Equal(t, tt.want, ge.Kind)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, ge.Detail)
				assert.Equal(t, tt.detail, ge.Error())
			}
		})
	}
}

func TestClassifyDisablesMultiplexing(t *testing.T) {
	disabled := 0
	c := Classifier{DisableMultiplexing: func() { disabled++ }}

	ge := c.Classify(&transport.SessionError{Cause: errors.New("cannot open additional channels")})
	require.NotNil(t, ge)
	assert.Equal(t, TooManyChannels, ge.Kind)
	assert.Equal(t, 1, disabled)

	c.Classify(errors.New("something else"))
	assert.Equal(t, 1, disabled)
}

func TestClassifyKeepsExistingGitError(t *testing.T) {
	original := &GitError{Kind: PushNonFastForward}
	ge := Classifier{}.Classify(&CommandError{Command: "push", Cause: original})
	assert.Same(t, original, ge)
	assert.Nil(t, Classifier{}.Classify(nil))
}

func TestIsCancellation(t *testing.T) {
	assert.True(t, IsCancellation(kerrors.ErrCancelledByUser))
	assert.True(t, IsCancellation(&transport.AuthExhaustedError{Cause: kerrors.ErrCancelledByUser}))
	assert.True(t, IsCancellation(fmt.Errorf("setup: %w", kerrors.ErrSSHKeyMissing)))
	assert.True(t, IsCancellation(context.Canceled))

	assert.False(t, IsCancellation(kerrors.ErrDeviceAuthFailed))
	assert.False(t, IsCancellation(&GitError{Kind: Unknown}))
	assert.False(t, IsCancellation(nil))
}

func TestKindNames(t *testing.T) {
	assert.Equal(t, "PullRebaseFailed", PullRebaseFailed.String())
	assert.Equal(t, "IncompleteClone", IncompleteClone.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
