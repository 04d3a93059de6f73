package vcs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Remote carries everything needed to reach the remote for one command.
type Remote struct {
	Name  string
	URL   string
	Auth  transport.AuthMethod
	Proxy transport.ProxyOptions
}

// RemoteName returns Name, defaulting to origin.
func (r Remote) RemoteName() string {
	if r.Name == "" {
		return "origin"
	}
	return r.Name
}

type PullMode int

const (
	PullMerge PullMode = iota
	PullRebase
)

func (m PullMode) String() string {
	if m == PullRebase {
		return "rebase"
	}
	return "merge"
}

// StepStatus is the outcome of the merge or rebase half of a pull.
type StepStatus int

const (
	StepUpToDate StepStatus = iota
	StepFastForward
	StepReconciled
	StepConflicting
	StepFailed
)

func (s StepStatus) String() string {
	switch s {
	case StepUpToDate:
		return "UP_TO_DATE"
	case StepFastForward:
		return "FAST_FORWARD"
	case StepReconciled:
		return "OK"
	case StepConflicting:
		return "CONFLICTING"
	default:
		return "FAILED"
	}
}

func (s StepStatus) Successful() bool {
	return s == StepUpToDate || s == StepFastForward || s == StepReconciled
}

type StepResult struct {
	Status    StepStatus
	Conflicts []string
	Message   string
}

// PullResult holds exactly one of Rebase or Merge, matching the mode the
// pull ran in.
type PullResult struct {
	Rebase *StepResult
	Merge  *StepResult
}

// PushStatus mirrors the per-ref statuses of git's report-status.
type PushStatus int

const (
	PushOK PushStatus = iota
	PushUpToDate
	PushRejectedNonFastForward
	PushRejectedNoDelete
	PushRejectedRemoteChanged
	PushRejectedOtherReason
	PushNonExisting
	PushNotAttempted
)

var pushStatusNames = map[PushStatus]string{
	PushOK:                     "OK",
	PushUpToDate:               "UP_TO_DATE",
	PushRejectedNonFastForward: "REJECTED_NONFASTFORWARD",
	PushRejectedNoDelete:       "REJECTED_NODELETE",
	PushRejectedRemoteChanged:  "REJECTED_REMOTE_CHANGED",
	PushRejectedOtherReason:    "REJECTED_OTHER_REASON",
	PushNonExisting:            "NON_EXISTING",
	PushNotAttempted:           "NOT_ATTEMPTED",
}

func (s PushStatus) String() string {
	if name, ok := pushStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PushStatus(%d)", int(s))
}

// AllPushStatuses lists every status, in declaration order.
func AllPushStatuses() []PushStatus {
	return []PushStatus{
		PushOK, PushUpToDate, PushRejectedNonFastForward, PushRejectedNoDelete,
		PushRejectedRemoteChanged, PushRejectedOtherReason, PushNonExisting, PushNotAttempted,
	}
}

// RefUpdate is the outcome of pushing one ref. Message holds the server's
// reason for PushRejectedOtherReason.
type RefUpdate struct {
	Ref     string
	Status  PushStatus
	Message string
}

type PushResult struct {
	Updates []RefUpdate
}

type ResetMode int

const (
	ResetHard ResetMode = iota
	ResetMixed
	ResetSoft
)

type RebaseOp int

const (
	RebaseAbort RebaseOp = iota
)

// RepositoryState says whether a merge or rebase is in progress.
type RepositoryState int

const (
	StateSafe RepositoryState = iota
	StateMerging
	StateRebasing
)

func (s RepositoryState) String() string {
	switch s {
	case StateMerging:
		return "MERGING"
	case StateRebasing:
		return "REBASING"
	default:
		return "SAFE"
	}
}

type CheckoutOptions struct {
	Branch     string
	Create     bool
	Force      bool
	Track      bool
	StartPoint string
}

type BranchOptions struct {
	Name       string
	Force      bool
	StartPoint string
}

type GcOptions struct {
	Aggressive bool
	Expire     time.Time
}

// Engine is the set of version-control primitives the sync operations are
// composed from. Methods that talk to the remote take a Remote.
type Engine interface {
	Clone(ctx context.Context, remote Remote, branch string) error
	Add(ctx context.Context, pattern string) error
	Status(ctx context.Context) (int, error)
	Commit(ctx context.Context, all bool, message string, author, committer object.Signature) error
	Pull(ctx context.Context, remote Remote, branch string, mode PullMode) (*PullResult, error)
	Push(ctx context.Context, remote Remote, all bool) (*PushResult, error)
	Fetch(ctx context.Context, remote Remote, prune bool) error
	Checkout(ctx context.Context, opts CheckoutOptions) error
	BranchCreate(ctx context.Context, opts BranchOptions) error
	Reset(ctx context.Context, mode ResetMode, ref string) error
	Rebase(ctx context.Context, op RebaseOp) error
	Gc(ctx context.Context, opts GcOptions) error

	State() (RepositoryState, error)
	ClearMergeState() error
	CurrentBranch() (string, error)
	EnsureRemote(name, url string) error
}
