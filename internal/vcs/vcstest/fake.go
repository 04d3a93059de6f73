// Package vcstest provides an in-memory vcs.Engine for tests of the code
// that drives the engine.
package vcstest

import (
	"context"
	"sync"

	"github.com/PolarWolf314/passgit/internal/vcs"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// Call is one recorded engine call.
type Call struct {
	Method string
	Remote vcs.Remote
	Args   any
}

// Engine records every call. Results are taken from the exported fields;
// Errors maps a method name to the error it returns.
type Engine struct {
	Uncommitted  int
	PullResult   *vcs.PullResult
	PushResult   *vcs.PushResult
	RepoState    vcs.RepositoryState
	Branch       string
	Errors       map[string]error
	MergeCleared bool

	mu    sync.Mutex
	calls []Call
}

var _ vcs.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{Branch: "main", Errors: map[string]error{}}
}

func (e *Engine) record(method string, remote vcs.Remote, args any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Method: method, Remote: remote, Args: args})
	return e.Errors[method]
}

// Calls returns every call in order.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Methods returns the method names of Calls.
func (e *Engine) Methods() []string {
	calls := e.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Method
	}
	return names
}

// ForgetCalls drops the recorded calls.
func (e *Engine) ForgetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

type CommitArgs struct {
	All       bool
	Message   string
	Author    object.Signature
	Committer object.Signature
}

type ResetArgs struct {
	Mode vcs.ResetMode
	Ref  string
}

type PullArgs struct {
	Branch string
	Mode   vcs.PullMode
}

func (e *Engine) Clone(_ context.Context, remote vcs.Remote, branch string) error {
	return e.record("Clone", remote, branch)
}

func (e *Engine) Add(_ context.Context, pattern string) error {
	return e.record("Add", vcs.Remote{}, pattern)
}

func (e *Engine) Status(_ context.Context) (int, error) {
	if err := e.record("Status", vcs.Remote{}, nil); err != nil {
		return 0, err
	}
	return e.Uncommitted, nil
}

func (e *Engine) Commit(_ context.Context, all bool, message string, author, committer object.Signature) error {
	return e.record("Commit", vcs.Remote{}, CommitArgs{All: all, Message: message, Author: author, Committer: committer})
}

func (e *Engine) Pull(_ context.Context, remote vcs.Remote, branch string, mode vcs.PullMode) (*vcs.PullResult, error) {
	if err := e.record("Pull", remote, PullArgs{Branch: branch, Mode: mode}); err != nil {
		return nil, err
	}
	if e.PullResult != nil {
		return e.PullResult, nil
	}
	step := &vcs.StepResult{Status: vcs.StepUpToDate}
	if mode == vcs.PullRebase {
		return &vcs.PullResult{Rebase: step}, nil
	}
	return &vcs.PullResult{Merge: step}, nil
}

func (e *Engine) Push(_ context.Context, remote vcs.Remote, all bool) (*vcs.PushResult, error) {
	if err := e.record("Push", remote, all); err != nil {
		return nil, err
	}
	if e.PushResult != nil {
		return e.PushResult, nil
	}
	return &vcs.PushResult{Updates: []vcs.RefUpdate{{Ref: "refs/heads/" + e.Branch, Status: vcs.PushOK}}}, nil
}

func (e *Engine) Fetch(_ context.Context, remote vcs.Remote, prune bool) error {
	return e.record("Fetch", remote, prune)
}

func (e *Engine) Checkout(_ context.Context, opts vcs.CheckoutOptions) error {
	return e.record("Checkout", vcs.Remote{}, opts)
}

func (e *Engine) BranchCreate(_ context.Context, opts vcs.BranchOptions) error {
	return e.record("BranchCreate", vcs.Remote{}, opts)
}

func (e *Engine) Reset(_ context.Context, mode vcs.ResetMode, ref string) error {
	return e.record("Reset", vcs.Remote{}, ResetArgs{Mode: mode, Ref: ref})
}

func (e *Engine) Rebase(_ context.Context, op vcs.RebaseOp) error {
	return e.record("Rebase", vcs.Remote{}, op)
}

func (e *Engine) Gc(_ context.Context, opts vcs.GcOptions) error {
	return e.record("Gc", vcs.Remote{}, opts)
}

func (e *Engine) ClearMergeState() error {
	if err := e.record("ClearMergeState", vcs.Remote{}, nil); err != nil {
		return err
	}
	e.MergeCleared = true
	return nil
}

func (e *Engine) CurrentBranch() (string, error) {
	return e.Branch, nil
}

func (e *Engine) EnsureRemote(name, url string) error {
	return e.record("EnsureRemote", vcs.Remote{Name: name, URL: url}, nil)
}

func (e *Engine) State() (vcs.RepositoryState, error) {
	return e.RepoState, e.Errors["State"]
}
