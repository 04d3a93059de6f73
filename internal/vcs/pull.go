package vcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// Pull fetches branch and integrates it. Fast-forwards are left to go-git;
// diverged histories are rebased or merged per mode.
func (g *GoGit) Pull(ctx context.Context, remote Remote, branch string, mode PullMode) (*PullResult, error) {
	repo, wt, err := g.worktree()
	if err != nil {
		return nil, err
	}
	if _, err := ensureRemote(repo, remote.RemoteName(), remote.URL); err != nil {
		return nil, err
	}

	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    remote.RemoteName(),
		RemoteURL:     remote.URL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		Auth:          remote.Auth,
		ProxyOptions:  remote.Proxy,
	})

	var step *StepResult
	switch {
	case err == nil:
		step = &StepResult{Status: StepFastForward}
	case errors.Is(err, git.NoErrAlreadyUpToDate),
		errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, plumbing.ErrReferenceNotFound):
		step = &StepResult{Status: StepUpToDate}
	case errors.Is(err, git.ErrUnstagedChanges):
		step = &StepResult{Status: StepFailed, Message: err.Error()}
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		step, err = g.reconcile(repo, wt, remote.RemoteName(), branch, mode)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	g.log.Debugf("Pull (%s) finished: %s", mode, step.Status)
	if mode == PullRebase {
		return &PullResult{Rebase: step}, nil
	}
	return &PullResult{Merge: step}, nil
}

type fileChange struct {
	deleted bool
	hash    plumbing.Hash
	mode    filemode.FileMode
}

func (c fileChange) same(o fileChange) bool {
	if c.deleted || o.deleted {
		return c.deleted == o.deleted
	}
	return c.hash == o.hash && c.mode == o.mode
}

// reconcile integrates a diverged upstream. Password entries are opaque
// encrypted blobs, so integration is per file: a path changed on only one
// side takes that side, a path changed differently on both sides is a
// conflict.
func (g *GoGit) reconcile(repo *git.Repository, wt *git.Worktree, remoteName, branch string, mode PullMode) (*StepResult, error) {
	st, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	if uncommitted(st) > 0 {
		return &StepResult{Status: StepFailed, Message: "worktree has uncommitted changes"}, nil
	}

	branchRef := plumbing.NewBranchReferenceName(branch)
	local, err := resolveCommit(repo, branchRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", branch, err)
	}
	upstream, err := resolveCommit(repo, plumbing.NewRemoteReferenceName(remoteName, branch))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s/%s: %w", remoteName, branch, err)
	}

	bases, err := local.MergeBase(upstream)
	if err != nil {
		return nil, fmt.Errorf("failed to find merge base: %w", err)
	}
	if len(bases) == 0 {
		return &StepResult{Status: StepFailed, Message: "local and remote histories are unrelated"}, nil
	}
	base := bases[0]

	ours, err := changesBetween(base, local)
	if err != nil {
		return nil, err
	}
	theirs, err := changesBetween(base, upstream)
	if err != nil {
		return nil, err
	}
	conflicts := conflicting(ours, theirs)

	if mode == PullRebase {
		return g.rebaseOnto(repo, wt, branchRef, local, upstream, base, conflicts)
	}
	return g.merge(wt, remoteName, branch, local, upstream, theirs, conflicts)
}

func (g *GoGit) rebaseOnto(repo *git.Repository, wt *git.Worktree, branch plumbing.ReferenceName, local, upstream, base *object.Commit, conflicts []string) (*StepResult, error) {
	if err := g.writeRebaseState(branch, local.Hash); err != nil {
		return nil, err
	}

	if len(conflicts) > 0 {
		// Stop the way git does: HEAD detached on upstream, branch untouched.
		if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.HEAD, upstream.Hash)); err != nil {
			return nil, fmt.Errorf("failed to detach HEAD: %w", err)
		}
		if err := wt.Reset(&git.ResetOptions{Commit: upstream.Hash, Mode: git.HardReset}); err != nil {
			return nil, fmt.Errorf("failed to check out upstream: %w", err)
		}
		return &StepResult{Status: StepConflicting, Conflicts: conflicts}, nil
	}

	replay, err := commitsSince(local, base)
	if err != nil {
		return nil, err
	}

	if err := wt.Reset(&git.ResetOptions{Commit: upstream.Hash, Mode: git.HardReset}); err != nil {
		return nil, fmt.Errorf("failed to reset onto upstream: %w", err)
	}

	for _, c := range replay {
		if err := g.replay(wt, c); err != nil {
			return nil, fmt.Errorf("failed to replay %s: %w", c.Hash, err)
		}
	}

	if err := g.clearRebaseState(); err != nil {
		return nil, err
	}
	return &StepResult{Status: StepReconciled}, nil
}

func (g *GoGit) replay(wt *git.Worktree, c *object.Commit) error {
	var parent *object.Commit
	if c.NumParents() > 0 {
		p, err := c.Parent(0)
		if err != nil {
			return err
		}
		parent = p
	}
	changes, err := changesBetween(parent, c)
	if err != nil {
		return err
	}
	if err := applyChanges(wt, c, changes); err != nil {
		return err
	}

	committer := c.Committer
	committer.When = time.Now()
	_, err = wt.Commit(c.Message, &git.CommitOptions{Author: &c.Author, Committer: &committer})
	if errors.Is(err, git.ErrEmptyCommit) {
		g.log.Debugf("Dropped %s, its changes are already upstream", c.Hash)
		return nil
	}
	return err
}

func (g *GoGit) merge(wt *git.Worktree, remoteName, branch string, local, upstream *object.Commit, theirs map[string]fileChange, conflicts []string) (*StepResult, error) {
	message := fmt.Sprintf("Merge remote-tracking branch '%s/%s'", remoteName, branch)

	if len(conflicts) > 0 {
		if err := g.writeMergeState(upstream.Hash, message); err != nil {
			return nil, err
		}
		return &StepResult{Status: StepConflicting, Conflicts: conflicts}, nil
	}

	if err := applyChanges(wt, upstream, theirs); err != nil {
		return nil, err
	}

	sig := g.signature()
	_, err := wt.Commit(message, &git.CommitOptions{
		Author:            &sig,
		Committer:         &sig,
		Parents:           []plumbing.Hash{local.Hash, upstream.Hash},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record merge: %w", err)
	}
	return &StepResult{Status: StepReconciled}, nil
}

// changesBetween lists the paths that differ between from and to. A nil
// from is the empty tree.
func changesBetween(from, to *object.Commit) (map[string]fileChange, error) {
	var fromTree *object.Tree
	if from != nil {
		t, err := from.Tree()
		if err != nil {
			return nil, err
		}
		fromTree = t
	}
	toTree, err := to.Tree()
	if err != nil {
		return nil, err
	}

	diff, err := object.DiffTree(fromTree, toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	changes := make(map[string]fileChange, len(diff))
	for _, ch := range diff {
		action, err := ch.Action()
		if err != nil {
			return nil, err
		}
		switch action {
		case merkletrie.Delete:
			changes[ch.From.Name] = fileChange{deleted: true}
		default:
			changes[ch.To.Name] = fileChange{hash: ch.To.TreeEntry.Hash, mode: ch.To.TreeEntry.Mode}
		}
	}
	return changes, nil
}

func conflicting(ours, theirs map[string]fileChange) []string {
	var paths []string
	for p, o := range ours {
		if t, ok := theirs[p]; ok && !o.same(t) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// commitsSince returns the first-parent chain from base (exclusive) to
// tip, oldest first.
func commitsSince(tip, base *object.Commit) ([]*object.Commit, error) {
	var chain []*object.Commit
	for c := tip; c.Hash != base.Hash; {
		chain = append(chain, c)
		if c.NumParents() == 0 {
			break
		}
		p, err := c.Parent(0)
		if err != nil {
			return nil, err
		}
		c = p
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// applyChanges writes the given paths as they are in source into the
// worktree and stages them.
func applyChanges(wt *git.Worktree, source *object.Commit, changes map[string]fileChange) error {
	paths := make([]string, 0, len(changes))
	for p := range changes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if changes[p].deleted {
			if _, err := wt.Remove(p); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
				return fmt.Errorf("failed to remove %s: %w", p, err)
			}
			continue
		}
		if err := checkoutFile(wt, source, p); err != nil {
			return err
		}
		if _, err := wt.Add(p); err != nil {
			return fmt.Errorf("failed to stage %s: %w", p, err)
		}
	}
	return nil
}

func checkoutFile(wt *git.Worktree, source *object.Commit, name string) error {
	f, err := source.File(name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	mode, err := f.Mode.ToOSFileMode()
	if err != nil {
		mode = 0644
	}

	r, err := f.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	if dir := path.Dir(name); dir != "." {
		if err := wt.Filesystem.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	out, err := wt.Filesystem.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
