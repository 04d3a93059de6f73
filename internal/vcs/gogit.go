package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	kerrors "github.com/PolarWolf314/passgit/internal/errors"
	logger "github.com/PolarWolf314/passgit/internal/logging"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// GoGit is an Engine over the working tree at path.
type GoGit struct {
	path string
	log  logger.Logger

	mu    sync.Mutex
	repo  *git.Repository
	name  string
	email string
}

var _ Engine = (*GoGit)(nil)

func NewGoGit(path string, log logger.Logger) *GoGit {
	return &GoGit{path: path, log: log}
}

func (g *GoGit) Path() string { return g.path }

// SetIdentity sets who merge commits made during a pull are attributed to.
func (g *GoGit) SetIdentity(name, email string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.name, g.email = name, email
}

func (g *GoGit) signature() object.Signature {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Signature(g.name, g.email, time.Now())
}

// Signature builds a commit identity, falling back to root@localhost for
// unset fields.
func Signature(name, email string, when time.Time) object.Signature {
	if strings.TrimSpace(name) == "" {
		name = "root"
	}
	if strings.TrimSpace(email) == "" {
		email = "localhost"
	}
	return object.Signature{Name: name, Email: email, When: when}
}

func (g *GoGit) open() (*git.Repository, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.repo != nil {
		return g.repo, nil
	}
	repo, err := git.PlainOpen(g.path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, kerrors.ErrStoreNotCloned
		}
		return nil, fmt.Errorf("failed to open repository at %s: %w", g.path, err)
	}
	g.repo = repo
	return repo, nil
}

func (g *GoGit) worktree() (*git.Repository, *git.Worktree, error) {
	repo, err := g.open()
	if err != nil {
		return nil, nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	return repo, wt, nil
}

// Clone clones remote into the engine's path. An empty remote yields a
// fresh repository with origin configured and HEAD on branch.
func (g *GoGit) Clone(ctx context.Context, remote Remote, branch string) error {
	if used, err := dirInUse(g.path); err != nil {
		return err
	} else if used {
		return fmt.Errorf("%w at %s", kerrors.ErrStoreExists, g.path)
	}

	g.log.Debugf("Cloning %s (branch %s) into %s", remote.URL, branch, g.path)
	repo, err := git.PlainCloneContext(ctx, g.path, false, &git.CloneOptions{
		URL:           remote.URL,
		Auth:          remote.Auth,
		ProxyOptions:  remote.Proxy,
		RemoteName:    remote.RemoteName(),
		ReferenceName: plumbing.NewBranchReferenceName(branch),
	})
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		g.log.Infof("Remote is empty, initialising a new store")
		_ = os.RemoveAll(g.path)
		repo, err = g.initEmpty(remote, branch)
	}
	if err != nil {
		_ = os.RemoveAll(g.path)
		return err
	}

	if err := setTracking(repo, remote.RemoteName(), branch); err != nil {
		return err
	}

	g.mu.Lock()
	g.repo = repo
	g.mu.Unlock()
	return nil
}

func (g *GoGit) initEmpty(remote Remote, branch string) (*git.Repository, error) {
	repo, err := git.PlainInitWithOptions(g.path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(branch)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise repository: %w", err)
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: remote.RemoteName(), URLs: []string{remote.URL}}); err != nil {
		return nil, fmt.Errorf("failed to add remote: %w", err)
	}
	return repo, nil
}

func (g *GoGit) Add(_ context.Context, pattern string) error {
	_, wt, err := g.worktree()
	if err != nil {
		return err
	}

	if pattern == "" || pattern == "." {
		if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
			return fmt.Errorf("failed to stage changes: %w", err)
		}
		return g.stageDeletions(wt, func(string) bool { return true })
	}

	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid add pattern %q", pattern)
	}

	st, err := wt.Status()
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	for path, fs := range st {
		if ok, _ := doublestar.Match(pattern, path); !ok {
			continue
		}
		switch fs.Worktree {
		case git.Unmodified:
		case git.Deleted:
			if _, err := wt.Remove(path); err != nil {
				return fmt.Errorf("failed to stage removal of %s: %w", path, err)
			}
		default:
			if _, err := wt.Add(path); err != nil {
				return fmt.Errorf("failed to stage %s: %w", path, err)
			}
		}
	}
	return nil
}

// stageDeletions removes files that are gone from the worktree but still in
// the index. go-git's add-all does not always stage them.
func (g *GoGit) stageDeletions(wt *git.Worktree, match func(string) bool) error {
	st, err := wt.Status()
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	for path, fs := range st {
		if fs.Worktree == git.Deleted && match(path) {
			if _, err := wt.Remove(path); err != nil {
				return fmt.Errorf("failed to stage removal of %s: %w", path, err)
			}
		}
	}
	return nil
}

// Status returns the number of uncommitted changes, untracked files
// excluded.
func (g *GoGit) Status(_ context.Context) (int, error) {
	_, wt, err := g.worktree()
	if err != nil {
		return 0, err
	}
	st, err := wt.Status()
	if err != nil {
		return 0, fmt.Errorf("failed to read status: %w", err)
	}
	return uncommitted(st), nil
}

func uncommitted(st git.Status) int {
	n := 0
	for _, fs := range st {
		if fs.Staging == git.Untracked && fs.Worktree == git.Untracked {
			continue
		}
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		n++
	}
	return n
}

func (g *GoGit) Commit(_ context.Context, all bool, message string, author, committer object.Signature) error {
	_, wt, err := g.worktree()
	if err != nil {
		return err
	}
	hash, err := wt.Commit(message, &git.CommitOptions{All: all, Author: &author, Committer: &committer})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	g.log.Debugf("Committed %s", hash)
	return nil
}

func (g *GoGit) Fetch(ctx context.Context, remote Remote, prune bool) error {
	repo, err := g.open()
	if err != nil {
		return err
	}
	if _, err := ensureRemote(repo, remote.RemoteName(), remote.URL); err != nil {
		return err
	}
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName:   remote.RemoteName(),
		RemoteURL:    remote.URL,
		Auth:         remote.Auth,
		ProxyOptions: remote.Proxy,
		Prune:        prune,
		Force:        true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}

func (g *GoGit) Checkout(_ context.Context, opts CheckoutOptions) error {
	repo, wt, err := g.worktree()
	if err != nil {
		return err
	}

	co := &git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(opts.Branch),
		Create: opts.Create,
		Force:  opts.Force,
	}
	if opts.Create && opts.StartPoint != "" {
		hash, err := repo.ResolveRevision(plumbing.Revision(opts.StartPoint))
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", opts.StartPoint, err)
		}
		co.Hash = *hash
	}
	if err := wt.Checkout(co); err != nil {
		return fmt.Errorf("failed to check out %s: %w", opts.Branch, err)
	}

	if opts.Track {
		return setTracking(repo, "origin", opts.Branch)
	}
	return nil
}

func (g *GoGit) BranchCreate(_ context.Context, opts BranchOptions) error {
	repo, err := g.open()
	if err != nil {
		return err
	}

	name := plumbing.NewBranchReferenceName(opts.Name)
	if _, err := repo.Storer.Reference(name); err == nil && !opts.Force {
		return fmt.Errorf("a branch named %q already exists", opts.Name)
	}

	start := opts.StartPoint
	if start == "" {
		start = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(start))
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", start, err)
	}
	return repo.Storer.SetReference(plumbing.NewHashReference(name, *hash))
}

func (g *GoGit) Reset(_ context.Context, mode ResetMode, ref string) error {
	repo, wt, err := g.worktree()
	if err != nil {
		return err
	}
	if ref == "" {
		ref = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", ref, err)
	}

	m := git.HardReset
	switch mode {
	case ResetMixed:
		m = git.MixedReset
	case ResetSoft:
		m = git.SoftReset
	}
	if err := wt.Reset(&git.ResetOptions{Commit: *hash, Mode: m}); err != nil {
		return fmt.Errorf("failed to reset to %s: %w", ref, err)
	}
	if m != git.HardReset {
		return nil
	}
	// A hard reset also drops untracked entries so the tree matches ref.
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("failed to remove untracked files: %w", err)
	}
	return nil
}

// CurrentBranch returns the checked out branch. While a rebase is stopped
// HEAD is detached, so the branch being rebased is reported instead.
func (g *GoGit) CurrentBranch() (string, error) {
	repo, err := g.open()
	if err != nil {
		return "", err
	}
	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	if head.Type() == plumbing.SymbolicReference && head.Target().IsBranch() {
		return head.Target().Short(), nil
	}

	if rs, err := g.readRebaseState(); err == nil && rs != nil {
		return plumbing.ReferenceName(rs.headName).Short(), nil
	}
	return "", nil
}

// EnsureRemote points name at url, creating or replacing it as needed.
func (g *GoGit) EnsureRemote(name, url string) error {
	repo, err := g.open()
	if err != nil {
		return err
	}
	_, err = ensureRemote(repo, name, url)
	return err
}

func ensureRemote(repo *git.Repository, name, url string) (*git.Remote, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = git.DefaultRemoteName
	}
	url = strings.TrimSpace(url)

	remote, err := repo.Remote(name)
	if err == nil {
		cfg := remote.Config()
		if url == "" || (len(cfg.URLs) > 0 && cfg.URLs[0] == url) {
			return remote, nil
		}
		if err := repo.DeleteRemote(name); err != nil && !errors.Is(err, git.ErrRemoteNotFound) {
			return nil, err
		}
	} else if !errors.Is(err, git.ErrRemoteNotFound) {
		return nil, err
	}

	if url == "" {
		return nil, kerrors.ErrRemoteNotConfigured
	}
	return repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}})
}

func setTracking(repo *git.Repository, remote, branch string) error {
	cfg, err := repo.Config()
	if err != nil {
		return fmt.Errorf("failed to read repository config: %w", err)
	}
	cfg.Branches[branch] = &config.Branch{
		Name:   branch,
		Remote: remote,
		Merge:  plumbing.NewBranchReferenceName(branch),
	}
	if err := repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("failed to set upstream of %s: %w", branch, err)
	}
	return nil
}

func resolveCommit(repo *git.Repository, ref plumbing.ReferenceName) (*object.Commit, error) {
	r, err := repo.Reference(ref, true)
	if err != nil {
		return nil, err
	}
	return repo.CommitObject(r.Hash())
}

func isAncestor(repo *git.Repository, ancestor, descendant plumbing.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	a, err := repo.CommitObject(ancestor)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	d, err := repo.CommitObject(descendant)
	if err != nil {
		return false, err
	}
	return a.IsAncestor(d)
}

func dirInUse(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return len(entries) > 0, nil
}
