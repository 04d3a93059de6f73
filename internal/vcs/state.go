package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

const (
	mergeHeadFile = "MERGE_HEAD"
	mergeMsgFile  = "MERGE_MSG"
	mergeModeFile = "MERGE_MODE"

	rebaseMergeDir = "rebase-merge"
	rebaseApplyDir = "rebase-apply"
	headNameFile   = "head-name"
	origHeadFile   = "orig-head"
)

// dotGit is the .git directory, where git keeps merge and rebase state.
func (g *GoGit) dotGit() billy.Filesystem {
	return osfs.New(filepath.Join(g.path, git.GitDirName))
}

func (g *GoGit) State() (RepositoryState, error) {
	if _, err := g.open(); err != nil {
		return StateSafe, err
	}
	fs := g.dotGit()

	if exists(fs, mergeHeadFile) {
		return StateMerging, nil
	}
	if exists(fs, rebaseMergeDir) || exists(fs, rebaseApplyDir) {
		return StateRebasing, nil
	}
	return StateSafe, nil
}

// ClearMergeState drops MERGE_HEAD and friends, which ends a merge
// without touching the worktree.
func (g *GoGit) ClearMergeState() error {
	if _, err := g.open(); err != nil {
		return err
	}
	fs := g.dotGit()
	for _, name := range []string{mergeHeadFile, mergeMsgFile, mergeModeFile} {
		if err := fs.Remove(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}

func (g *GoGit) writeMergeState(remote plumbing.Hash, message string) error {
	fs := g.dotGit()
	if err := util.WriteFile(fs, mergeHeadFile, []byte(remote.String()+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", mergeHeadFile, err)
	}
	if err := util.WriteFile(fs, mergeMsgFile, []byte(message+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", mergeMsgFile, err)
	}
	return util.WriteFile(fs, mergeModeFile, nil, 0644)
}

type rebaseState struct {
	dir      string
	headName string
	origHead plumbing.Hash
}

// readRebaseState returns nil when no rebase is in progress.
func (g *GoGit) readRebaseState() (*rebaseState, error) {
	fs := g.dotGit()
	for _, dir := range []string{rebaseMergeDir, rebaseApplyDir} {
		if !exists(fs, dir) {
			continue
		}
		name, err := util.ReadFile(fs, fs.Join(dir, headNameFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read rebase head name: %w", err)
		}
		orig, err := util.ReadFile(fs, fs.Join(dir, origHeadFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read rebase original head: %w", err)
		}
		return &rebaseState{
			dir:      dir,
			headName: strings.TrimSpace(string(name)),
			origHead: plumbing.NewHash(strings.TrimSpace(string(orig))),
		}, nil
	}
	return nil, nil
}

func (g *GoGit) writeRebaseState(branch plumbing.ReferenceName, orig plumbing.Hash) error {
	fs := g.dotGit()
	if err := fs.MkdirAll(rebaseMergeDir, 0755); err != nil {
		return fmt.Errorf("failed to create rebase state: %w", err)
	}
	if err := util.WriteFile(fs, fs.Join(rebaseMergeDir, headNameFile), []byte(branch.String()+"\n"), 0644); err != nil {
		return err
	}
	return util.WriteFile(fs, fs.Join(rebaseMergeDir, origHeadFile), []byte(orig.String()+"\n"), 0644)
}

func (g *GoGit) clearRebaseState() error {
	fs := g.dotGit()
	for _, dir := range []string{rebaseMergeDir, rebaseApplyDir} {
		if err := util.RemoveAll(fs, dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}
	return nil
}

// Rebase supports abort only: the branch is put back where it was before
// the rebase and checked out again.
func (g *GoGit) Rebase(_ context.Context, op RebaseOp) error {
	if op != RebaseAbort {
		return fmt.Errorf("unsupported rebase operation %d", op)
	}

	repo, wt, err := g.worktree()
	if err != nil {
		return err
	}
	rs, err := g.readRebaseState()
	if err != nil {
		return err
	}
	if rs == nil {
		return errors.New("no rebase in progress")
	}

	branch := plumbing.ReferenceName(rs.headName)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branch, rs.origHead)); err != nil {
		return fmt.Errorf("failed to restore %s: %w", branch.Short(), err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branch)); err != nil {
		return fmt.Errorf("failed to reattach HEAD: %w", err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: rs.origHead, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("failed to restore worktree: %w", err)
	}

	g.log.Debugf("Aborted rebase of %s", branch.Short())
	return g.clearRebaseState()
}

func exists(fs billy.Filesystem, name string) bool {
	_, err := fs.Stat(name)
	return err == nil
}
