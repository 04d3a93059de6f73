package vcs

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
)

// Gc prunes unreachable loose objects older than opts.Expire. Aggressive
// also repacks every reachable object into a single pack.
func (g *GoGit) Gc(_ context.Context, opts GcOptions) error {
	repo, err := g.open()
	if err != nil {
		return err
	}

	err = repo.Prune(git.PruneOptions{
		OnlyObjectsOlderThan: opts.Expire,
		Handler:              repo.DeleteObject,
	})
	if err != nil && !errors.Is(err, git.ErrLooseObjectsNotSupported) {
		return fmt.Errorf("failed to prune objects: %w", err)
	}

	if opts.Aggressive {
		if err := repo.RepackObjects(&git.RepackConfig{OnlyDeletePacksOlderThan: opts.Expire}); err != nil {
			return fmt.Errorf("failed to repack objects: %w", err)
		}
	}
	g.log.Debugf("Garbage collection finished (aggressive=%v)", opts.Aggressive)
	return nil
}
