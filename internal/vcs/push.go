package vcs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Push pushes every local branch when all is set, else the current one.
// Each branch gets a RefUpdate. Branches the remote already has, or that
// would not fast-forward, are classified before anything is sent.
func (g *GoGit) Push(ctx context.Context, remote Remote, all bool) (*PushResult, error) {
	repo, err := g.open()
	if err != nil {
		return nil, err
	}
	r, err := ensureRemote(repo, remote.RemoteName(), remote.URL)
	if err != nil {
		return nil, err
	}

	branches, err := pushBranches(repo, all)
	if err != nil {
		return nil, err
	}
	result := &PushResult{}
	if len(branches) == 0 {
		return result, nil
	}

	advertised, err := r.ListContext(ctx, &git.ListOptions{Auth: remote.Auth, ProxyOptions: remote.Proxy})
	if err != nil && !errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return nil, err
	}
	remoteHashes := make(map[plumbing.ReferenceName]plumbing.Hash, len(advertised))
	for _, ref := range advertised {
		remoteHashes[ref.Name()] = ref.Hash()
	}

	var specs []config.RefSpec
	var attempted []int
	for _, b := range branches {
		update := RefUpdate{Ref: b.Name().String(), Status: PushOK}
		if h, ok := remoteHashes[b.Name()]; ok {
			if h == b.Hash() {
				update.Status = PushUpToDate
			} else if ff, err := isAncestor(repo, h, b.Hash()); err != nil {
				return nil, err
			} else if !ff {
				update.Status = PushRejectedNonFastForward
			}
		}
		if update.Status == PushOK {
			specs = append(specs, config.RefSpec(fmt.Sprintf("%s:%s", b.Name(), b.Name())))
			attempted = append(attempted, len(result.Updates))
		}
		result.Updates = append(result.Updates, update)
	}

	if len(specs) == 0 {
		return result, nil
	}

	err = r.PushContext(ctx, &git.PushOptions{
		RemoteName:   remote.RemoteName(),
		RemoteURL:    remote.URL,
		RefSpecs:     specs,
		Auth:         remote.Auth,
		ProxyOptions: remote.Proxy,
	})
	if err := applyPushError(result, attempted, err); err != nil {
		return nil, err
	}
	return result, nil
}

func pushBranches(repo *git.Repository, all bool) ([]*plumbing.Reference, error) {
	if !all {
		head, err := repo.Head()
		if err != nil {
			if errors.Is(err, plumbing.ErrReferenceNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to read HEAD: %w", err)
		}
		if !head.Name().IsBranch() {
			return nil, errors.New("HEAD is detached, nothing to push")
		}
		return []*plumbing.Reference{head}, nil
	}

	iter, err := repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	var refs []*plumbing.Reference
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name() < refs[j].Name() })
	return refs, nil
}

const (
	commandErrorPrefix = "command error on "
	unpackErrorPrefix  = "unpack error"
	nonFastForwardText = "non-fast-forward update: "
)

// applyPushError folds go-git's push error into the per-ref statuses of
// the refs that were sent. Errors that are not about individual refs, such
// as network or auth failures, are returned unchanged.
func applyPushError(result *PushResult, attempted []int, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()

	set := func(status PushStatus, message string) {
		for _, i := range attempted {
			result.Updates[i].Status = status
			result.Updates[i].Message = message
		}
	}

	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		set(PushUpToDate, "")
	case strings.HasPrefix(msg, unpackErrorPrefix):
		set(PushRejectedOtherReason, msg)
	case strings.HasPrefix(msg, nonFastForwardText):
		// go-git checks every ref before sending any, so none were pushed.
		ref := strings.TrimPrefix(msg, nonFastForwardText)
		set(PushNotAttempted, "")
		setRef(result, attempted, ref, PushRejectedRemoteChanged, "")
	case strings.HasPrefix(msg, commandErrorPrefix):
		ref, reason, ok := strings.Cut(strings.TrimPrefix(msg, commandErrorPrefix), ": ")
		if !ok {
			return err
		}
		setRef(result, attempted, ref, PushRejectedOtherReason, reason)
	default:
		return err
	}
	return nil
}

func setRef(result *PushResult, attempted []int, ref string, status PushStatus, message string) {
	for _, i := range attempted {
		if result.Updates[i].Ref == ref {
			result.Updates[i].Status = status
			result.Updates[i].Message = message
		}
	}
}
