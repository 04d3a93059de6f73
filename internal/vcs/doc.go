// Package vcs is the version-control engine under the password store.
//
// Engine lists the primitives the sync operations are built from. GoGit
// implements them on go-git over a working tree on disk. go-git only
// fast-forwards on pull, so diverged histories are reconciled here at
// file granularity: a rebase replays local commits on top of the remote
// branch, a merge records a two-parent commit. A path changed on both
// sides stops the pull and leaves the repository in a rebasing or
// merging state, which Rebase(abort) and ClearMergeState undo.
//
// Push results are reported per ref, in the shape of git's report-status.
package vcs
