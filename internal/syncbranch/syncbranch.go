// Package syncbranch manages the dedicated "knots" branch and its attached
// worktree that the replication engine reads from and commits to, kept
// separate from whatever branch the user has checked out in the main
// working tree.
package syncbranch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/knots/knots/internal/gitshell"
)

// DirtyWorktreeError reports that the sync worktree has uncommitted
// changes when it was expected to be clean.
type DirtyWorktreeError struct {
	Path string
}

func (e *DirtyWorktreeError) Error() string {
	return fmt.Sprintf("syncbranch: worktree %s is not clean", e.Path)
}

// Worktree is the dedicated working tree attached to the sync branch,
// rooted at <repoRoot>/.knots/_worktree.
type Worktree struct {
	root   string
	path   string
	branch string
	remote string
	git    *gitshell.Adapter
}

// New returns a Worktree for repoRoot, using the default "knots" branch
// name and "origin" remote.
func New(repoRoot string) *Worktree {
	path := filepath.Join(repoRoot, ".knots", "_worktree")
	return &Worktree{
		root:   repoRoot,
		path:   path,
		branch: "knots",
		remote: "origin",
		git:    gitshell.New(repoRoot),
	}
}

// Path returns the worktree's filesystem path.
func (w *Worktree) Path() string { return w.path }

// Branch returns the sync branch name.
func (w *Worktree) Branch() string { return w.branch }

// Remote returns the remote name the sync branch is fetched from and
// pushed to.
func (w *Worktree) Remote() string { return w.remote }

// EnsureExists creates the worktree if it doesn't exist yet, attaching an
// existing "knots" branch if one is present or creating it fresh
// otherwise, and leaves it checked out to that branch.
func (w *Worktree) EnsureExists(ctx context.Context) error {
	if parent := filepath.Dir(w.path); parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("syncbranch: create %s: %w", parent, err)
		}
	}

	if _, err := os.Stat(filepath.Join(w.path, ".git")); err == nil {
		return w.ensureBranchCheckedOut(ctx)
	}

	if _, err := os.Stat(w.path); err == nil {
		return &DirtyWorktreeError{Path: w.path}
	}

	exists, err := w.git.BranchExists(ctx, w.branch)
	if err != nil {
		return err
	}
	if exists {
		if err := w.git.WorktreeAddExistingBranch(ctx, w.path, w.branch); err != nil {
			return err
		}
	} else {
		if err := w.git.WorktreeAddNewBranch(ctx, w.path, w.branch); err != nil {
			return err
		}
	}

	return w.ensureBranchCheckedOut(ctx)
}

// EnsureClean returns a *DirtyWorktreeError if the worktree has
// uncommitted changes.
func (w *Worktree) EnsureClean(ctx context.Context) error {
	clean, err := gitshell.New(w.path).StatusClean(ctx)
	if err != nil {
		return err
	}
	if !clean {
		return &DirtyWorktreeError{Path: w.path}
	}
	return nil
}

func (w *Worktree) ensureBranchCheckedOut(ctx context.Context) error {
	wtGit := gitshell.New(w.path)
	current, err := wtGit.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	if current == w.branch {
		return nil
	}
	return wtGit.CheckoutBranch(ctx, w.branch)
}

// IsDirtyWorktree reports whether err is a *DirtyWorktreeError.
func IsDirtyWorktree(err error) bool {
	var dirty *DirtyWorktreeError
	return errors.As(err, &dirty)
}
