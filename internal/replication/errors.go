package replication

import (
	"errors"
	"fmt"

	"github.com/knots/knots/internal/gitshell"
	"github.com/knots/knots/internal/syncbranch"
)

// Kind is the closed taxonomy of replication failures (spec.md §7's
// Sync(...) variants).
type Kind string

const (
	KindGitUnavailable         Kind = "git_unavailable"
	KindGitCommandFailed       Kind = "git_command_failed"
	KindDirtyWorktree          Kind = "dirty_worktree"
	KindInvalidEvent           Kind = "invalid_event"
	KindFileConflict           Kind = "file_conflict"
	KindMergeConflictEscalation Kind = "merge_conflict_escalation"
	KindSnapshotLoad           Kind = "snapshot_load"
	KindDb                     Kind = "db"
	KindIo                     Kind = "io"
)

// Error is the single error type every replication operation returns.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("replication: %s: %s (%s)", e.Kind, e.Path, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("replication: %s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("replication: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("replication: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func invalidEvent(path, message string) *Error {
	return &Error{Kind: KindInvalidEvent, Path: path, Message: message}
}

func fileConflict(path string) *Error {
	return &Error{Kind: KindFileConflict, Path: path, Message: "local event file collides with remote content"}
}

func snapshotLoad(err error) *Error {
	return &Error{Kind: KindSnapshotLoad, Message: err.Error(), Err: err}
}

func mergeConflictEscalation(message string) *Error {
	return &Error{Kind: KindMergeConflictEscalation, Message: message}
}

func wrapIo(err error) *Error {
	return &Error{Kind: KindIo, Err: err}
}

func wrapDb(err error) *Error {
	return &Error{Kind: KindDb, Err: err}
}

// wrapGit classifies a gitshell/syncbranch failure into the replication
// taxonomy, preserving the underlying detail for logging.
func wrapGit(err error) error {
	if err == nil {
		return nil
	}
	if dirty, ok := asDirtyWorktree(err); ok {
		return &Error{Kind: KindDirtyWorktree, Path: dirty, Message: "worktree has uncommitted changes"}
	}
	if errors.Is(err, gitshell.ErrUnavailable) {
		return &Error{Kind: KindGitUnavailable, Err: err}
	}
	var gitErr *gitshell.Error
	if errors.As(err, &gitErr) {
		return &Error{Kind: KindGitCommandFailed, Message: gitErr.Error(), Err: err}
	}
	return wrapIo(err)
}

func asDirtyWorktree(err error) (string, bool) {
	if syncbranch.IsDirtyWorktree(err) {
		return dirtyWorktreePath(err), true
	}
	return "", false
}

func dirtyWorktreePath(err error) string {
	if dwe, ok := err.(*syncbranch.DirtyWorktreeError); ok {
		return dwe.Path
	}
	return ""
}

