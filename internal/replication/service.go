// Package replication implements the git-backed event replication engine
// described in spec.md §4.6: a dedicated worktree on a side branch is used
// to push local event files to a shared remote and pull + incrementally
// apply whatever has landed there since the last sync.
package replication

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/knots/knots/internal/cache"
	"github.com/knots/knots/internal/gitshell"
	"github.com/knots/knots/internal/syncbranch"
)

// SyncSummary reports what a pull (or the pull half of a sync) applied.
type SyncSummary struct {
	TargetHead  string `json:"target_head"`
	IndexFiles  uint64 `json:"index_files"`
	FullFiles   uint64 `json:"full_files"`
	KnotUpdates uint64 `json:"knot_updates"`
	EdgeAdds    uint64 `json:"edge_adds"`
	EdgeRemoves uint64 `json:"edge_removes"`
}

// PushSummary reports what a push published.
type PushSummary struct {
	LocalEventFiles uint64  `json:"local_event_files"`
	CopiedFiles     uint64  `json:"copied_files"`
	Committed       bool    `json:"committed"`
	Pushed          bool    `json:"pushed"`
	Commit          *string `json:"commit"`
}

// ReplicationSummary is the combined result of sync()'s push-then-pull.
type ReplicationSummary struct {
	Push PushSummary `json:"push"`
	Pull SyncSummary `json:"pull"`
}

// Service orchestrates the sync worktree against one repo's cache.
type Service struct {
	cache    *cache.Cache
	repoRoot string
	git      *gitshell.Adapter
}

// NewService returns a Service for repoRoot, backed by c's projection.
func NewService(c *cache.Cache, repoRoot string) *Service {
	return &Service{cache: c, repoRoot: repoRoot, git: gitshell.New(repoRoot)}
}

// Sync implements spec.md §4.4's bidirectional sync(): push, then pull.
func (s *Service) Sync(ctx context.Context) (ReplicationSummary, error) {
	push, err := s.Push(ctx)
	if err != nil {
		return ReplicationSummary{}, err
	}
	pull, err := s.Pull(ctx)
	if err != nil {
		return ReplicationSummary{}, err
	}
	return ReplicationSummary{Push: push, Pull: pull}, nil
}

// Pull implements spec.md §4.6's pull algorithm: ensure the worktree
// exists, fetch the sync branch (or fall back to its local HEAD if there
// is no remote yet), reset hard, ensure clean, and incrementally apply.
func (s *Service) Pull(ctx context.Context) (SyncSummary, error) {
	defer recordSyncDuration(ctx, "pull", time.Now())

	worktree := syncbranch.New(s.repoRoot)
	if err := worktree.EnsureExists(ctx); err != nil {
		return SyncSummary{}, wrapGit(err)
	}

	blobLimitKB := 0
	if raw, ok, err := s.cache.GetMeta(ctx, "sync_fetch_blob_limit_kb"); err == nil && ok {
		if parsed, perr := parsePositiveInt(raw); perr == nil {
			blobLimitKB = parsed
		}
	}

	targetHead, err := s.fetchAndResetToRemoteOrLocal(ctx, worktree, blobLimitKB)
	if err != nil {
		return SyncSummary{}, err
	}

	if err := worktree.EnsureClean(ctx); err != nil {
		return SyncSummary{}, wrapGit(err)
	}

	applier := newIncrementalApplier(s.cache, worktree.Path(), gitshell.New(worktree.Path()))
	return applier.applyToHead(ctx, targetHead)
}

func (s *Service) fetchAndResetToRemoteOrLocal(ctx context.Context, worktree *syncbranch.Worktree, blobLimitKB int) (string, error) {
	repoGit := gitshell.New(s.repoRoot)
	err := repoGit.FetchBranchWithFilter(ctx, worktree.Remote(), worktree.Branch(), blobLimitKB)
	if err == nil {
		remoteRef := worktree.Remote() + "/" + worktree.Branch()
		head, err := repoGit.RevParse(ctx, remoteRef)
		if err != nil {
			return "", wrapGit(err)
		}
		if err := gitshell.New(worktree.Path()).ResetHard(ctx, head); err != nil {
			return "", wrapGit(err)
		}
		return head, nil
	}

	var gitErr *gitshell.Error
	if isErr(err, &gitErr) && gitErr.IsMissingRemote() {
		head, err := gitshell.New(worktree.Path()).RevParse(ctx, "HEAD")
		if err != nil {
			return "", wrapGit(err)
		}
		return head, nil
	}
	return "", wrapGit(err)
}

// Push implements spec.md §4.6's push algorithm: up to 3 attempts, each
// resetting the worktree to the remote (or local) head, copying local
// event files in with identical-skip/differing-fail conflict detection,
// staging, committing, and pushing, retrying on non-fast-forward.
func (s *Service) Push(ctx context.Context) (PushSummary, error) {
	defer recordSyncDuration(ctx, "push", time.Now())

	const maxAttempts = 3

	worktree := syncbranch.New(s.repoRoot)
	if err := worktree.EnsureExists(ctx); err != nil {
		return PushSummary{}, wrapGit(err)
	}

	localFiles, err := s.collectLocalEventFiles()
	if err != nil {
		return PushSummary{}, wrapIo(err)
	}
	localEventFiles := uint64(len(localFiles))

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := s.fetchAndResetToRemoteOrLocal(ctx, worktree, 0); err != nil {
			return PushSummary{}, err
		}
		if err := worktree.EnsureClean(ctx); err != nil {
			return PushSummary{}, wrapGit(err)
		}

		copied, err := s.copyFilesIntoWorktree(worktree.Path(), localFiles)
		if err != nil {
			return PushSummary{}, err
		}

		wtGit := gitshell.New(worktree.Path())
		paths := []string{".knots/index", ".knots/events"}
		if err := wtGit.AddPaths(ctx, paths); err != nil {
			return PushSummary{}, wrapGit(err)
		}

		staged, err := wtGit.HasStagedChanges(ctx, paths)
		if err != nil {
			return PushSummary{}, wrapGit(err)
		}
		if !staged {
			return PushSummary{
				LocalEventFiles: localEventFiles,
				CopiedFiles:     copied,
				Committed:       false,
				Pushed:          false,
				Commit:          nil,
			}, nil
		}

		commit, err := wtGit.Commit(ctx, "knots: publish local events")
		if err != nil {
			return PushSummary{}, wrapGit(err)
		}

		pushErr := wtGit.PushBranch(ctx, worktree.Remote(), worktree.Branch())
		if pushErr == nil {
			return PushSummary{
				LocalEventFiles: localEventFiles,
				CopiedFiles:     copied,
				Committed:       true,
				Pushed:          true,
				Commit:          &commit,
			}, nil
		}

		var gitErr *gitshell.Error
		if isErr(pushErr, &gitErr) && gitErr.IsNonFastForward() {
			if attempt+1 < maxAttempts {
				continue
			}
			return PushSummary{}, mergeConflictEscalation("push rejected as non-fast-forward after retries")
		}
		return PushSummary{}, wrapGit(pushErr)
	}

	return PushSummary{}, mergeConflictEscalation("push retries exhausted")
}

func (s *Service) collectLocalEventFiles() ([]string, error) {
	var files []string
	for _, relRoot := range []string{".knots/index", ".knots/events"} {
		root := filepath.Join(s.repoRoot, relRoot)
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if filepath.Ext(path) != ".json" {
				return nil
			}
			rel, err := filepath.Rel(s.repoRoot, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *Service) copyFilesIntoWorktree(worktreeRoot string, relativeFiles []string) (uint64, error) {
	var copied uint64
	for _, relative := range relativeFiles {
		src := filepath.Join(s.repoRoot, relative)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		dst := filepath.Join(worktreeRoot, relative)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return 0, wrapIo(err)
		}

		srcBytes, err := os.ReadFile(src)
		if err != nil {
			return 0, wrapIo(err)
		}
		if dstBytes, err := os.ReadFile(dst); err == nil {
			if string(dstBytes) == string(srcBytes) {
				continue
			}
			return 0, fileConflict(relative)
		}

		if err := os.WriteFile(dst, srcBytes, 0o644); err != nil {
			return 0, wrapIo(err)
		}
		copied++
	}
	return copied, nil
}

func parsePositiveInt(raw string) (int, error) {
	var value int
	if _, err := fmt.Sscanf(raw, "%d", &value); err != nil {
		return 0, err
	}
	return value, nil
}

func isErr(err error, target **gitshell.Error) bool {
	if ge, ok := err.(*gitshell.Error); ok {
		*target = ge
		return true
	}
	return false
}
