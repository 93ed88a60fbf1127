// Package app implements the Application core described in spec.md §4.4:
// the orchestration layer that turns a public operation (create a knot,
// change its state, add an edge, sync, import) into event-log writes and
// cache upserts, with the workflow_etag as the sole admission token for
// the next write.
package app

import (
	"context"
	"os"
	"path/filepath"

	"github.com/knots/knots/internal/cache"
	"github.com/knots/knots/internal/eventlog"
	"github.com/knots/knots/internal/lockfile"
	"github.com/knots/knots/internal/types"
	"github.com/knots/knots/internal/workflow"
)

// App is the single entry point library consumers (the CLI, tests, or an
// embedding program) use to mutate and query a knots repository. One App
// value is created per invocation and closed at the end of it; there is no
// global state (spec.md §9).
type App struct {
	Cache    *cache.Cache
	Writer   *eventlog.Writer
	Registry *workflow.Registry
	RepoRoot string

	repoLock *lockfile.ExclusiveLock
}

// KnotView is the read-facing projection of a knot returned by every
// operation in this package; it mirrors cache.Record but exposes
// types.KnotState as a plain string the way a CLI or JSON encoder expects.
type KnotView struct {
	ID                string                 `json:"id"`
	Title             string                 `json:"title"`
	State             string                 `json:"state"`
	UpdatedAt         string                 `json:"updated_at"`
	Body              *string                `json:"body,omitempty"`
	Description       *string                `json:"description,omitempty"`
	Priority          *int64                 `json:"priority,omitempty"`
	KnotType          *string                `json:"knot_type,omitempty"`
	Tags              []string               `json:"tags,omitempty"`
	Notes             []types.MetadataEntry  `json:"notes,omitempty"`
	HandoffCapsules   []types.MetadataEntry  `json:"handoff_capsules,omitempty"`
	WorkflowEtag      *string                `json:"workflow_etag,omitempty"`
	CreatedAt         *string                `json:"created_at,omitempty"`
	ProfileID         *string                `json:"profile_id,omitempty"`
	HierarchicalAlias string                 `json:"hierarchical_alias,omitempty"`
}

// EdgeView mirrors types.Edge for JSON-facing callers.
type EdgeView struct {
	Src  string `json:"src"`
	Kind string `json:"kind"`
	Dst  string `json:"dst"`
}

func viewFromRecord(rec cache.Record) KnotView {
	return KnotView{
		ID:              rec.ID,
		Title:           rec.Title,
		State:           string(rec.State),
		UpdatedAt:       rec.UpdatedAt,
		Body:            rec.Body,
		Description:     rec.Description,
		Priority:        rec.Priority,
		KnotType:        rec.KnotType,
		Tags:            rec.Tags,
		Notes:           rec.Notes,
		HandoffCapsules: rec.HandoffCapsules,
		WorkflowEtag:    rec.WorkflowEtag,
		CreatedAt:       rec.CreatedAt,
		ProfileID:       rec.ProfileID,
	}
}

func edgeView(e types.Edge) EdgeView {
	return EdgeView{Src: e.Src, Kind: e.Kind, Dst: e.Dst}
}

// Open wires together the cache, event writer, and workflow registry for
// repoRoot, acquiring the repo-wide mutation lock (spec.md §4.5) for the
// lifetime of the returned App. dbPath is normally
// "<repoRoot>/.knots/cache/state.sqlite"; its parent directories are
// created if missing.
//
// Opening against a repoRoot without a .knots directory raises
// NotInitialized, per spec.md §4.4.
func Open(ctx context.Context, repoRoot, dbPath string) (*App, error) {
	knotsDir := filepath.Join(repoRoot, ".knots")
	if _, err := os.Stat(knotsDir); os.IsNotExist(err) {
		return nil, &Error{Kind: KindNotInitialized}
	}

	lockPath := filepath.Join(knotsDir, "locks", "repo.lock")
	repoLock, err := lockfile.TryAcquire(lockPath)
	if err != nil {
		return nil, wrapLock(err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		repoLock.Release()
		return nil, &Error{Kind: KindDb, Message: err.Error(), Err: err}
	}

	c, err := cache.Open(ctx, dbPath)
	if err != nil {
		repoLock.Release()
		return nil, wrapDb(err)
	}

	registry, err := workflow.Load()
	if err != nil {
		c.Close()
		repoLock.Release()
		return nil, wrapWorkflow(err)
	}
	if overridePath := filepath.Join(knotsDir, "workflows.toml"); fileExists(overridePath) {
		raw, readErr := os.ReadFile(overridePath)
		if readErr != nil {
			c.Close()
			repoLock.Release()
			return nil, &Error{Kind: KindDb, Message: readErr.Error(), Err: readErr}
		}
		overridden, loadErr := workflow.FromTOML(string(raw))
		if loadErr != nil {
			c.Close()
			repoLock.Release()
			return nil, wrapWorkflow(loadErr)
		}
		registry = overridden
	}

	return &App{
		Cache:    c,
		Writer:   eventlog.NewWriter(repoRoot),
		Registry: registry,
		RepoRoot: repoRoot,
		repoLock: repoLock,
	}, nil
}

// Close releases the cache connection and the repo lock. Safe to call
// more than once.
func (a *App) Close() error {
	var firstErr error
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			firstErr = err
		}
		a.Cache = nil
	}
	if a.repoLock != nil {
		if err := a.repoLock.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.repoLock = nil
	}
	return firstErr
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
