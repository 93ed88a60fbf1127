package app

import (
	"context"

	"github.com/knots/knots/internal/replication"
)

// Sync implements spec.md §4.4's sync(): push then pull.
func (a *App) Sync(ctx context.Context) (replication.ReplicationSummary, error) {
	svc := replication.NewService(a.Cache, a.RepoRoot)
	summary, err := svc.Sync(ctx)
	if err != nil {
		return replication.ReplicationSummary{}, wrapSync(err)
	}
	return summary, nil
}

// Push implements spec.md §4.4's push(): publish local events to the
// remote sync branch, retrying on non-fast-forward rejection.
func (a *App) Push(ctx context.Context) (replication.PushSummary, error) {
	svc := replication.NewService(a.Cache, a.RepoRoot)
	summary, err := svc.Push(ctx)
	if err != nil {
		return replication.PushSummary{}, wrapSync(err)
	}
	return summary, nil
}

// Pull implements spec.md §4.4's pull(): fetch the remote sync branch and
// incrementally apply new events into the projection.
func (a *App) Pull(ctx context.Context) (replication.SyncSummary, error) {
	svc := replication.NewService(a.Cache, a.RepoRoot)
	summary, err := svc.Pull(ctx)
	if err != nil {
		return replication.SyncSummary{}, wrapSync(err)
	}
	return summary, nil
}
