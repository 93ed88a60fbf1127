package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knots/knots/internal/cache"
	"github.com/knots/knots/internal/types"
)

func openTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(context.Background(), filepath.Join(t.TempDir(), "knots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestWriteAndApply_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openTestCache(t)

	etag := "evt-1"
	require.NoError(t, src.UpsertKnotHot(ctx, cache.UpsertKnotHot{
		ID: "acme-ab12", Title: "Hot knot", State: types.StateImplementation,
		UpdatedAt: "2026-02-24T10:00:00Z", Tags: []string{"ops"}, WorkflowEtag: &etag,
	}))
	require.NoError(t, src.UpsertKnotWarm(ctx, "acme-cd34", "Warm knot"))
	require.NoError(t, src.UpsertColdCatalog(ctx, "acme-ef56", "Cold knot", types.StateShipped, "2026-02-24T10:01:00Z"))

	repoRoot := t.TempDir()
	summary, err := Write(ctx, src, repoRoot)
	require.NoError(t, err)
	require.FileExists(t, summary.ActivePath)
	require.FileExists(t, summary.ColdPath)
	require.Equal(t, 1, summary.HotCount)
	require.Equal(t, 1, summary.WarmCount)
	require.Equal(t, 1, summary.ColdCount)

	dst := openTestCache(t)
	loaded, err := Apply(ctx, dst, repoRoot)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.HotCount)
	require.Equal(t, 1, loaded.WarmCount)
	require.Equal(t, 1, loaded.ColdCount)

	rec, err := dst.GetKnotHot(ctx, "acme-ab12")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "Hot knot", rec.Title)
	require.Equal(t, types.StateImplementation, rec.State)
}

func TestApply_NoSnapshotsDirectory(t *testing.T) {
	dst := openTestCache(t)
	loaded, err := Apply(context.Background(), dst, t.TempDir())
	require.NoError(t, err)
	require.Zero(t, loaded.HotCount)
	require.Empty(t, loaded.ActivePath)
}

func TestWrite_PicksLatestOnRepeatedApply(t *testing.T) {
	ctx := context.Background()
	src := openTestCache(t)
	repoRoot := t.TempDir()

	require.NoError(t, src.UpsertKnotHot(ctx, cache.UpsertKnotHot{
		ID: "acme-0001", Title: "First", State: types.StateReadyForPlanning, UpdatedAt: "2026-01-01T00:00:00Z",
	}))
	_, err := Write(ctx, src, repoRoot)
	require.NoError(t, err)

	require.NoError(t, src.UpsertKnotHot(ctx, cache.UpsertKnotHot{
		ID: "acme-0002", Title: "Second", State: types.StateReadyForPlanning, UpdatedAt: "2026-01-02T00:00:00Z",
	}))
	second, err := Write(ctx, src, repoRoot)
	require.NoError(t, err)
	require.Equal(t, 2, second.HotCount)

	dst := openTestCache(t)
	loaded, err := Apply(ctx, dst, repoRoot)
	require.NoError(t, err)
	require.Equal(t, second.ActivePath, loaded.ActivePath)
	require.Equal(t, 2, loaded.HotCount)
}
