package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knots/knots/internal/types"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knots.db")
	c, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpen_AppliesMigrationsAndDefaults(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	version, ok, err := c.GetMeta(ctx, "schema_version")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "3", version)

	hotWindow, ok, err := c.GetMeta(ctx, "hot_window_days")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "7", hotWindow)
}

func TestUpsertAndGetKnotHot(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	etag := "evt-1"
	created := "2026-01-01T00:00:00Z"
	err := c.UpsertKnotHot(ctx, UpsertKnotHot{
		ID:           "acme-ab12",
		Title:        "Build cache layer",
		State:        types.StateReadyForImplementation,
		UpdatedAt:    created,
		Tags:         []string{"backend"},
		WorkflowEtag: &etag,
		CreatedAt:    &created,
	})
	require.NoError(t, err)

	rec, err := c.GetKnotHot(ctx, "acme-ab12")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "Build cache layer", rec.Title)
	require.Equal(t, types.StateReadyForImplementation, rec.State)
	require.Equal(t, []string{"backend"}, rec.Tags)
	require.Equal(t, &etag, rec.WorkflowEtag)

	list, err := c.ListKnotHot(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestUpsertKnotHot_PreservesCreatedAtOnUpdate(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	original := "2026-01-01T00:00:00Z"
	require.NoError(t, c.UpsertKnotHot(ctx, UpsertKnotHot{
		ID: "acme-cd34", Title: "A", State: types.StateReadyForPlanning, UpdatedAt: original, CreatedAt: &original,
	}))

	later := "2026-02-01T00:00:00Z"
	require.NoError(t, c.UpsertKnotHot(ctx, UpsertKnotHot{
		ID: "acme-cd34", Title: "A", State: types.StatePlanning, UpdatedAt: later, CreatedAt: &later,
	}))

	rec, err := c.GetKnotHot(ctx, "acme-cd34")
	require.NoError(t, err)
	require.Equal(t, &original, rec.CreatedAt)
	require.Equal(t, types.StatePlanning, rec.State)
}

func TestEdges(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.InsertEdge(ctx, "a", "parent_of", "b"))
	require.NoError(t, c.InsertEdge(ctx, "a", "parent_of", "b"))

	out, err := c.ListEdges(ctx, "a", types.EdgeOutgoing)
	require.NoError(t, err)
	require.Len(t, out, 1)

	require.NoError(t, c.DeleteEdge(ctx, "a", "parent_of", "b"))
	out, err = c.ListEdges(ctx, "a", types.EdgeOutgoing)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestFingerprintDedup(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	fp := Fingerprint("jira:PROJ", "acme-ab12", "2026-01-01T00:00:00Z", "issue_upsert")
	has, err := c.HasFingerprint(ctx, fp)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, c.InsertFingerprint(ctx, fp, "jira:PROJ", "acme-ab12", "2026-01-01T00:00:00Z", "issue_upsert", "2026-01-01T00:00:00Z"))

	has, err = c.HasFingerprint(ctx, fp)
	require.NoError(t, err)
	require.True(t, has)
}
