package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// newTestApp opens an App rooted at a fresh temp directory with a bare
// .knots tree, mirroring the on-disk layout `kno init` creates.
func newTestApp(t *testing.T) *App {
	t.Helper()

	repoRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repoRoot, ".knots", "locks"), 0o755); err != nil {
		t.Fatalf("mkdir .knots/locks: %v", err)
	}

	a, err := Open(context.Background(), repoRoot, filepath.Join(repoRoot, ".knots", "cache", "state.sqlite"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestOpenRejectsMissingKnotsDir(t *testing.T) {
	repoRoot := t.TempDir()
	_, err := Open(context.Background(), repoRoot, filepath.Join(repoRoot, ".knots", "cache", "state.sqlite"))
	if err == nil {
		t.Fatal("expected error opening a repo without .knots")
	}
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Kind != KindNotInitialized {
		t.Errorf("got %v, want KindNotInitialized", err)
	}
}

func TestCreateThenListKnot(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	body := "first knot body"
	created, err := a.CreateKnot(ctx, "  write the proposal  ", &body, "", nil)
	if err != nil {
		t.Fatalf("CreateKnot() error = %v", err)
	}
	if created.Title != "write the proposal" {
		t.Errorf("Title = %q, want trimmed title", created.Title)
	}
	if created.State != "ready_for_planning" {
		t.Errorf("State = %q, want ready_for_planning", created.State)
	}

	list, err := a.ListKnots(ctx)
	if err != nil {
		t.Fatalf("ListKnots() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("ListKnots() = %+v, want one knot matching %q", list, created.ID)
	}

	shown, err := a.ShowKnot(ctx, created.ID)
	if err != nil {
		t.Fatalf("ShowKnot() error = %v", err)
	}
	if shown.ID != created.ID {
		t.Errorf("ShowKnot() ID = %q, want %q", shown.ID, created.ID)
	}
}

func TestCreateKnotRejectsBlankTitle(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.CreateKnot(context.Background(), "   ", nil, "", nil); err == nil {
		t.Fatal("expected error creating a knot with a blank title")
	}
}

func TestSetStateEnforcesTransitionTable(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	created, err := a.CreateKnot(ctx, "gate this", nil, "", nil)
	if err != nil {
		t.Fatalf("CreateKnot() error = %v", err)
	}

	if _, err := a.SetState(ctx, created.ID, "shipped", false, nil); err == nil {
		t.Fatal("expected rejection jumping straight to a terminal state without force")
	}

	if _, err := a.SetState(ctx, created.ID, "shipped", true, nil); err != nil {
		t.Fatalf("SetState(force=true) error = %v", err)
	}
}

func TestSetStateRejectsStalePrecondition(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	created, err := a.CreateKnot(ctx, "stale check", nil, "", nil)
	if err != nil {
		t.Fatalf("CreateKnot() error = %v", err)
	}

	stale := "not-the-real-etag"
	_, err = a.SetState(ctx, created.ID, "planning", false, &stale)
	if err == nil {
		t.Fatal("expected a stale-head error")
	}
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Kind != KindStaleHead {
		t.Errorf("got %v, want KindStaleHead", err)
	}
}

func TestUpdateKnotAppliesTagsAndTitle(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	created, err := a.CreateKnot(ctx, "needs tags", nil, "", nil)
	if err != nil {
		t.Fatalf("CreateKnot() error = %v", err)
	}

	newTitle := "needs tags, renamed"
	updated, err := a.UpdateKnot(ctx, created.ID, KnotPatch{
		Title:   &newTitle,
		AddTags: []string{"urgent", "backend"},
	})
	if err != nil {
		t.Fatalf("UpdateKnot() error = %v", err)
	}
	if updated.Title != newTitle {
		t.Errorf("Title = %q, want %q", updated.Title, newTitle)
	}
	if len(updated.Tags) != 2 {
		t.Errorf("Tags = %v, want 2 entries", updated.Tags)
	}
}

func TestAddEdgeThenListEdges(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	src, err := a.CreateKnot(ctx, "blocker", nil, "", nil)
	if err != nil {
		t.Fatalf("CreateKnot(src) error = %v", err)
	}
	dst, err := a.CreateKnot(ctx, "blocked", nil, "", nil)
	if err != nil {
		t.Fatalf("CreateKnot(dst) error = %v", err)
	}

	if _, err := a.AddEdge(ctx, src.ID, "blocks", dst.ID); err != nil {
		t.Fatalf("AddEdge() error = %v", err)
	}

	edges, err := a.ListEdges(ctx, src.ID, "out")
	if err != nil {
		t.Fatalf("ListEdges() error = %v", err)
	}
	if len(edges) != 1 || edges[0].Dst != dst.ID {
		t.Fatalf("ListEdges() = %+v, want one edge to %q", edges, dst.ID)
	}

	if _, err := a.RemoveEdge(ctx, src.ID, "blocks", dst.ID); err != nil {
		t.Fatalf("RemoveEdge() error = %v", err)
	}

	edges, err = a.ListEdges(ctx, src.ID, "out")
	if err != nil {
		t.Fatalf("ListEdges() after remove error = %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("ListEdges() after remove = %+v, want none", edges)
	}
}
