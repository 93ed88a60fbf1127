package eventlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knots/knots/internal/types"
)

func TestRelativePathForEvent_FullStream(t *testing.T) {
	path, err := RelativePathForEvent(
		types.StreamFull,
		"2026-02-22T10:00:00Z",
		"018f4f7f-7dc7-7f4e-954b-64f8a2273ec8",
		"knot.state_set",
	)
	require.NoError(t, err)
	require.Equal(t, ".knots/events/2026/02/22/018f4f7f-7dc7-7f4e-954b-64f8a2273ec8-knot.state_set.json", path)
}

func TestRelativePathForEvent_IndexStream(t *testing.T) {
	path, err := RelativePathForEvent(
		types.StreamIndex,
		"2026-02-22T10:00:00Z",
		"018f4f7f-7dc7-7f4e-954b-64f8a2273ec8",
		"idx.knot_head",
	)
	require.NoError(t, err)
	require.Equal(t, ".knots/index/2026/02/22/018f4f7f-7dc7-7f4e-954b-64f8a2273ec8-idx.knot_head.json", path)
}

func TestRelativePathForEvent_RejectsBadComponents(t *testing.T) {
	_, err := RelativePathForEvent(types.StreamFull, "2026-02-22T10:00:00Z", "has/slash", "knot.created")
	require.Error(t, err)

	_, err = RelativePathForEvent(types.StreamFull, "not-a-time", "018f4f7f-7dc7-7f4e-954b-64f8a2273ec8", "knot.created")
	require.Error(t, err)
}

func TestWriter_WriteThenCollide(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	evt := types.EventRecord{Full: &types.FullEvent{
		EventID:    "018f4f7f-7dc7-7f4e-954b-64f8a2273ec8",
		OccurredAt: "2026-02-22T10:00:00Z",
		KnotID:     "repo-abcd",
		EventType:  "knot.created",
		Data:       map[string]any{"title": "hello"},
	}}

	relPath, err := w.Write(evt)
	require.NoError(t, err)

	absPath := filepath.Join(dir, relPath)
	contents, err := os.ReadFile(absPath)
	require.NoError(t, err)
	require.Contains(t, string(contents), "\"title\": \"hello\"")
	require.Equal(t, byte('\n'), contents[len(contents)-1])

	_, err = w.Write(evt)
	require.Error(t, err)
	require.True(t, IsCollision(err))
}

func TestWriter_IndexEvent(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	evt := types.EventRecord{Index: &types.IndexEvent{
		EventID:    NewEventID(),
		OccurredAt: NowUTCRFC3339(),
		EventType:  "idx.knot_head",
		Data:       map[string]any{"knot_id": "repo-abcd"},
	}}

	relPath, err := w.Write(evt)
	require.NoError(t, err)
	require.Contains(t, relPath, ".knots/index/")
}
