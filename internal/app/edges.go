package app

import (
	"context"
	"strings"

	"github.com/knots/knots/internal/cache"
	"github.com/knots/knots/internal/eventlog"
	"github.com/knots/knots/internal/types"
)

// AddEdge implements spec.md §4.4's add_edge.
func (a *App) AddEdge(ctx context.Context, src, kind, dst string) (*EdgeView, error) {
	return a.applyEdgeChange(ctx, src, kind, dst, true)
}

// RemoveEdge implements spec.md §4.4's remove_edge.
func (a *App) RemoveEdge(ctx context.Context, src, kind, dst string) (*EdgeView, error) {
	return a.applyEdgeChange(ctx, src, kind, dst, false)
}

// ListEdges is a pure read from the edge table in the given direction
// ("incoming", "outgoing", or "both"/"in"/"out" aliases).
func (a *App) ListEdges(ctx context.Context, id, direction string) ([]EdgeView, error) {
	dir, err := parseEdgeDirection(direction)
	if err != nil {
		return nil, err
	}
	edges, err := a.Cache.ListEdges(ctx, id, dir)
	if err != nil {
		return nil, wrapDb(err)
	}
	views := make([]EdgeView, 0, len(edges))
	for _, e := range edges {
		views = append(views, edgeView(e))
	}
	return views, nil
}

func (a *App) applyEdgeChange(ctx context.Context, src, kind, dst string, add bool) (*EdgeView, error) {
	src, kind, dst = strings.TrimSpace(src), strings.TrimSpace(kind), strings.TrimSpace(dst)
	if src == "" || kind == "" || dst == "" {
		return nil, invalidArgument("src, kind, and dst are required")
	}

	current, err := a.Cache.GetKnotHot(ctx, src)
	if err != nil {
		return nil, wrapDb(err)
	}
	if current == nil {
		return nil, notFound(src)
	}

	occurredAt := eventlog.NowUTCRFC3339()
	kind2 := types.KnotEdgeAdd
	if !add {
		kind2 = types.KnotEdgeRemove
	}
	if err := a.writeFull(eventlog.NewEventID(), occurredAt, src, kind2, map[string]any{
		"kind": kind,
		"dst":  dst,
	}, currentPrecondition(current.WorkflowEtag)); err != nil {
		return nil, err
	}

	indexEventID, err := a.writeKnotHeadIndex(occurredAt, src, current.Title, current.State, current.ProfileID)
	if err != nil {
		return nil, err
	}

	if add {
		if err := a.Cache.InsertEdge(ctx, src, kind, dst); err != nil {
			return nil, wrapDb(err)
		}
	} else {
		if err := a.Cache.DeleteEdge(ctx, src, kind, dst); err != nil {
			return nil, wrapDb(err)
		}
	}

	if err := a.Cache.UpsertKnotHot(ctx, cache.UpsertKnotHot{
		ID:              src,
		Title:           current.Title,
		State:           current.State,
		UpdatedAt:       occurredAt,
		Body:            current.Body,
		Description:     current.Description,
		Priority:        current.Priority,
		KnotType:        current.KnotType,
		Tags:            current.Tags,
		Notes:           current.Notes,
		HandoffCapsules: current.HandoffCapsules,
		WorkflowEtag:    &indexEventID,
		CreatedAt:       current.CreatedAt,
		ProfileID:       current.ProfileID,
	}); err != nil {
		return nil, wrapDb(err)
	}

	view := EdgeView{Src: src, Kind: kind, Dst: dst}
	return &view, nil
}

func parseEdgeDirection(raw string) (types.EdgeDirection, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "incoming", "in":
		return types.EdgeIncoming, nil
	case "outgoing", "out":
		return types.EdgeOutgoing, nil
	case "both", "all":
		return types.EdgeBoth, nil
	default:
		return 0, invalidArgument("unsupported edge direction %q; use incoming|outgoing|both", raw)
	}
}
