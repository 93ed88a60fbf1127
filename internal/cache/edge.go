package cache

import (
	"context"

	"github.com/knots/knots/internal/types"
)

// InsertEdge adds (src, kind, dst) if it is not already present.
func (c *Cache) InsertEdge(ctx context.Context, src, kind, dst string) error {
	_, err := c.DB.ExecContext(ctx, "INSERT OR IGNORE INTO edge (src, kind, dst) VALUES (?, ?, ?)", src, kind, dst)
	return err
}

// DeleteEdge removes (src, kind, dst).
func (c *Cache) DeleteEdge(ctx context.Context, src, kind, dst string) error {
	_, err := c.DB.ExecContext(ctx, "DELETE FROM edge WHERE src = ? AND kind = ? AND dst = ?", src, kind, dst)
	return err
}

// ListEdges returns the edges touching knotID in the given direction,
// ordered by (src, kind, dst).
func (c *Cache) ListEdges(ctx context.Context, knotID string, direction types.EdgeDirection) ([]types.Edge, error) {
	var query string
	switch direction {
	case types.EdgeIncoming:
		query = "SELECT src, kind, dst FROM edge WHERE dst = ? ORDER BY src, kind, dst"
	case types.EdgeOutgoing:
		query = "SELECT src, kind, dst FROM edge WHERE src = ? ORDER BY src, kind, dst"
	default:
		query = "SELECT src, kind, dst FROM edge WHERE src = ? OR dst = ? ORDER BY src, kind, dst"
	}

	var rows interface {
		Next() bool
		Scan(...any) error
		Err() error
		Close() error
	}
	var err error
	if direction == types.EdgeBoth {
		rows, err = c.DB.QueryContext(ctx, query, knotID, knotID)
	} else {
		rows, err = c.DB.QueryContext(ctx, query, knotID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Edge
	for rows.Next() {
		var e types.Edge
		if err := rows.Scan(&e.Src, &e.Kind, &e.Dst); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
