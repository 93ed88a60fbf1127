package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/knots/knots/internal/types"
)

// Record is the cache's row shape for a single knot projection.
type Record struct {
	ID              string
	Title           string
	State           types.KnotState
	UpdatedAt       string
	Body            *string
	Description     *string
	Priority        *int64
	KnotType        *string
	Tags            []string
	Notes           []types.MetadataEntry
	HandoffCapsules []types.MetadataEntry
	WorkflowEtag    *string
	CreatedAt       *string
	ProfileID       *string
}

// UpsertKnotHot is the argument struct for Cache.UpsertKnotHot, mirroring
// the column set of the knot_hot table.
type UpsertKnotHot struct {
	ID              string
	Title           string
	State           types.KnotState
	UpdatedAt       string
	Body            *string
	Description     *string
	Priority        *int64
	KnotType        *string
	Tags            []string
	Notes           []types.MetadataEntry
	HandoffCapsules []types.MetadataEntry
	WorkflowEtag    *string
	CreatedAt       *string
	ProfileID       *string
}

// UpsertKnotHot inserts or replaces a knot's hot-tier projection. A knot
// present in knot_warm with the same id is removed, mirroring the
// original's "hot wins over warm" invariant.
func (c *Cache) UpsertKnotHot(ctx context.Context, args UpsertKnotHot) error {
	tagsJSON, err := json.Marshal(nonNilStrings(args.Tags))
	if err != nil {
		return fmt.Errorf("cache: marshal tags: %w", err)
	}
	notesJSON, err := json.Marshal(nonNilEntries(args.Notes))
	if err != nil {
		return fmt.Errorf("cache: marshal notes: %w", err)
	}
	capsulesJSON, err := json.Marshal(nonNilEntries(args.HandoffCapsules))
	if err != nil {
		return fmt.Errorf("cache: marshal handoff capsules: %w", err)
	}

	_, err = c.DB.ExecContext(ctx, `
INSERT INTO knot_hot (
	id, title, state, updated_at, body, description, priority, knot_type,
	tags_json, notes_json, handoff_capsules_json, workflow_etag, created_at, profile_id
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	state = excluded.state,
	updated_at = excluded.updated_at,
	body = excluded.body,
	description = excluded.description,
	priority = excluded.priority,
	knot_type = excluded.knot_type,
	tags_json = excluded.tags_json,
	notes_json = excluded.notes_json,
	handoff_capsules_json = excluded.handoff_capsules_json,
	workflow_etag = excluded.workflow_etag,
	profile_id = excluded.profile_id,
	created_at = COALESCE(knot_hot.created_at, excluded.created_at)
`,
		args.ID, args.Title, string(args.State), args.UpdatedAt, args.Body, args.Description, args.Priority, args.KnotType,
		string(tagsJSON), string(notesJSON), string(capsulesJSON), args.WorkflowEtag, args.CreatedAt, args.ProfileID,
	)
	if err != nil {
		return fmt.Errorf("cache: upsert knot_hot %s: %w", args.ID, err)
	}

	if _, err := c.DB.ExecContext(ctx, "DELETE FROM knot_warm WHERE id = ?", args.ID); err != nil {
		return fmt.Errorf("cache: delete knot_warm %s: %w", args.ID, err)
	}
	return nil
}

const knotHotColumns = `id, title, state, updated_at, body, description, priority, knot_type,
	tags_json, notes_json, handoff_capsules_json, workflow_etag, created_at, profile_id`

func scanKnotHot(row interface {
	Scan(dest ...any) error
}) (*Record, error) {
	var (
		rec                                      Record
		state                                    string
		tagsJSON, notesJSON, capsulesJSON        string
	)
	if err := row.Scan(
		&rec.ID, &rec.Title, &state, &rec.UpdatedAt, &rec.Body, &rec.Description, &rec.Priority, &rec.KnotType,
		&tagsJSON, &notesJSON, &capsulesJSON, &rec.WorkflowEtag, &rec.CreatedAt, &rec.ProfileID,
	); err != nil {
		return nil, err
	}
	rec.State = types.KnotState(state)
	if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
		return nil, fmt.Errorf("cache: unmarshal tags_json for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(notesJSON), &rec.Notes); err != nil {
		return nil, fmt.Errorf("cache: unmarshal notes_json for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(capsulesJSON), &rec.HandoffCapsules); err != nil {
		return nil, fmt.Errorf("cache: unmarshal handoff_capsules_json for %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// GetKnotHot returns the hot-tier record for id, or nil if it is not
// present in the hot tier.
func (c *Cache) GetKnotHot(ctx context.Context, id string) (*Record, error) {
	row := c.DB.QueryRowContext(ctx, "SELECT "+knotHotColumns+" FROM knot_hot WHERE id = ?", id)
	rec, err := scanKnotHot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get knot_hot %s: %w", id, err)
	}
	return rec, nil
}

// ListKnotHot returns every hot-tier record, most recently updated first.
func (c *Cache) ListKnotHot(ctx context.Context) ([]Record, error) {
	rows, err := c.DB.QueryContext(ctx, "SELECT "+knotHotColumns+" FROM knot_hot ORDER BY updated_at DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("cache: list knot_hot: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanKnotHot(rows)
		if err != nil {
			return nil, fmt.Errorf("cache: scan knot_hot row: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// DeleteKnotHot removes id's hot-tier projection.
func (c *Cache) DeleteKnotHot(ctx context.Context, id string) error {
	_, err := c.DB.ExecContext(ctx, "DELETE FROM knot_hot WHERE id = ?", id)
	return err
}

// UpsertKnotWarm inserts or replaces a knot's warm-tier stub row.
func (c *Cache) UpsertKnotWarm(ctx context.Context, id, title string) error {
	_, err := c.DB.ExecContext(ctx, `
INSERT INTO knot_warm (id, title) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET title = excluded.title`, id, title)
	return err
}

// DeleteKnotWarm removes id's warm-tier row.
func (c *Cache) DeleteKnotWarm(ctx context.Context, id string) error {
	_, err := c.DB.ExecContext(ctx, "DELETE FROM knot_warm WHERE id = ?", id)
	return err
}

// WarmRecord is the cache's row shape for a warm-tier stub.
type WarmRecord struct {
	ID    string
	Title string
}

// ListKnotWarm returns every warm-tier row, ordered by id.
func (c *Cache) ListKnotWarm(ctx context.Context) ([]WarmRecord, error) {
	rows, err := c.DB.QueryContext(ctx, "SELECT id, title FROM knot_warm ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("cache: list knot_warm: %w", err)
	}
	defer rows.Close()

	var out []WarmRecord
	for rows.Next() {
		var rec WarmRecord
		if err := rows.Scan(&rec.ID, &rec.Title); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ColdRecord is the cache's row shape for a cold-catalog summary.
type ColdRecord struct {
	ID        string
	Title     string
	State     types.KnotState
	UpdatedAt string
}

// ListColdCatalog returns every cold-catalog row, ordered by id.
func (c *Cache) ListColdCatalog(ctx context.Context) ([]ColdRecord, error) {
	rows, err := c.DB.QueryContext(ctx, "SELECT id, title, state, updated_at FROM cold_catalog ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("cache: list cold_catalog: %w", err)
	}
	defer rows.Close()

	var out []ColdRecord
	for rows.Next() {
		var rec ColdRecord
		var state string
		if err := rows.Scan(&rec.ID, &rec.Title, &state, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.State = types.KnotState(state)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertColdCatalog inserts or replaces id's cold-catalog summary row.
func (c *Cache) UpsertColdCatalog(ctx context.Context, id, title string, state types.KnotState, updatedAt string) error {
	_, err := c.DB.ExecContext(ctx, `
INSERT INTO cold_catalog (id, title, state, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET title = excluded.title, state = excluded.state, updated_at = excluded.updated_at`,
		id, title, string(state), updatedAt)
	return err
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilEntries(in []types.MetadataEntry) []types.MetadataEntry {
	if in == nil {
		return []types.MetadataEntry{}
	}
	return in
}
