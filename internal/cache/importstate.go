package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// ImportStatus mirrors one row of import_state: the last-known progress of
// a single import source.
type ImportStatus struct {
	SourceKey      string
	SourceType     string
	SourceRef      string
	LastRunAt      string
	LastStatus     string
	ProcessedCount int64
	ImportedCount  int64
	SkippedCount   int64
	ErrorCount     int64
	Checkpoint     *string
	LastError      *string
}

// GetImportState returns sourceKey's status row, or nil if it has never run.
func (c *Cache) GetImportState(ctx context.Context, sourceKey string) (*ImportStatus, error) {
	row := c.DB.QueryRowContext(ctx, `
SELECT source_key, source_type, source_ref, last_run_at, last_status,
       processed_count, imported_count, skipped_count, error_count, checkpoint, last_error
FROM import_state WHERE source_key = ?`, sourceKey)

	var s ImportStatus
	err := row.Scan(&s.SourceKey, &s.SourceType, &s.SourceRef, &s.LastRunAt, &s.LastStatus,
		&s.ProcessedCount, &s.ImportedCount, &s.SkippedCount, &s.ErrorCount, &s.Checkpoint, &s.LastError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get import_state %s: %w", sourceKey, err)
	}
	return &s, nil
}

// ListImportStatuses returns every import_state row, ordered the way the
// original implementation orders them: most recently run first, tied by
// source type.
func (c *Cache) ListImportStatuses(ctx context.Context) ([]ImportStatus, error) {
	rows, err := c.DB.QueryContext(ctx, `
SELECT source_key, source_type, source_ref, last_run_at, last_status,
       processed_count, imported_count, skipped_count, error_count, checkpoint, last_error
FROM import_state
ORDER BY last_run_at DESC, source_type ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ImportStatus
	for rows.Next() {
		var s ImportStatus
		if err := rows.Scan(&s.SourceKey, &s.SourceType, &s.SourceRef, &s.LastRunAt, &s.LastStatus,
			&s.ProcessedCount, &s.ImportedCount, &s.SkippedCount, &s.ErrorCount, &s.Checkpoint, &s.LastError); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertImportState records the outcome of one import run.
func (c *Cache) UpsertImportState(ctx context.Context, s ImportStatus) error {
	_, err := c.DB.ExecContext(ctx, `
INSERT INTO import_state (
	source_key, source_type, source_ref, last_run_at, last_status,
	processed_count, imported_count, skipped_count, error_count, checkpoint, last_error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(source_key) DO UPDATE SET
	source_type = excluded.source_type,
	source_ref = excluded.source_ref,
	last_run_at = excluded.last_run_at,
	last_status = excluded.last_status,
	processed_count = excluded.processed_count,
	imported_count = excluded.imported_count,
	skipped_count = excluded.skipped_count,
	error_count = excluded.error_count,
	checkpoint = excluded.checkpoint,
	last_error = excluded.last_error
`, s.SourceKey, s.SourceType, s.SourceRef, s.LastRunAt, s.LastStatus,
		s.ProcessedCount, s.ImportedCount, s.SkippedCount, s.ErrorCount, s.Checkpoint, s.LastError)
	return err
}

// Fingerprint computes the dedup key for one imported record: a SHA-256
// over its identifying fields, hex-encoded.
func Fingerprint(sourceKey, knotID, occurredAt, action string) string {
	sum := sha256.Sum256([]byte(sourceKey + "|" + knotID + "|" + occurredAt + "|" + action))
	return hex.EncodeToString(sum[:])
}

// HasFingerprint reports whether fingerprint has already been recorded,
// making the import of the record it identifies idempotent.
func (c *Cache) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	var found string
	err := c.DB.QueryRowContext(ctx, "SELECT fingerprint FROM import_fingerprints WHERE fingerprint = ?", fingerprint).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertFingerprint records fingerprint as seen.
func (c *Cache) InsertFingerprint(ctx context.Context, fingerprint, sourceKey, knotID, occurredAt, action, createdAt string) error {
	_, err := c.DB.ExecContext(ctx, `
INSERT OR IGNORE INTO import_fingerprints (fingerprint, source_key, knot_id, occurred_at, action, created_at)
VALUES (?, ?, ?, ?, ?, ?)`, fingerprint, sourceKey, knotID, occurredAt, action, createdAt)
	return err
}
