// Package snapshot periodically dumps the cache's hot/warm/cold tiers to
// JSON files under .knots/snapshots so a fresh clone can warm its cache
// without replaying the entire event log.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/knots/knots/internal/cache"
)

const (
	schemaVersion = 1
	activeSuffix  = "-active_catalog.snapshot.json"
	coldSuffix    = "-cold_catalog.snapshot.json"
)

// WriteSummary reports what a Write call produced.
type WriteSummary struct {
	ActivePath string
	ColdPath   string
	HotCount   int
	WarmCount  int
	ColdCount  int
}

// LoadSummary reports what an Apply call restored.
type LoadSummary struct {
	ActivePath string
	ColdPath   string
	HotCount   int
	WarmCount  int
	ColdCount  int
}

type activeCatalog struct {
	SchemaVersion int                 `json:"schema_version"`
	WrittenAt     string              `json:"written_at"`
	Hot           []cache.Record      `json:"hot"`
	Warm          []cache.WarmRecord  `json:"warm"`
}

type coldCatalog struct {
	SchemaVersion int               `json:"schema_version"`
	WrittenAt     string            `json:"written_at"`
	Cold          []cache.ColdRecord `json:"cold"`
}

func snapshotsDir(repoRoot string) string {
	return filepath.Join(repoRoot, ".knots", "snapshots")
}

// Write dumps the cache's current hot/warm/cold tiers into two new,
// timestamp-named snapshot files under <repoRoot>/.knots/snapshots.
func Write(ctx context.Context, c *cache.Cache, repoRoot string) (WriteSummary, error) {
	hot, err := c.ListKnotHot(ctx)
	if err != nil {
		return WriteSummary{}, fmt.Errorf("snapshot: list knot_hot: %w", err)
	}
	warm, err := c.ListKnotWarm(ctx)
	if err != nil {
		return WriteSummary{}, fmt.Errorf("snapshot: list knot_warm: %w", err)
	}
	cold, err := c.ListColdCatalog(ctx)
	if err != nil {
		return WriteSummary{}, fmt.Errorf("snapshot: list cold_catalog: %w", err)
	}

	dir := snapshotsDir(repoRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WriteSummary{}, fmt.Errorf("snapshot: create %s: %w", dir, err)
	}

	writtenAt := time.Now().UTC().Format(time.RFC3339)
	stamp := time.Now().UTC().Format("20060102T150405Z")

	active := activeCatalog{SchemaVersion: schemaVersion, WrittenAt: writtenAt, Hot: hot, Warm: warm}
	coldSnap := coldCatalog{SchemaVersion: schemaVersion, WrittenAt: writtenAt, Cold: cold}

	activePath := filepath.Join(dir, stamp+activeSuffix)
	coldPath := filepath.Join(dir, stamp+coldSuffix)

	if err := writeJSON(activePath, active); err != nil {
		return WriteSummary{}, err
	}
	if err := writeJSON(coldPath, coldSnap); err != nil {
		return WriteSummary{}, err
	}

	return WriteSummary{
		ActivePath: activePath,
		ColdPath:   coldPath,
		HotCount:   len(hot),
		WarmCount:  len(warm),
		ColdCount:  len(cold),
	}, nil
}

// Apply loads the most recent active and cold snapshots (if any exist) and
// upserts their contents into c.
func Apply(ctx context.Context, c *cache.Cache, repoRoot string) (LoadSummary, error) {
	dir := snapshotsDir(repoRoot)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return LoadSummary{}, nil
	}

	activePath, err := latestSnapshotPath(dir, activeSuffix)
	if err != nil {
		return LoadSummary{}, err
	}
	coldPath, err := latestSnapshotPath(dir, coldSuffix)
	if err != nil {
		return LoadSummary{}, err
	}

	var summary LoadSummary

	if activePath != "" {
		payload, err := os.ReadFile(activePath)
		if err != nil {
			return LoadSummary{}, fmt.Errorf("snapshot: read %s: %w", activePath, err)
		}
		var snap activeCatalog
		if err := json.Unmarshal(payload, &snap); err != nil {
			return LoadSummary{}, fmt.Errorf("snapshot: decode %s: %w", activePath, err)
		}
		for _, rec := range snap.Hot {
			if err := c.UpsertKnotHot(ctx, cache.UpsertKnotHot{
				ID: rec.ID, Title: rec.Title, State: rec.State, UpdatedAt: rec.UpdatedAt,
				Body: rec.Body, Description: rec.Description, Priority: rec.Priority, KnotType: rec.KnotType,
				Tags: rec.Tags, Notes: rec.Notes, HandoffCapsules: rec.HandoffCapsules,
				WorkflowEtag: rec.WorkflowEtag, CreatedAt: rec.CreatedAt, ProfileID: rec.ProfileID,
			}); err != nil {
				return LoadSummary{}, fmt.Errorf("snapshot: restore knot_hot %s: %w", rec.ID, err)
			}
			summary.HotCount++
		}
		for _, rec := range snap.Warm {
			if err := c.UpsertKnotWarm(ctx, rec.ID, rec.Title); err != nil {
				return LoadSummary{}, fmt.Errorf("snapshot: restore knot_warm %s: %w", rec.ID, err)
			}
			summary.WarmCount++
		}
		summary.ActivePath = activePath
	}

	if coldPath != "" {
		payload, err := os.ReadFile(coldPath)
		if err != nil {
			return LoadSummary{}, fmt.Errorf("snapshot: read %s: %w", coldPath, err)
		}
		var snap coldCatalog
		if err := json.Unmarshal(payload, &snap); err != nil {
			return LoadSummary{}, fmt.Errorf("snapshot: decode %s: %w", coldPath, err)
		}
		for _, rec := range snap.Cold {
			if err := c.UpsertColdCatalog(ctx, rec.ID, rec.Title, rec.State, rec.UpdatedAt); err != nil {
				return LoadSummary{}, fmt.Errorf("snapshot: restore cold_catalog %s: %w", rec.ID, err)
			}
			summary.ColdCount++
		}
		summary.ColdPath = coldPath
	}

	return summary, nil
}

func latestSnapshotPath(dir, suffix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("snapshot: read dir %s: %w", dir, err)
	}
	var matches []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), suffix) {
			matches = append(matches, filepath.Join(dir, entry.Name()))
		}
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

func writeJSON(path string, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	return nil
}
