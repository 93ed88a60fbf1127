package replication

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/knots/knots/internal/cache"
	"github.com/knots/knots/internal/gitshell"
	"github.com/knots/knots/internal/snapshot"
	"github.com/knots/knots/internal/tiering"
	"github.com/knots/knots/internal/types"
)

// incrementalApplier walks the index and full event trees under a sync
// worktree and applies whatever has changed since the last recorded head,
// mirroring sync/apply.rs's IncrementalApplier.
type incrementalApplier struct {
	cache    *cache.Cache
	worktree string
	git      *gitshell.Adapter
}

func newIncrementalApplier(c *cache.Cache, worktree string, git *gitshell.Adapter) *incrementalApplier {
	return &incrementalApplier{cache: c, worktree: worktree, git: git}
}

func (a *incrementalApplier) applyToHead(ctx context.Context, targetHead string) (SyncSummary, error) {
	_, indexHeadSet, err := a.cache.GetMeta(ctx, "last_index_head_commit")
	if err != nil {
		return SyncSummary{}, wrapDb(err)
	}
	_, fullHeadSet, err := a.cache.GetMeta(ctx, "last_full_head_commit")
	if err != nil {
		return SyncSummary{}, wrapDb(err)
	}
	if !indexHeadSet && !fullHeadSet {
		repoRoot := filepath.Dir(filepath.Dir(a.worktree))
		if _, err := snapshot.Apply(ctx, a.cache, repoRoot); err != nil {
			return SyncSummary{}, snapshotLoad(err)
		}
	}

	indexFiles, err := a.changedFiles(ctx, "last_index_head_commit", ".knots/index", targetHead)
	if err != nil {
		return SyncSummary{}, err
	}
	fullFiles, err := a.changedFiles(ctx, "last_full_head_commit", ".knots/events", targetHead)
	if err != nil {
		return SyncSummary{}, err
	}

	summary := SyncSummary{
		TargetHead: targetHead,
		IndexFiles: uint64(len(indexFiles)),
		FullFiles:  uint64(len(fullFiles)),
	}

	for _, rel := range indexFiles {
		applied, err := a.applyIndexEvent(ctx, rel)
		if err != nil {
			return SyncSummary{}, err
		}
		if applied {
			summary.KnotUpdates++
		}
	}

	for _, rel := range fullFiles {
		outcome, err := a.applyFullEvent(ctx, rel)
		if err != nil {
			return SyncSummary{}, err
		}
		switch outcome {
		case fullApplyEdgeAdded:
			summary.EdgeAdds++
		case fullApplyEdgeRemoved:
			summary.EdgeRemoves++
		}
	}

	if err := a.cache.SetMeta(ctx, "last_index_head_commit", targetHead); err != nil {
		return SyncSummary{}, wrapDb(err)
	}
	if err := a.cache.SetMeta(ctx, "last_full_head_commit", targetHead); err != nil {
		return SyncSummary{}, wrapDb(err)
	}
	if err := a.cache.SetMeta(ctx, "sync_pending", "false"); err != nil {
		return SyncSummary{}, wrapDb(err)
	}

	return summary, nil
}

func (a *incrementalApplier) changedFiles(ctx context.Context, metaKey, prefix, targetHead string) ([]string, error) {
	base, ok, err := a.cache.GetMeta(ctx, metaKey)
	if err != nil {
		return nil, wrapDb(err)
	}
	if ok {
		if base == targetHead {
			return nil, nil
		}

		files, err := a.git.DiffNameOnly(ctx, base, targetHead, prefix)
		var gitErr *gitshell.Error
		switch {
		case err == nil:
			var jsonFiles []string
			for _, f := range files {
				if filepath.Ext(f) == ".json" {
					jsonFiles = append(jsonFiles, f)
				}
			}
			sort.Strings(jsonFiles)
			return jsonFiles, nil
		case isErr(err, &gitErr) && gitErr.IsUnknownRevision():
			// fall through to a full scan below
		default:
			return nil, wrapGit(err)
		}
	}

	files, err := a.scanJSONFiles(prefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (a *incrementalApplier) scanJSONFiles(prefix string) ([]string, error) {
	root := filepath.Join(a.worktree, prefix)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".json" {
			return nil
		}
		rel, err := filepath.Rel(a.worktree, path)
		if err != nil {
			return invalidEvent(path, "failed to relativize path: "+err.Error())
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, wrapIo(err)
	}
	return files, nil
}

func (a *incrementalApplier) applyIndexEvent(ctx context.Context, relativePath string) (bool, error) {
	absPath := filepath.Join(a.worktree, relativePath)
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return false, nil
	}

	var event types.IndexEvent
	if err := readJSONFile(absPath, &event); err != nil {
		return false, err
	}
	if event.EventType != types.IdxKnotHead.String() {
		return false, nil
	}

	knotID, err := requiredString(event.Data, "knot_id", absPath)
	if err != nil {
		return false, err
	}
	title, err := requiredString(event.Data, "title", absPath)
	if err != nil {
		return false, err
	}
	state, err := requiredString(event.Data, "state", absPath)
	if err != nil {
		return false, err
	}
	updatedAt, err := requiredString(event.Data, "updated_at", absPath)
	if err != nil {
		return false, err
	}
	var profileID *string
	if raw, ok := event.Data["profile_id"].(string); ok && raw != "" {
		profileID = &raw
	}

	stale, err := a.isStalePrecondition(ctx, knotID, event.Precondition)
	if err != nil {
		return false, err
	}
	if stale {
		return false, nil
	}

	hotWindowDays := cache.DefaultHotWindowDays
	if raw, ok, err := a.cache.GetMeta(ctx, "hot_window_days"); err == nil && ok {
		if parsed, perr := parsePositiveInt(raw); perr == nil {
			hotWindowDays = parsed
		}
	}

	knotState := types.KnotState(state)
	terminalFlag, _ := event.Data["terminal"].(bool)
	now := time.Now().UTC()
	tier := tiering.Cold
	if !terminalFlag {
		tier = tiering.Classify(knotState, updatedAt, hotWindowDays, now)
	}

	if tier == tiering.Cold {
		if err := a.cache.DeleteKnotHot(ctx, knotID); err != nil {
			return false, wrapDb(err)
		}
		if err := a.cache.DeleteKnotWarm(ctx, knotID); err != nil {
			return false, wrapDb(err)
		}
		if err := a.cache.UpsertColdCatalog(ctx, knotID, title, knotState, updatedAt); err != nil {
			return false, wrapDb(err)
		}
		return true, nil
	}

	existing, err := a.cache.GetKnotHot(ctx, knotID)
	if err != nil {
		return false, wrapDb(err)
	}

	var body, description, knotType, createdAt *string
	var priority *int64
	var tags []string
	var notes, capsules []types.MetadataEntry
	if existing != nil {
		body = existing.Body
		description = existing.Description
		priority = existing.Priority
		knotType = existing.KnotType
		tags = existing.Tags
		notes = existing.Notes
		capsules = existing.HandoffCapsules
		createdAt = existing.CreatedAt
	}
	if createdAt == nil {
		createdAt = &updatedAt
	}

	switch tier {
	case tiering.Hot:
		eventID := event.EventID
		if err := a.cache.UpsertKnotHot(ctx, cache.UpsertKnotHot{
			ID:              knotID,
			Title:           title,
			State:           knotState,
			UpdatedAt:       updatedAt,
			Body:            body,
			Description:     description,
			Priority:        priority,
			KnotType:        knotType,
			Tags:            tags,
			Notes:           notes,
			HandoffCapsules: capsules,
			WorkflowEtag:    &eventID,
			CreatedAt:       createdAt,
			ProfileID:       profileID,
		}); err != nil {
			return false, wrapDb(err)
		}
	case tiering.Warm:
		if err := a.cache.DeleteKnotHot(ctx, knotID); err != nil {
			return false, wrapDb(err)
		}
		if err := a.cache.UpsertKnotWarm(ctx, knotID, title); err != nil {
			return false, wrapDb(err)
		}
	}
	return true, nil
}

type fullApplyOutcome int

const (
	fullApplyIgnored fullApplyOutcome = iota
	fullApplyEdgeAdded
	fullApplyEdgeRemoved
)

func (a *incrementalApplier) applyFullEvent(ctx context.Context, relativePath string) (fullApplyOutcome, error) {
	absPath := filepath.Join(a.worktree, relativePath)
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return fullApplyIgnored, nil
	}

	var event types.FullEvent
	if err := readJSONFile(absPath, &event); err != nil {
		return fullApplyIgnored, err
	}

	stale, err := a.isStalePrecondition(ctx, event.KnotID, event.Precondition)
	if err != nil {
		return fullApplyIgnored, err
	}
	if stale {
		return fullApplyIgnored, nil
	}

	switch event.EventType {
	case types.KnotEdgeAdd.String():
		kind, err := requiredString(event.Data, "kind", absPath)
		if err != nil {
			return fullApplyIgnored, err
		}
		dst, err := requiredString(event.Data, "dst", absPath)
		if err != nil {
			return fullApplyIgnored, err
		}
		if err := a.cache.InsertEdge(ctx, event.KnotID, kind, dst); err != nil {
			return fullApplyIgnored, wrapDb(err)
		}
		return fullApplyEdgeAdded, nil

	case types.KnotEdgeRemove.String():
		kind, err := requiredString(event.Data, "kind", absPath)
		if err != nil {
			return fullApplyIgnored, err
		}
		dst, err := requiredString(event.Data, "dst", absPath)
		if err != nil {
			return fullApplyIgnored, err
		}
		if err := a.cache.DeleteEdge(ctx, event.KnotID, kind, dst); err != nil {
			return fullApplyIgnored, wrapDb(err)
		}
		return fullApplyEdgeRemoved, nil

	case types.KnotDescriptionSet.String():
		err := a.applyMetadataUpdate(ctx, event.KnotID, func(p *metadataProjection) {
			p.Description = optionalString(event.Data["description"])
			p.Body = p.Description
		})
		return fullApplyIgnored, err

	case types.KnotPrioritySet.String():
		err := a.applyMetadataUpdate(ctx, event.KnotID, func(p *metadataProjection) {
			p.Priority = optionalInt64(event.Data["priority"])
		})
		return fullApplyIgnored, err

	case types.KnotTypeSet.String():
		err := a.applyMetadataUpdate(ctx, event.KnotID, func(p *metadataProjection) {
			p.KnotType = optionalString(event.Data["type"])
		})
		return fullApplyIgnored, err

	case types.KnotTagAdd.String():
		tag, err := requiredString(event.Data, "tag", absPath)
		if err != nil {
			return fullApplyIgnored, err
		}
		tag = trimLower(tag)
		if tag != "" {
			err = a.applyMetadataUpdate(ctx, event.KnotID, func(p *metadataProjection) {
				if !containsStr(p.Tags, tag) {
					p.Tags = append(p.Tags, tag)
				}
			})
		}
		return fullApplyIgnored, err

	case types.KnotTagRemove.String():
		tag, err := requiredString(event.Data, "tag", absPath)
		if err != nil {
			return fullApplyIgnored, err
		}
		tag = trimLower(tag)
		if tag != "" {
			err = a.applyMetadataUpdate(ctx, event.KnotID, func(p *metadataProjection) {
				p.Tags = removeStr(p.Tags, tag)
			})
		}
		return fullApplyIgnored, err

	case types.KnotNoteAdded.String():
		entry, err := parseMetadataEntry(event.Data, absPath)
		if err != nil {
			return fullApplyIgnored, err
		}
		err = a.applyMetadataUpdate(ctx, event.KnotID, func(p *metadataProjection) {
			if !containsEntry(p.Notes, entry.EntryID) {
				p.Notes = append(p.Notes, entry)
			}
		})
		return fullApplyIgnored, err

	case types.KnotHandoffCapsuleAdded.String():
		entry, err := parseMetadataEntry(event.Data, absPath)
		if err != nil {
			return fullApplyIgnored, err
		}
		err = a.applyMetadataUpdate(ctx, event.KnotID, func(p *metadataProjection) {
			if !containsEntry(p.HandoffCapsules, entry.EntryID) {
				p.HandoffCapsules = append(p.HandoffCapsules, entry)
			}
		})
		return fullApplyIgnored, err

	default:
		return fullApplyIgnored, nil
	}
}

type metadataProjection struct {
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

func (a *incrementalApplier) applyMetadataUpdate(ctx context.Context, knotID string, mutate func(*metadataProjection)) error {
	existing, err := a.cache.GetKnotHot(ctx, knotID)
	if err != nil {
		return wrapDb(err)
	}
	if existing == nil {
		return nil
	}

	p := metadataProjection{
		Title:           existing.Title,
		State:           existing.State,
		UpdatedAt:       existing.UpdatedAt,
		Body:            existing.Body,
		Description:     existing.Description,
		Priority:        existing.Priority,
		KnotType:        existing.KnotType,
		Tags:            append([]string(nil), existing.Tags...),
		Notes:           append([]types.MetadataEntry(nil), existing.Notes...),
		HandoffCapsules: append([]types.MetadataEntry(nil), existing.HandoffCapsules...),
		WorkflowEtag:    existing.WorkflowEtag,
		CreatedAt:       existing.CreatedAt,
		ProfileID:       existing.ProfileID,
	}
	mutate(&p)

	if err := a.cache.UpsertKnotHot(ctx, cache.UpsertKnotHot{
		ID:              knotID,
		Title:           p.Title,
		State:           p.State,
		UpdatedAt:       p.UpdatedAt,
		Body:            p.Body,
		Description:     p.Description,
		Priority:        p.Priority,
		KnotType:        p.KnotType,
		Tags:            p.Tags,
		Notes:           p.Notes,
		HandoffCapsules: p.HandoffCapsules,
		WorkflowEtag:    p.WorkflowEtag,
		CreatedAt:       p.CreatedAt,
		ProfileID:       p.ProfileID,
	}); err != nil {
		return wrapDb(err)
	}
	return nil
}

func (a *incrementalApplier) isStalePrecondition(ctx context.Context, knotID string, precondition *types.WorkflowPrecondition) (bool, error) {
	if precondition == nil {
		return false, nil
	}
	existing, err := a.cache.GetKnotHot(ctx, knotID)
	if err != nil {
		return false, wrapDb(err)
	}
	current := ""
	if existing != nil && existing.WorkflowEtag != nil {
		current = *existing.WorkflowEtag
	}
	return current != precondition.WorkflowEtag, nil
}

func readJSONFile(path string, target any) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return wrapIo(err)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return invalidEvent(path, "invalid JSON payload: "+err.Error())
	}
	return nil
}

func requiredString(data map[string]any, key, path string) (string, error) {
	raw, ok := data[key]
	if !ok {
		return "", invalidEvent(path, "missing '"+key+"' string field")
	}
	s, ok := raw.(string)
	if !ok {
		return "", invalidEvent(path, "missing '"+key+"' string field")
	}
	return s, nil
}

func optionalString(value any) *string {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func optionalInt64(value any) *int64 {
	switch v := value.(type) {
	case float64:
		i := int64(v)
		return &i
	case int64:
		return &v
	default:
		return nil
	}
}

func parseMetadataEntry(data map[string]any, path string) (types.MetadataEntry, error) {
	entryID, err := requiredString(data, "entry_id", path)
	if err != nil {
		return types.MetadataEntry{}, err
	}
	content, err := requiredString(data, "content", path)
	if err != nil {
		return types.MetadataEntry{}, err
	}
	username, err := requiredString(data, "username", path)
	if err != nil {
		return types.MetadataEntry{}, err
	}
	datetime, err := requiredString(data, "datetime", path)
	if err != nil {
		return types.MetadataEntry{}, err
	}
	agentname, err := requiredString(data, "agentname", path)
	if err != nil {
		return types.MetadataEntry{}, err
	}
	model, err := requiredString(data, "model", path)
	if err != nil {
		return types.MetadataEntry{}, err
	}
	version, err := requiredString(data, "version", path)
	if err != nil {
		return types.MetadataEntry{}, err
	}
	return types.MetadataEntry{
		EntryID:   entryID,
		Content:   content,
		Username:  username,
		DateTime:  datetime,
		AgentName: agentname,
		Model:     model,
		Version:   version,
	}, nil
}

func containsStr(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func removeStr(list []string, value string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

func containsEntry(list []types.MetadataEntry, entryID string) bool {
	for _, e := range list {
		if e.EntryID == entryID {
			return true
		}
	}
	return false
}

func trimLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
