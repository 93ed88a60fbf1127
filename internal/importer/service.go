// Package importer implements spec.md §4.8's idempotent ingestion
// pipeline: JSONL and Dolt sources are read checkpoint-resumed and
// fingerprint-deduplicated, projecting each new/updated record onto the
// same knot event stream a live session would produce.
package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knots/knots/internal/cache"
	"github.com/knots/knots/internal/eventlog"
	"github.com/knots/knots/internal/types"
)

// Summary reports the outcome of one import run.
type Summary struct {
	SourceType     string  `json:"source_type"`
	SourceRef      string  `json:"source_ref"`
	Status         string  `json:"status"`
	ProcessedCount uint64  `json:"processed_count"`
	ImportedCount  uint64  `json:"imported_count"`
	SkippedCount   uint64  `json:"skipped_count"`
	ErrorCount     uint64  `json:"error_count"`
	Checkpoint     *string `json:"checkpoint"`
	LastError      *string `json:"last_error"`
	DryRun         bool    `json:"dry_run"`
	LastRunAt      string  `json:"last_run_at"`
}

type importRun struct {
	processedCount uint64
	importedCount  uint64
	skippedCount   uint64
	errorCount     uint64
	checkpoint     *string
	lastError      *string
}

type outcome int

const (
	outcomeImported outcome = iota
	outcomeSkipped
)

// Service runs import pipelines against one repo's cache and event log.
type Service struct {
	cache  *cache.Cache
	writer *eventlog.Writer
}

// NewService returns a Service backed by c and w.
func NewService(c *cache.Cache, w *eventlog.Writer) *Service {
	return &Service{cache: c, writer: w}
}

// ImportJSONL reads file line by line, resuming from the last committed
// checkpoint and skipping anything already fingerprinted.
func (s *Service) ImportJSONL(ctx context.Context, file string, since *time.Time, dryRun bool) (Summary, error) {
	sourceRef, err := normalizePath(file)
	if err != nil {
		return Summary{}, err
	}
	sourceKey := sourceKeyFor(SourceJsonl, sourceRef)
	previousCheckpoint, err := s.loadCheckpoint(ctx, sourceKey)
	if err != nil {
		return Summary{}, err
	}

	handle, err := os.Open(sourceRef)
	if err != nil {
		return Summary{}, wrapIo(err)
	}
	defer handle.Close()

	run := importRun{}
	scanner := bufio.NewScanner(handle)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		checkpoint := strconv.Itoa(lineNumber)
		run.checkpoint = &checkpoint
		if previousCheckpoint != nil && lineNumber <= *previousCheckpoint {
			continue
		}

		run.processedCount++
		var issue SourceIssue
		if err := json.Unmarshal(scanner.Bytes(), &issue); err != nil {
			run.errorCount++
			msg := fmt.Sprintf("line %d: invalid JSON: %v", lineNumber, err)
			run.lastError = &msg
			continue
		}

		out, err := s.importIssue(ctx, sourceRef, sourceKey, issue, since, dryRun)
		if err == nil {
			s.recordOutcome(&run, out)
			continue
		}
		if impErr, ok := isInvalidRecord(err); ok {
			run.errorCount++
			msg := fmt.Sprintf("line %d: %s", lineNumber, impErr.Message)
			run.lastError = &msg
			continue
		}
		msg := fmt.Sprintf("line %d: %v", lineNumber, err)
		run.lastError = &msg
		return s.finishRun(ctx, SourceJsonl, sourceRef, sourceKey, run, "failed", dryRun, err)
	}
	if err := scanner.Err(); err != nil {
		return Summary{}, wrapIo(err)
	}

	return s.finishRun(ctx, SourceJsonl, sourceRef, sourceKey, run, finalStatus(run, dryRun), dryRun, nil)
}

// ImportDolt reads every row `SELECT * FROM issues` returns (via the dolt
// CLI or, for a sql-server DSN, a typed database/sql query), applying the
// same checkpoint/fingerprint semantics as ImportJSONL.
func (s *Service) ImportDolt(ctx context.Context, repo string, since *time.Time, dryRun bool) (Summary, error) {
	sourceRef, err := normalizePath(repo)
	if err != nil {
		return Summary{}, err
	}
	if err := ensureDoltAvailable(ctx, sourceRef); err != nil {
		return Summary{}, err
	}
	sourceKey := sourceKeyFor(SourceDolt, sourceRef)
	previousCheckpoint, err := s.loadCheckpoint(ctx, sourceKey)
	if err != nil {
		return Summary{}, err
	}

	rows, err := fetchDoltRows(ctx, sourceRef)
	if err != nil {
		return Summary{}, err
	}

	run := importRun{}
	for index, raw := range rows {
		rowNumber := index + 1
		checkpoint := strconv.Itoa(rowNumber)
		run.checkpoint = &checkpoint
		if previousCheckpoint != nil && rowNumber <= *previousCheckpoint {
			continue
		}

		run.processedCount++
		issue, err := sourceIssueFromDoltRow(raw)
		if err != nil {
			run.errorCount++
			msg := fmt.Sprintf("row %d: %v", rowNumber, err)
			run.lastError = &msg
			continue
		}

		out, err := s.importIssue(ctx, sourceRef, sourceKey, issue, since, dryRun)
		if err == nil {
			s.recordOutcome(&run, out)
			continue
		}
		if impErr, ok := isInvalidRecord(err); ok {
			run.errorCount++
			msg := fmt.Sprintf("row %d: %s", rowNumber, impErr.Message)
			run.lastError = &msg
			continue
		}
		msg := fmt.Sprintf("row %d: %v", rowNumber, err)
		run.lastError = &msg
		return s.finishRun(ctx, SourceDolt, sourceRef, sourceKey, run, "failed", dryRun, err)
	}

	return s.finishRun(ctx, SourceDolt, sourceRef, sourceKey, run, finalStatus(run, dryRun), dryRun, nil)
}

// ListStatuses returns every source's last-known import status, most
// recently run first.
func (s *Service) ListStatuses(ctx context.Context) ([]cache.ImportStatus, error) {
	statuses, err := s.cache.ListImportStatuses(ctx)
	if err != nil {
		return nil, wrapDb(err)
	}
	return statuses, nil
}

func (s *Service) recordOutcome(run *importRun, out outcome) {
	switch out {
	case outcomeImported:
		run.importedCount++
	case outcomeSkipped:
		run.skippedCount++
	}
}

func finalStatus(run importRun, dryRun bool) string {
	switch {
	case dryRun:
		return "dry_run"
	case run.errorCount > 0:
		return "partial"
	default:
		return "completed"
	}
}

func (s *Service) loadCheckpoint(ctx context.Context, sourceKey string) (*int, error) {
	status, err := s.cache.GetImportState(ctx, sourceKey)
	if err != nil {
		return nil, wrapDb(err)
	}
	if status == nil || status.Checkpoint == nil {
		return nil, nil
	}
	n, err := strconv.Atoi(*status.Checkpoint)
	if err != nil {
		return nil, nil
	}
	return &n, nil
}

// importIssue projects one source record onto the knot event stream,
// deduplicating on a fingerprint derived from its identity and
// last-observed timestamp so re-running the same import is a no-op.
func (s *Service) importIssue(ctx context.Context, sourceRef, sourceKey string, issue SourceIssue, since *time.Time, dryRun bool) (outcome, error) {
	if trimmedEmpty(issue.ID) || trimmedEmpty(issue.Title) {
		return 0, invalidRecord("record requires non-empty id and title")
	}

	createdAt := firstNonEmptyTimestamp(issue.CreatedAt, issue.UpdatedAt)
	if createdAt == nil {
		now := eventlog.NowUTCRFC3339()
		createdAt = &now
	}
	updatedAt := firstNonEmptyTimestamp(issue.UpdatedAt, issue.ClosedAt, issue.CreatedAt)
	if updatedAt == nil {
		updatedAt = createdAt
	}

	updatedTS, err := time.Parse(time.RFC3339, *updatedAt)
	if err != nil {
		return 0, invalidRecord("invalid updated_at timestamp")
	}
	if since != nil && updatedTS.Before(*since) {
		return outcomeSkipped, nil
	}

	const action = "issue_upsert"
	token := cache.Fingerprint(sourceKey, issue.ID, *updatedAt, action)
	has, err := s.cache.HasFingerprint(ctx, token)
	if err != nil {
		return 0, wrapDb(err)
	}
	if has {
		recordFingerprintHit(ctx)
		return outcomeSkipped, nil
	}

	if dryRun {
		return outcomeImported, nil
	}

	state, err := mapSourceState(issue)
	if err != nil {
		return 0, wrapParseState(err)
	}
	body := mergedBody(issue)
	sourceTag := "source:" + sourceRef

	if err := s.writeFull(*createdAt, issue.ID, types.KnotCreated, map[string]any{
		"title":  issue.Title,
		"state":  state.String(),
		"body":   body,
		"source": sourceTag,
	}); err != nil {
		return 0, err
	}

	var tags []string
	for _, label := range issue.Labels {
		if err := s.writeFull(*createdAt, issue.ID, types.KnotTagAdd, map[string]any{"tag": label}); err != nil {
			return 0, err
		}
		if tag := strings.ToLower(strings.TrimSpace(label)); tag != "" {
			seen := false
			for _, t := range tags {
				if t == tag {
					seen = true
					break
				}
			}
			if !seen {
				tags = append(tags, tag)
			}
		}
	}

	for _, dependency := range issue.Dependencies {
		if dependency.DependsOnID == nil || trimmedEmpty(*dependency.DependsOnID) {
			continue
		}
		kind := mapDependencyKind(dependency.DepType)
		if err := s.writeFull(*createdAt, issue.ID, types.KnotEdgeAdd, map[string]any{
			"kind": kind,
			"dst":  *dependency.DependsOnID,
		}); err != nil {
			return 0, err
		}
		if err := s.cache.InsertEdge(ctx, issue.ID, kind, *dependency.DependsOnID); err != nil {
			return 0, wrapDb(err)
		}
	}

	if issue.CloseReason != nil && !trimmedEmpty(*issue.CloseReason) {
		if err := s.writeFull(*updatedAt, issue.ID, types.KnotCommentAdded, map[string]any{
			"comment": *issue.CloseReason,
		}); err != nil {
			return 0, err
		}
	}

	indexEventID := eventlog.NewEventID()
	indexEvent := types.IndexEvent{
		EventID:    indexEventID,
		OccurredAt: *updatedAt,
		EventType:  types.IdxKnotHead.String(),
		Data: map[string]any{
			"knot_id":    issue.ID,
			"title":      issue.Title,
			"state":      state.String(),
			"updated_at": *updatedAt,
			"terminal":   state.IsTerminal(),
		},
	}
	if _, err := s.writer.Write(types.EventRecord{Index: &indexEvent}); err != nil {
		return 0, wrapEvent(err)
	}

	if err := s.cache.UpsertKnotHot(ctx, cache.UpsertKnotHot{
		ID:           issue.ID,
		Title:        issue.Title,
		State:        state,
		UpdatedAt:    *updatedAt,
		Body:         body,
		Tags:         tags,
		WorkflowEtag: &indexEventID,
		CreatedAt:    createdAt,
	}); err != nil {
		return 0, wrapDb(err)
	}

	if err := s.cache.InsertFingerprint(ctx, token, sourceKey, issue.ID, *updatedAt, action, eventlog.NowUTCRFC3339()); err != nil {
		return 0, wrapDb(err)
	}
	return outcomeImported, nil
}

func (s *Service) writeFull(occurredAt, knotID string, kind types.FullEventKind, data map[string]any) error {
	event := types.FullEvent{
		EventID:    eventlog.NewEventID(),
		OccurredAt: occurredAt,
		KnotID:     knotID,
		EventType:  kind.String(),
		Data:       data,
	}
	if _, err := s.writer.Write(types.EventRecord{Full: &event}); err != nil {
		return wrapEvent(err)
	}
	return nil
}

func (s *Service) finishRun(ctx context.Context, kind SourceKind, sourceRef, sourceKey string, run importRun, status string, dryRun bool, result error) (Summary, error) {
	lastRunAt := eventlog.NowUTCRFC3339()
	if err := s.cache.UpsertImportState(ctx, cache.ImportStatus{
		SourceKey:      sourceKey,
		SourceType:     kind.String(),
		SourceRef:      sourceRef,
		LastRunAt:      lastRunAt,
		LastStatus:     status,
		ProcessedCount: int64(run.processedCount),
		ImportedCount:  int64(run.importedCount),
		SkippedCount:   int64(run.skippedCount),
		ErrorCount:     int64(run.errorCount),
		Checkpoint:     run.checkpoint,
		LastError:      run.lastError,
	}); err != nil {
		return Summary{}, wrapDb(err)
	}

	if result != nil {
		return Summary{}, result
	}

	return Summary{
		SourceType:     kind.String(),
		SourceRef:      sourceRef,
		Status:         status,
		ProcessedCount: run.processedCount,
		ImportedCount:  run.importedCount,
		SkippedCount:   run.skippedCount,
		ErrorCount:     run.errorCount,
		Checkpoint:     run.checkpoint,
		LastError:      run.lastError,
		DryRun:         dryRun,
		LastRunAt:      lastRunAt,
	}, nil
}

func trimmedEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}
