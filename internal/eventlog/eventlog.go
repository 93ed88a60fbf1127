// Package eventlog implements the append-only event log described in
// spec.md §4.1 and §6: deterministic, collision-checked writes of full and
// index events under a repo's .knots directory.
package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/knots/knots/internal/types"
)

// WriteError is returned by Writer.Write when an event cannot be recorded.
type WriteError struct {
	Op      string
	Path    string
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *WriteError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("eventlog: invalid %s %q: %s", e.Field, e.Value, e.Message)
	case e.Path != "":
		return fmt.Sprintf("eventlog: %s %q: %v", e.Op, e.Path, e.Err)
	default:
		return fmt.Sprintf("eventlog: %s: %v", e.Op, e.Err)
	}
}

func (e *WriteError) Unwrap() error { return e.Err }

// NewEventID returns a fresh, time-ordered event identifier.
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the process-wide random source is broken;
		// fall back to a random v4 rather than panic on a write path.
		return uuid.NewString()
	}
	return id.String()
}

// NowUTCRFC3339 returns the current time formatted the way every event
// timestamp in the log is formatted.
func NowUTCRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Writer appends events to the log rooted at RepoRoot.
type Writer struct {
	RepoRoot string
}

// NewWriter returns a Writer rooted at repoRoot.
func NewWriter(repoRoot string) *Writer {
	return &Writer{RepoRoot: repoRoot}
}

// Write validates record, derives its on-disk path, and creates the file
// with O_EXCL semantics followed by an fsync, per spec.md §4.1's
// create-new + durable-write contract.
func (w *Writer) Write(record types.EventRecord) (string, error) {
	relPath, err := RelativePathForEvent(record.Stream(), record.OccurredAt(), record.EventID(), record.EventType())
	if err != nil {
		return "", err
	}

	absPath := filepath.Join(w.RepoRoot, relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", &WriteError{Op: "mkdir", Path: filepath.Dir(absPath), Err: err}
	}

	var payload any
	if record.Index != nil {
		payload = record.Index
	} else {
		payload = record.Full
	}

	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", &WriteError{Op: "marshal", Err: err}
	}
	encoded = append(encoded, '\n')

	f, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", &WriteError{Op: "create", Path: absPath, Err: err}
	}
	defer f.Close()

	if _, err := f.Write(encoded); err != nil {
		return "", &WriteError{Op: "write", Path: absPath, Err: err}
	}
	if err := f.Sync(); err != nil {
		return "", &WriteError{Op: "fsync", Path: absPath, Err: err}
	}

	return relPath, nil
}

// RelativePathForEvent derives the repo-relative path an event with the
// given identity is filed under:
// <stream_root>/YYYY/MM/DD/<event_id>-<event_type>.json
func RelativePathForEvent(stream types.EventStream, occurredAt, eventID, eventType string) (string, error) {
	if err := validateFilenameComponent("event_id", eventID); err != nil {
		return "", err
	}
	if err := validateFilenameComponent("type", eventType); err != nil {
		return "", err
	}

	ts, err := time.Parse(time.RFC3339, occurredAt)
	if err != nil {
		return "", &WriteError{Field: "occurred_at", Value: occurredAt, Message: err.Error()}
	}
	ts = ts.UTC()

	filename := fmt.Sprintf("%s-%s.json", eventID, eventType)
	return filepath.ToSlash(filepath.Join(
		stream.RootDir(),
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
		filename,
	)), nil
}

func validateFilenameComponent(field, value string) error {
	if value == "" {
		return &WriteError{Field: field, Value: value, Message: "must not be empty"}
	}
	for _, r := range value {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.') {
			return &WriteError{Field: field, Value: value, Message: "must contain only ASCII letters, digits, '-', '_', or '.'"}
		}
	}
	return nil
}

// IsCollision reports whether err indicates the target path already exists
// (a duplicate write, which the log treats as a hard failure rather than an
// overwrite).
func IsCollision(err error) bool {
	return errors.Is(err, os.ErrExist)
}
