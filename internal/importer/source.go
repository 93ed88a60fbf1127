package importer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/knots/knots/internal/types"
)

// SourceKind names one of the two backends an import run can read from.
type SourceKind string

const (
	SourceJsonl SourceKind = "jsonl"
	SourceDolt  SourceKind = "dolt"
)

func (k SourceKind) String() string { return string(k) }

// SourceDependency is one edge a source issue declares to another.
type SourceDependency struct {
	DependsOnID *string `json:"depends_on_id,omitempty"`
	DepType     *string `json:"type,omitempty"`
}

// SourceMetadataEntry mirrors one structured note/handoff-capsule entry as
// external sources emit it.
type SourceMetadataEntry struct {
	EntryID   *string `json:"entry_id,omitempty"`
	Content   *string `json:"content,omitempty"`
	Username  *string `json:"username,omitempty"`
	Datetime  *string `json:"datetime,omitempty"`
	Agentname *string `json:"agentname,omitempty"`
	Model     *string `json:"model,omitempty"`
	Version   *string `json:"version,omitempty"`
}

// SourceNotesField is the untagged union older sources (a free-text blob)
// and newer sources (a list of structured entries) both use for "notes".
type SourceNotesField struct {
	Text    *string
	Entries []SourceMetadataEntry
}

func (f *SourceNotesField) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		f.Text = &text
		return nil
	}
	var entries []SourceMetadataEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	f.Entries = entries
	return nil
}

// SourceIssue is the external record shape an import source row/line
// deserializes into before being projected onto knot events.
type SourceIssue struct {
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	ProfileID       *string               `json:"profile_id,omitempty"`
	WorkflowID      *string               `json:"workflow_id,omitempty"`
	Description     *string               `json:"description,omitempty"`
	Body            *string               `json:"body,omitempty"`
	Notes           *SourceNotesField     `json:"notes,omitempty"`
	HandoffCapsules []SourceMetadataEntry `json:"handoff_capsules,omitempty"`
	State           *string               `json:"state,omitempty"`
	Status          *string               `json:"status,omitempty"`
	Priority        *int64                `json:"priority,omitempty"`
	Owner           *string               `json:"owner,omitempty"`
	CreatedBy       *string               `json:"created_by,omitempty"`
	IssueType       *string               `json:"issue_type,omitempty"`
	TypeName        *string               `json:"type,omitempty"`
	Labels          []string              `json:"labels,omitempty"`
	Tags            []string              `json:"tags,omitempty"`
	Dependencies    []SourceDependency    `json:"dependencies,omitempty"`
	CreatedAt       *string               `json:"created_at,omitempty"`
	UpdatedAt       *string               `json:"updated_at,omitempty"`
	ClosedAt        *string               `json:"closed_at,omitempty"`
	CloseReason     *string               `json:"close_reason,omitempty"`
}

// normalizePath resolves raw to an absolute path, canonicalizing it through
// the filesystem when it already exists (matching the original's
// "resolve symlinks for paths we can actually see" behavior).
func normalizePath(raw string) (string, error) {
	path := raw
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", wrapIo(err)
		}
		path = filepath.Join(cwd, path)
	}
	if _, err := os.Stat(path); err == nil {
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			return resolved, nil
		}
	}
	return path, nil
}

func sourceKeyFor(kind SourceKind, sourceRef string) string {
	return kind.String() + ":" + sourceRef
}

// parseTimestamp normalizes raw to RFC3339, returning nil if raw is absent,
// blank, or not parseable.
func parseTimestamp(raw *string) *string {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil
	}
	formatted := ts.UTC().Format(time.RFC3339)
	return &formatted
}

func firstNonEmptyTimestamp(candidates ...*string) *string {
	for _, c := range candidates {
		if ts := parseTimestamp(c); ts != nil {
			return ts
		}
	}
	return nil
}

// ParseSince resolves a --since flag value to a cutoff instant. RFC3339 is
// tried first; anything else is handed to a natural-language parser so
// flags like "--since yesterday" or "--since 2 weeks ago" work too.
func ParseSince(raw string) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &ts, nil
	}

	parser := when.New(nil)
	parser.Add(en.All...)
	parser.Add(common.All...)
	result, err := parser.Parse(trimmed, time.Now().UTC())
	if err != nil || result == nil {
		return nil, invalidTimestamp(raw)
	}
	return &result.Time, nil
}

func mapSourceState(issue SourceIssue) (types.KnotState, error) {
	if issue.State != nil {
		state, err := types.ParseKnotState(*issue.State)
		if err != nil {
			return "", err
		}
		return state, nil
	}

	status := ""
	if issue.Status != nil {
		status = strings.ToLower(strings.TrimSpace(*issue.Status))
	}
	switch status {
	case "closed":
		return types.StateShipped, nil
	case "deferred":
		return types.StateDeferred, nil
	case "in_progress", "in-progress":
		return types.StateImplementation, nil
	case "blocked", "open":
		return types.StateReadyForImplementation, nil
	default:
		return types.StateReadyForImplementation, nil
	}
}

func mapDependencyKind(depType *string) string {
	value := ""
	if depType != nil {
		value = strings.ToLower(strings.TrimSpace(*depType))
	}
	switch value {
	case "parent-child":
		return "parent_of"
	case "blocks":
		return "blocked_by"
	case "related":
		return "related"
	default:
		return "blocked_by"
	}
}

func mergedBody(issue SourceIssue) *string {
	var parts []string
	for _, item := range []*string{issue.Description, issue.Body} {
		if item == nil {
			continue
		}
		trimmed := strings.TrimSpace(*item)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, "\n\n")
	return &joined
}
