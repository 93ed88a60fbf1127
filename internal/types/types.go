// Package types holds the data model shared across the knots engine: knots,
// their metadata entries, edges, and the event envelopes that carry mutations
// through the append-only log.
package types

import (
	"strings"
	"time"
)

// MetadataEntry is a single attributed note, comment, or handoff capsule
// attached to a knot.
type MetadataEntry struct {
	EntryID   string `json:"entry_id"`
	Content   string `json:"content"`
	Username  string `json:"username"`
	DateTime  string `json:"datetime"`
	AgentName string `json:"agentname"`
	Model     string `json:"model"`
	Version   string `json:"version"`
}

// MetadataEntryInput is the caller-supplied subset of a MetadataEntry; unset
// fields are normalized to "unknown" (or the fallback timestamp) when the
// entry is constructed.
type MetadataEntryInput struct {
	Content   string
	Username  string
	DateTime  string
	AgentName string
	Model     string
	Version   string
}

func normalizeText(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func normalizeDateTime(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return "", false
	}
	return parsed.UTC().Format(time.RFC3339), true
}

// NewMetadataEntry builds a MetadataEntry from input, generating a fresh
// entry id and falling back to fallbackDateTime when input.DateTime is
// empty or unparseable.
func NewMetadataEntry(newID func() string, input MetadataEntryInput, fallbackDateTime string) MetadataEntry {
	dateTime := fallbackDateTime
	if parsed, ok := normalizeDateTime(input.DateTime); ok {
		dateTime = parsed
	}
	return MetadataEntry{
		EntryID:   newID(),
		Content:   strings.TrimSpace(input.Content),
		Username:  normalizeText(input.Username, "unknown"),
		DateTime:  dateTime,
		AgentName: normalizeText(input.AgentName, "unknown"),
		Model:     normalizeText(input.Model, "unknown"),
		Version:   normalizeText(input.Version, "unknown"),
	}
}

// Edge is a directed, typed relationship between two knots (e.g.
// parent_of, blocks, depends_on).
type Edge struct {
	Src  string `json:"src"`
	Kind string `json:"kind"`
	Dst  string `json:"dst"`
}

// EdgeDirection selects which side of an edge a query matches on.
type EdgeDirection int

const (
	EdgeIncoming EdgeDirection = iota
	EdgeOutgoing
	EdgeBoth
)

// Knot is the cache's materialized view of a knot: the projection of its
// event stream as of the most recently applied idx.knot_head event.
type Knot struct {
	ID               string
	Title            string
	State            KnotState
	UpdatedAt        string
	Body             *string
	Description      *string
	Priority         *int64
	KnotType         *string
	Tags             []string
	Notes            []MetadataEntry
	HandoffCapsules  []MetadataEntry
	WorkflowEtag     *string
	CreatedAt        *string
	ProfileID        *string
	HierarchicalAlias string
}
