package replication

import (
	"testing"

	"github.com/knots/knots/internal/types"
)

func TestRequiredString(t *testing.T) {
	data := map[string]any{"title": "hello", "count": 3}

	if got, err := requiredString(data, "title", "e.json"); err != nil || got != "hello" {
		t.Errorf("requiredString(title) = (%q, %v), want (hello, nil)", got, err)
	}
	if _, err := requiredString(data, "missing", "e.json"); err == nil {
		t.Error("requiredString(missing) = nil error, want error")
	}
	if _, err := requiredString(data, "count", "e.json"); err == nil {
		t.Error("requiredString(count) on a non-string value = nil error, want error")
	}
}

func TestOptionalString(t *testing.T) {
	if got := optionalString("  hi  "); got == nil || *got != "hi" {
		t.Errorf("optionalString(\"  hi  \") = %v, want \"hi\"", got)
	}
	if got := optionalString("   "); got != nil {
		t.Errorf("optionalString(blank) = %v, want nil", got)
	}
	if got := optionalString(42); got != nil {
		t.Errorf("optionalString(non-string) = %v, want nil", got)
	}
}

func TestOptionalInt64(t *testing.T) {
	if got := optionalInt64(float64(7)); got == nil || *got != 7 {
		t.Errorf("optionalInt64(float64(7)) = %v, want 7", got)
	}
	if got := optionalInt64(int64(9)); got == nil || *got != 9 {
		t.Errorf("optionalInt64(int64(9)) = %v, want 9", got)
	}
	if got := optionalInt64("nope"); got != nil {
		t.Errorf("optionalInt64(string) = %v, want nil", got)
	}
}

func TestParseMetadataEntry(t *testing.T) {
	data := map[string]any{
		"entry_id":  "m-1",
		"content":   "looks good",
		"username":  "alice",
		"datetime":  "2026-07-31T00:00:00Z",
		"agentname": "reviewer",
		"model":     "claude",
		"version":   "1",
	}
	entry, err := parseMetadataEntry(data, "e.json")
	if err != nil {
		t.Fatalf("parseMetadataEntry() error = %v", err)
	}
	if entry.EntryID != "m-1" || entry.Content != "looks good" {
		t.Errorf("parseMetadataEntry() = %+v, unexpected fields", entry)
	}
}

func TestParseMetadataEntryMissingField(t *testing.T) {
	data := map[string]any{"entry_id": "m-1"}
	if _, err := parseMetadataEntry(data, "e.json"); err == nil {
		t.Fatal("expected an error for a metadata entry missing required fields")
	}
}

func TestContainsAndRemoveStr(t *testing.T) {
	list := []string{"a", "b", "c"}
	if !containsStr(list, "b") {
		t.Error("containsStr(list, \"b\") = false, want true")
	}
	if containsStr(list, "z") {
		t.Error("containsStr(list, \"z\") = true, want false")
	}

	removed := removeStr(list, "b")
	if containsStr(removed, "b") || len(removed) != 2 {
		t.Errorf("removeStr(list, \"b\") = %v, want [a c]", removed)
	}
	// The input slice must not be mutated in place.
	if len(list) != 3 {
		t.Errorf("removeStr mutated its input: %v", list)
	}
}

func TestContainsEntry(t *testing.T) {
	entries := []types.MetadataEntry{{EntryID: "m-1"}, {EntryID: "m-2"}}
	if !containsEntry(entries, "m-2") {
		t.Error("containsEntry(entries, \"m-2\") = false, want true")
	}
	if containsEntry(entries, "m-3") {
		t.Error("containsEntry(entries, \"m-3\") = true, want false")
	}
}

func TestTrimLower(t *testing.T) {
	if got := trimLower("  MiXeD Case  "); got != "mixed case" {
		t.Errorf("trimLower() = %q, want %q", got, "mixed case")
	}
}
