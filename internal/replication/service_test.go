package replication

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePositiveInt(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "simple", raw: "42", want: 42},
		{name: "zero", raw: "0", want: 0},
		{name: "empty", raw: "", wantErr: true},
		{name: "non-numeric", raw: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePositiveInt(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parsePositiveInt(%q) = %d, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePositiveInt(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("parsePositiveInt(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCollectLocalEventFiles(t *testing.T) {
	repoRoot := t.TempDir()
	mustWriteFile(t, filepath.Join(repoRoot, ".knots", "events", "k-1", "knot.created", "e1.json"), "{}")
	mustWriteFile(t, filepath.Join(repoRoot, ".knots", "index", "knot.head", "e2.json"), "{}")
	mustWriteFile(t, filepath.Join(repoRoot, ".knots", "events", "k-1", "knot.created", "stray.txt"), "ignored")

	s := &Service{repoRoot: repoRoot}
	files, err := s.collectLocalEventFiles()
	if err != nil {
		t.Fatalf("collectLocalEventFiles() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("collectLocalEventFiles() = %v, want 2 json files", files)
	}
}

func TestCollectLocalEventFilesNoKnotsDir(t *testing.T) {
	s := &Service{repoRoot: t.TempDir()}
	files, err := s.collectLocalEventFiles()
	if err != nil {
		t.Fatalf("collectLocalEventFiles() error = %v", err)
	}
	if len(files) != 0 {
		t.Errorf("collectLocalEventFiles() = %v, want none", files)
	}
}

func TestCopyFilesIntoWorktree(t *testing.T) {
	repoRoot := t.TempDir()
	worktree := t.TempDir()
	relPath := filepath.Join(".knots", "events", "k-1", "knot.created", "e1.json")
	mustWriteFile(t, filepath.Join(repoRoot, relPath), `{"event_id":"e1"}`)

	s := &Service{repoRoot: repoRoot}
	copied, err := s.copyFilesIntoWorktree(worktree, []string{filepath.ToSlash(relPath)})
	if err != nil {
		t.Fatalf("copyFilesIntoWorktree() error = %v", err)
	}
	if copied != 1 {
		t.Errorf("copied = %d, want 1", copied)
	}

	if _, err := os.Stat(filepath.Join(worktree, relPath)); err != nil {
		t.Errorf("expected copied file to exist: %v", err)
	}

	// Copying the identical content again is a no-op, not a conflict.
	copied, err = s.copyFilesIntoWorktree(worktree, []string{filepath.ToSlash(relPath)})
	if err != nil {
		t.Fatalf("second copyFilesIntoWorktree() error = %v", err)
	}
	if copied != 0 {
		t.Errorf("second copy reported copied = %d, want 0", copied)
	}
}

func TestCopyFilesIntoWorktreeDetectsConflict(t *testing.T) {
	repoRoot := t.TempDir()
	worktree := t.TempDir()
	relPath := filepath.Join(".knots", "events", "k-1", "knot.created", "e1.json")
	mustWriteFile(t, filepath.Join(repoRoot, relPath), `{"event_id":"e1"}`)
	mustWriteFile(t, filepath.Join(worktree, relPath), `{"event_id":"different"}`)

	s := &Service{repoRoot: repoRoot}
	if _, err := s.copyFilesIntoWorktree(worktree, []string{filepath.ToSlash(relPath)}); err == nil {
		t.Fatal("expected a file conflict error")
	}
}

func mustWriteFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
