package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestInitCommandCreatesTreeAndGitignore(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	origRepoRoot := repoRoot
	defer func() { repoRoot = origRepoRoot }()
	repoRoot = ""

	rootCmd.SetArgs([]string{"init"})

	var buf bytes.Buffer
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	err := rootCmd.Execute()

	w.Close()
	buf.ReadFrom(r)
	os.Stdout = oldStdout

	if err != nil {
		t.Fatalf("init command failed: %v", err)
	}

	for _, sub := range []string{"events", "index", "cache", "locks"} {
		if _, statErr := os.Stat(filepath.Join(tmpDir, ".knots", sub)); statErr != nil {
			t.Errorf(".knots/%s was not created: %v", sub, statErr)
		}
	}

	gitignore, err := os.ReadFile(filepath.Join(tmpDir, ".gitignore"))
	if err != nil {
		t.Fatalf("reading .gitignore: %v", err)
	}
	contents := string(gitignore)
	if !contains(contents, "/.knots/*") || !contains(contents, "!/.knots/workflows.toml") {
		t.Errorf("gitignore missing expected rules, got: %q", contents)
	}
}

func TestInitCommandIsIdempotentOnGitignore(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	origRepoRoot := repoRoot
	defer func() { repoRoot = origRepoRoot }()
	repoRoot = ""

	if err := appendGitignoreRule(tmpDir); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := appendGitignoreRule(tmpDir); err != nil {
		t.Fatalf("second append: %v", err)
	}

	gitignore, err := os.ReadFile(filepath.Join(tmpDir, ".gitignore"))
	if err != nil {
		t.Fatalf("reading .gitignore: %v", err)
	}
	if count := countOccurrences(string(gitignore), "/.knots/*"); count != 1 {
		t.Errorf("expected rule to appear once, appeared %d times", count)
	}
}

func contains(haystack, needle string) bool {
	return bytes.Contains([]byte(haystack), []byte(needle))
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
			i += len(needle) - 1
		}
	}
	return count
}
