package gitshell

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "--initial-branch=main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "README.md")
	run("commit", "-m", "initial commit", "--no-gpg-sign")
	return dir
}

func TestAdapter_RevParseAndCurrentBranch(t *testing.T) {
	dir := initRepo(t)
	a := New(dir)
	ctx := context.Background()

	branch, err := a.CurrentBranch(ctx)
	require.NoError(t, err)
	require.Equal(t, "main", branch)

	head, err := a.RevParse(ctx, "HEAD")
	require.NoError(t, err)
	require.Len(t, head, 40)
}

func TestAdapter_StatusClean(t *testing.T) {
	dir := initRepo(t)
	a := New(dir)
	ctx := context.Background()

	clean, err := a.StatusClean(ctx)
	require.NoError(t, err)
	require.True(t, clean)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dirty.txt"), []byte("x"), 0o644))

	clean, err = a.StatusClean(ctx)
	require.NoError(t, err)
	require.False(t, clean)
}

func TestAdapter_BranchExists(t *testing.T) {
	dir := initRepo(t)
	a := New(dir)
	ctx := context.Background()

	exists, err := a.BranchExists(ctx, "main")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = a.BranchExists(ctx, "does-not-exist")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestAdapter_CommitAndAddPaths(t *testing.T) {
	dir := initRepo(t)
	a := New(dir)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "knot.json"), []byte("{}"), 0o644))
	require.NoError(t, a.AddPaths(ctx, []string{"knot.json"}))

	staged, err := a.HasStagedChanges(ctx, []string{"knot.json"})
	require.NoError(t, err)
	require.True(t, staged)

	sha, err := a.Commit(ctx, "add knot.json")
	require.NoError(t, err)
	require.Len(t, sha, 40)

	staged, err = a.HasStagedChanges(ctx, []string{"knot.json"})
	require.NoError(t, err)
	require.False(t, staged)
}

func TestAdapter_RevParseUnknownRevFails(t *testing.T) {
	dir := initRepo(t)
	a := New(dir)

	_, err := a.RevParse(context.Background(), "refs/heads/does-not-exist")
	require.Error(t, err)

	var gitErr *Error
	require.ErrorAs(t, err, &gitErr)
	require.NotEmpty(t, gitErr.Stderr)
}

func TestAdapter_WorktreeAddNewBranch(t *testing.T) {
	dir := initRepo(t)
	a := New(dir)
	ctx := context.Background()

	worktreeDir := filepath.Join(t.TempDir(), "wt")
	require.NoError(t, a.WorktreeAddNewBranch(ctx, worktreeDir, "knots-sync"))

	wtAdapter := New(worktreeDir)
	branch, err := wtAdapter.CurrentBranch(ctx)
	require.NoError(t, err)
	require.Equal(t, "knots-sync", branch)
}
