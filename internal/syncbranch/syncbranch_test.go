package syncbranch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knots/knots/internal/gitshell"
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

func TestEnsureExists_CreatesNewBranchAndWorktree(t *testing.T) {
	repoRoot := initRepo(t)
	wt := New(repoRoot)

	require.NoError(t, wt.EnsureExists(context.Background()))
	require.Equal(t, filepath.Join(repoRoot, ".knots", "_worktree"), wt.Path())

	branch, err := gitshell.New(wt.Path()).CurrentBranch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "knots", branch)
}

func TestEnsureExists_IsIdempotent(t *testing.T) {
	repoRoot := initRepo(t)
	wt := New(repoRoot)
	ctx := context.Background()

	require.NoError(t, wt.EnsureExists(ctx))
	require.NoError(t, wt.EnsureExists(ctx))
}

func TestEnsureClean_DetectsDirtyWorktree(t *testing.T) {
	repoRoot := initRepo(t)
	wt := New(repoRoot)
	ctx := context.Background()
	require.NoError(t, wt.EnsureExists(ctx))

	require.NoError(t, wt.EnsureClean(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(wt.Path(), "dirty.txt"), []byte("x"), 0o644))

	err := wt.EnsureClean(ctx)
	require.Error(t, err)
	require.True(t, IsDirtyWorktree(err))
}
