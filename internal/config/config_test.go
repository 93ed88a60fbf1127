package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve_EnvOverrideWins(t *testing.T) {
	root := t.TempDir()
	t.Setenv("KNOTS_REPO_ROOT", root)
	t.Setenv("KNOTS_DB_PATH", "")

	paths, err := Resolve()
	require.NoError(t, err)
	require.Equal(t, root, paths.RepoRoot)
	require.Equal(t, filepath.Join(root, ".knots"), paths.KnotsDir)
	require.Equal(t, filepath.Join(root, ".knots", "cache", "state.sqlite"), paths.DBPath)
	require.Equal(t, filepath.Join(root, ".knots", "locks", "repo.lock"), paths.LockPath)
}

func TestResolve_WalksUpToNearestKnotsDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".knots"), 0o755))
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	t.Setenv("KNOTS_REPO_ROOT", "")
	t.Setenv("KNOTS_DB_PATH", "")

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	paths, err := Resolve()
	require.NoError(t, err)
	require.Equal(t, root, paths.RepoRoot)
}

func TestResolve_DefaultsToCwdWhenNoKnotsDirFound(t *testing.T) {
	root := t.TempDir()
	t.Setenv("KNOTS_REPO_ROOT", "")
	t.Setenv("KNOTS_DB_PATH", "")

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	paths, err := Resolve()
	require.NoError(t, err)
	resolvedRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	actualRoot, err := filepath.EvalSymlinks(paths.RepoRoot)
	require.NoError(t, err)
	require.Equal(t, resolvedRoot, actualRoot)
}

func TestResolve_NoColorFromEnv(t *testing.T) {
	root := t.TempDir()
	t.Setenv("KNOTS_REPO_ROOT", root)
	t.Setenv("NO_COLOR", "1")

	paths, err := Resolve()
	require.NoError(t, err)
	require.True(t, paths.NoColor)
}
