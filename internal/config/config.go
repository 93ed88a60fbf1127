// Package config resolves the bootstrap settings a knots invocation needs
// before it can open the cache: the repo root, the .knots directory
// beneath it, the cache db path, and the repo lock path (spec.md §6).
// Settings that only make sense once the cache exists (hot_window_days,
// sync_fetch_blob_limit_kb, sync.remote, sync.branch) are NOT resolved
// here; they live in the cache's meta table and are read through
// internal/cache once an App is open.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Paths is everything Resolve needs to hand an App.Open call.
type Paths struct {
	RepoRoot string
	KnotsDir string
	DBPath   string
	LockPath string
	NoColor  bool
}

// Resolve finds the repo root (walking up from the working directory to
// the nearest ancestor containing a .knots directory, unless overridden)
// and derives the cache/lock paths beneath it.
//
// Precedence, highest first:
//   - KNOTS_REPO_ROOT / KNOTS_DB_PATH environment variables
//   - an explicit ~/.config/knots/config.yaml or repo-local
//     .knots/config.yaml entry for repo_root/db_path
//   - walking up from the working directory for the nearest .knots dir
func Resolve() (Paths, error) {
	v := viper.New()
	v.SetEnvPrefix("knots")
	v.AutomaticEnv()
	v.BindEnv("repo_root", "KNOTS_REPO_ROOT")
	v.BindEnv("db_path", "KNOTS_DB_PATH")

	if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(home, ".config", "knots"))
		_ = v.ReadInConfig() // absent config is not an error; defaults apply
	}

	repoRoot := v.GetString("repo_root")
	if repoRoot == "" {
		found, err := findRepoRoot()
		if err != nil {
			return Paths{}, err
		}
		repoRoot = found
	}
	repoRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return Paths{}, fmt.Errorf("config: resolve repo root: %w", err)
	}

	knotsDir := filepath.Join(repoRoot, ".knots")

	localConfig := filepath.Join(knotsDir, "config.yaml")
	if _, err := os.Stat(localConfig); err == nil {
		v.SetConfigFile(localConfig)
		_ = v.MergeInConfig()
	}

	dbPath := v.GetString("db_path")
	if dbPath == "" {
		dbPath = filepath.Join(knotsDir, "cache", "state.sqlite")
	}

	noColor := os.Getenv("NO_COLOR") != ""

	return Paths{
		RepoRoot: repoRoot,
		KnotsDir: knotsDir,
		DBPath:   dbPath,
		LockPath: filepath.Join(knotsDir, "locks", "repo.lock"),
		NoColor:  noColor,
	}, nil
}

// findRepoRoot walks up from the working directory looking for the
// nearest ancestor holding a .knots directory, the way `kno` commands
// resolve which repository they're operating against.
func findRepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("config: get working directory: %w", err)
	}

	for dir := cwd; ; {
		if _, err := os.Stat(filepath.Join(dir, ".knots")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	// No .knots directory found anywhere above cwd: default to cwd itself
	// so `kno init` has somewhere to create one.
	return cwd, nil
}
