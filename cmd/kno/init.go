package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "initialize a .knots/ tree in the current (or --repo-root) directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		root := repoRoot
		if root == "" {
			var err error
			root, err = os.Getwd()
			if err != nil {
				return exitCode(err)
			}
		}

		knotsDir := filepath.Join(root, ".knots")
		for _, sub := range []string{"events", "index", "cache", "locks"} {
			if err := os.MkdirAll(filepath.Join(knotsDir, sub), 0o755); err != nil {
				return exitCode(err)
			}
		}

		if err := appendGitignoreRule(root); err != nil {
			return exitCode(err)
		}

		return printResult(map[string]string{"repo_root": root, "knots_dir": knotsDir})
	},
}

// appendGitignoreRule implements spec.md §6's .gitignore contract: the
// initializer appends `/.knots/*` and `!/.knots/workflows.toml` so the
// workflow definition is versioned but everything else stays local.
func appendGitignoreRule(root string) error {
	const rule = "/.knots/*\n!/.knots/workflows.toml\n"
	path := filepath.Join(root, ".gitignore")

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if strings.Contains(string(existing), "/.knots/*") {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(rule)
	return err
}
