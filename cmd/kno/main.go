// Command kno is the CLI dispatcher for the knots engine. Per spec.md §1's
// Non-goals, the dispatcher itself is out of scope for this specification:
// every command body is a thin pass-through to internal/app, with this file
// owning only flag parsing, JSON/exit-code mapping, and the telemetry
// logger every command shares (spec.md §6, §4.10).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/knots/knots/internal/app"
	"github.com/knots/knots/internal/config"
	"github.com/knots/knots/internal/importer"
	"github.com/knots/knots/internal/telemetry"
)

var (
	jsonOutput bool
	dbPathFlag string
	repoRoot   string

	logger            *slog.Logger
	telemetryShutdown telemetry.ShutdownFunc
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "kno",
	Short:         "kno - a local-first, git-backed issue tracker",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = telemetry.NewLogger(os.Stderr, jsonOutput, os.Getenv("NO_COLOR") != "")
		if shutdown, err := telemetry.Init(cmd.Context()); err == nil {
			telemetryShutdown = shutdown
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if telemetryShutdown != nil {
			return telemetryShutdown(context.Background())
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "override the cache db path (default: KNOTS_DB_PATH or .knots/cache/state.sqlite)")
	rootCmd.PersistentFlags().StringVar(&repoRoot, "repo-root", "", "override the repo root (default: KNOTS_REPO_ROOT or walk-up from cwd)")

	rootCmd.AddCommand(initCmd, createCmd, showCmd, listCmd, treeCmd, setStateCmd, updateCmd,
		edgeCmd, syncCmd, pushCmd, pullCmd, importCmd)
}

// openApp resolves config.Paths (honoring --repo-root/--db-path overrides)
// and opens the application core for the lifetime of one command.
func openApp(ctx context.Context) (*app.App, error) {
	if repoRoot != "" {
		os.Setenv("KNOTS_REPO_ROOT", repoRoot)
	}
	if dbPathFlag != "" {
		os.Setenv("KNOTS_DB_PATH", dbPathFlag)
	}
	paths, err := config.Resolve()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, paths.RepoRoot, paths.DBPath)
}

// printResult renders v as pretty JSON when --json is set, otherwise via
// fmt's %+v verb — command bodies stay free of presentation logic.
func printResult(v any) error {
	if jsonOutput {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	fmt.Printf("%+v\n", v)
	return nil
}

// exitCode maps the closed error taxonomies (app.Error, importer.Error, and
// anything else) onto spec.md §6's exit codes: 0 on success, 1 on any
// reported error. The single non-trivial job here is logging the error
// through the shared structured logger before cobra's Execute propagates
// it to main's os.Exit(1).
func exitCode(err error) error {
	if err == nil {
		return nil
	}

	var appErr *app.Error
	var impErr *importer.Error
	switch {
	case errors.As(err, &appErr):
		logger.Error("command failed", "kind", string(appErr.Kind), "error", appErr.Error())
	case errors.As(err, &impErr):
		logger.Error("command failed", "kind", string(impErr.Kind), "error", impErr.Error())
	default:
		logger.Error("command failed", "error", err.Error())
	}

	fmt.Fprintln(os.Stderr, err.Error())
	return err
}
