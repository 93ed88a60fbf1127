package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/knots/knots/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "ingest external issue sources into the event log and cache",
}

var importJSONLCmd = &cobra.Command{
	Use:   "jsonl <file>",
	Short: "import a JSONL issue export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		since, dryRun, err := importFlags(cmd)
		if err != nil {
			return exitCode(err)
		}

		summary, err := a.ImportJSONL(cmd.Context(), args[0], since, dryRun)
		if err != nil {
			return exitCode(err)
		}
		return printResult(summary)
	},
}

var importDoltCmd = &cobra.Command{
	Use:   "dolt <repo-or-dsn>",
	Short: "import from a dolt database directory or sql-server DSN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		since, dryRun, err := importFlags(cmd)
		if err != nil {
			return exitCode(err)
		}

		summary, err := a.ImportDolt(cmd.Context(), args[0], since, dryRun)
		if err != nil {
			return exitCode(err)
		}
		return printResult(summary)
	},
}

var importStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "show the last-known status of every import source",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		statuses, err := a.ImportStatuses(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		return printResult(statuses)
	},
}

// importFlags resolves --since (RFC3339 or natural language, per
// importer.ParseSince) and --dry-run for both import subcommands.
func importFlags(cmd *cobra.Command) (*time.Time, bool, error) {
	raw, _ := cmd.Flags().GetString("since")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	since, err := importer.ParseSince(raw)
	if err != nil {
		return nil, false, err
	}
	return since, dryRun, nil
}

func init() {
	for _, c := range []*cobra.Command{importJSONLCmd, importDoltCmd} {
		c.Flags().String("since", "", "RFC3339 timestamp or natural-language date (e.g. \"yesterday\"); skips records updated before it")
		c.Flags().Bool("dry-run", false, "compute what would be imported without writing events")
	}
	importCmd.AddCommand(importJSONLCmd, importDoltCmd, importStatusCmd)
}
