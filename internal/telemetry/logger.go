// Package telemetry builds the repo-scoped slog.Logger every component
// logs through, and owns the global OTel meter/tracer providers that
// internal/cache, internal/replication, and internal/importer register
// instruments against (spec.md §4.10).
package telemetry

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process-wide logger. jsonOutput selects the JSON
// handler (wired from cmd/kno's --json flag); otherwise a text handler is
// used. noColor is accepted for parity with the text handler's siblings
// elsewhere in the stack, even though slog's own handlers never emit ANSI.
func NewLogger(w io.Writer, jsonOutput bool, noColor bool) *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("KNOTS_DEBUG") != "" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Default returns a logger writing text to stderr, honoring NO_COLOR the
// same way the rest of the CLI does (spec.md §4.9's config precedence).
func Default() *slog.Logger {
	return NewLogger(os.Stderr, false, os.Getenv("NO_COLOR") != "")
}
