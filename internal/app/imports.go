package app

import (
	"context"
	"time"

	"github.com/knots/knots/internal/cache"
	"github.com/knots/knots/internal/importer"
)

// ImportJSONL implements spec.md §4.8's jsonl import pipeline.
func (a *App) ImportJSONL(ctx context.Context, file string, since *time.Time, dryRun bool) (importer.Summary, error) {
	svc := importer.NewService(a.Cache, a.Writer)
	summary, err := svc.ImportJSONL(ctx, file, since, dryRun)
	if err != nil {
		return importer.Summary{}, wrapImport(err)
	}
	return summary, nil
}

// ImportDolt implements spec.md §4.8's dolt import pipeline.
func (a *App) ImportDolt(ctx context.Context, repo string, since *time.Time, dryRun bool) (importer.Summary, error) {
	svc := importer.NewService(a.Cache, a.Writer)
	summary, err := svc.ImportDolt(ctx, repo, since, dryRun)
	if err != nil {
		return importer.Summary{}, wrapImport(err)
	}
	return summary, nil
}

// ImportStatuses implements spec.md §4.8's list_statuses.
func (a *App) ImportStatuses(ctx context.Context) ([]cache.ImportStatus, error) {
	svc := importer.NewService(a.Cache, a.Writer)
	statuses, err := svc.ListStatuses(ctx)
	if err != nil {
		return nil, wrapImport(err)
	}
	return statuses, nil
}
