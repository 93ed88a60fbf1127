package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// WatchEvents is an optional, additive convenience (SPEC_FULL.md §4.11):
// it watches .knots/events and .knots/index for externally-written JSON
// files — e.g. another tool on the same machine appending events directly
// — and invokes onChange with the repo-relative path of each new file.
// Only directories that already exist when the watch starts are watched;
// a day directory created afterwards is not added, so files written into
// it are not reported. It is never on App's own write path; callers opt in explicitly, and
// cancelling ctx stops the watch and releases the underlying handle.
func (a *App) WatchEvents(ctx context.Context, onChange func(relPath string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return &Error{Kind: KindDb, Message: err.Error(), Err: err}
	}
	defer watcher.Close()

	roots := []string{
		filepath.Join(a.RepoRoot, ".knots", "events"),
		filepath.Join(a.RepoRoot, ".knots", "index"),
	}
	for _, root := range roots {
		if err := addRecursive(watcher, root); err != nil {
			return &Error{Kind: KindDb, Message: err.Error(), Err: err}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			rel, err := filepath.Rel(a.RepoRoot, event.Name)
			if err != nil {
				rel = event.Name
			}
			onChange(filepath.ToSlash(rel))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return &Error{Kind: KindDb, Message: err.Error(), Err: err}
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
