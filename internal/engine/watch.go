package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/scopestar/internal/dag"
	"github.com/leapstack-labs/scopestar/internal/loader"
)

// watchDebounce coalesces bursts of file events into one rerun.
const watchDebounce = 100 * time.Millisecond

// Watch runs paths once, then reruns the entry modules affected by every
// change to a .star file in their directories or the search path, until ctx
// is cancelled. A change to a file no run has loaded reruns every entry.
// report is called with the results of every round.
func (e *Engine) Watch(ctx context.Context, paths []string, report func([]*Result)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dirs := make(map[string]bool)
	watchDir := func(dir string) error {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		if dirs[abs] {
			return nil
		}
		dirs[abs] = true
		if err := watcher.Add(abs); err != nil {
			return fmt.Errorf("failed to watch %s: %w", abs, err)
		}
		return nil
	}
	for _, p := range paths {
		if err := watchDir(filepath.Dir(p)); err != nil {
			return err
		}
	}
	for _, dir := range e.cfg.SearchPath {
		if err := watchDir(dir); err != nil {
			return err
		}
	}

	graph := dag.New[*loader.Module]()
	round := func(entries []string) {
		results := e.RunAll(ctx, entries)
		for _, r := range results {
			if r.graph != nil {
				graph.Merge(r.graph)
			}
			// Modules loaded from outside the watched directories.
			for _, m := range r.Modules {
				if err := watchDir(filepath.Dir(m)); err != nil {
					e.logger.Warn("cannot watch module", slog.String("path", m), slog.String("error", err.Error()))
				}
			}
		}
		report(results)
	}
	round(paths)

	changed := make(map[string]bool)
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".star" {
				continue
			}
			e.logger.Debug("change detected", slog.String("file", event.Name))
			if abs, err := filepath.Abs(event.Name); err == nil {
				changed[abs] = true
			}
			debounce = time.After(watchDebounce)

		case <-debounce:
			debounce = nil
			entries := affectedEntries(graph, paths, changed)
			clear(changed)
			if len(entries) == 0 {
				e.logger.Debug("no entry module affected")
				continue
			}
			round(entries)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// affectedEntries returns the entry paths that load a changed file, or all
// of them when a changed file is not in the graph.
func affectedEntries(graph *dag.Graph[*loader.Module], paths []string, changed map[string]bool) []string {
	ids := make([]string, 0, len(changed))
	for path := range changed {
		if !graph.Has(path) {
			return paths
		}
		ids = append(ids, path)
	}

	affected := make(map[string]bool)
	for _, id := range graph.Affected(ids) {
		affected[id] = true
	}
	var entries []string
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil && affected[abs] {
			entries = append(entries, p)
		}
	}
	return entries
}
