// Package worker implements the Background Worker (spec §4.7): it
// drains the Watcher's path-event queue, debounces bursts of changes,
// filters out paths the Indexer should never see, and drives the
// Indexer in incremental mode.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/codebased/codebased/internal/ignore"
	"github.com/codebased/codebased/internal/indexer"
	"github.com/codebased/codebased/internal/watcher"
)

const (
	// DebounceWindow is how long the worker keeps draining additional
	// events after the first one, before running the Indexer.
	DebounceWindow = 100 * time.Millisecond

	// ReadTimeout bounds each individual read during the debounce
	// window: if nothing new arrives within this long, the window ends.
	ReadTimeout = 100 * time.Millisecond
)

// Indexer is the subset of *indexer.Indexer the worker drives.
type Indexer interface {
	Run(ctx context.Context, paths []string, mode indexer.Mode) error
}

// Config wires a Worker's collaborators.
type Config struct {
	PrivateDirName string
	VCSMarkerName  string
	Oracle         *ignore.Oracle
	Indexer        Indexer
	Logger         *slog.Logger
}

// Worker consumes watcher.PathEvents, debounces them, and incrementally
// reindexes. It runs on its own goroutine via Run.
type Worker struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{cfg: cfg, logger: logger}
}

// Run blocks, consuming events from the channel until it is closed (Run
// returns nil) or ctx is cancelled (Run returns ctx.Err()).
func (w *Worker) Run(ctx context.Context, events <-chan watcher.PathEvent) error {
	for {
		ev, ok := w.next(ctx, events)
		if !ok {
			return ctx.Err()
		}
		if !ev.valid {
			return nil // channel closed: shutdown
		}

		paths := w.collectBatch(ctx, events, ev.event)
		paths = w.filter(paths)
		if len(paths) == 0 {
			continue
		}

		if err := w.cfg.Indexer.Run(ctx, paths, indexer.ModeIncremental); err != nil {
			w.logger.Error("background reindex failed", slog.Any("error", err), slog.Int("paths", len(paths)))
		}
	}
}

type nextResult struct {
	event watcher.PathEvent
	valid bool
}

// next blocks for exactly one event (no timeout: the worker is idle
// until the watcher produces something or the channel closes).
func (w *Worker) next(ctx context.Context, events <-chan watcher.PathEvent) (nextResult, bool) {
	select {
	case <-ctx.Done():
		return nextResult{}, false
	case ev, ok := <-events:
		if !ok {
			return nextResult{}, true
		}
		return nextResult{event: ev, valid: true}, true
	}
}

// collectBatch drains additional events for DebounceWindow, each read
// bounded by ReadTimeout, accumulating the set of distinct paths.
func (w *Worker) collectBatch(ctx context.Context, events <-chan watcher.PathEvent, first watcher.PathEvent) []string {
	seen := map[string]struct{}{first.Path: {}}
	paths := []string{first.Path}

	deadline := time.NewTimer(DebounceWindow)
	defer deadline.Stop()

	for {
		timeout := time.NewTimer(ReadTimeout)
		select {
		case <-ctx.Done():
			timeout.Stop()
			return paths
		case <-deadline.C:
			timeout.Stop()
			return paths
		case <-timeout.C:
			return paths
		case ev, ok := <-events:
			timeout.Stop()
			if !ok {
				return paths
			}
			if _, dup := seen[ev.Path]; !dup {
				seen[ev.Path] = struct{}{}
				paths = append(paths, ev.Path)
			}
		}
	}
}

// filter drops paths inside the private directory, the VCS marker, or
// matched by the ignore oracle.
func (w *Worker) filter(paths []string) []string {
	out := paths[:0]
	for _, p := range paths {
		if w.cfg.PrivateDirName != "" && (p == w.cfg.PrivateDirName || hasDirPrefix(p, w.cfg.PrivateDirName)) {
			continue
		}
		if w.cfg.VCSMarkerName != "" && (p == w.cfg.VCSMarkerName || hasDirPrefix(p, w.cfg.VCSMarkerName)) {
			continue
		}
		if w.cfg.Oracle != nil && w.cfg.Oracle.Ignored(p, false) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func hasDirPrefix(path, dir string) bool {
	return len(path) > len(dir) && path[:len(dir)] == dir && path[len(dir)] == '/'
}
