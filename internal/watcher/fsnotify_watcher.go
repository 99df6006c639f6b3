package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FsWatcher implements Watcher using fsnotify, adding every directory under
// the root (and every directory later created) to a single inotify/kqueue
// instance.
type FsWatcher struct {
	opts     Options
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	rootPath string

	events chan PathEvent
	errs   chan error
	stopCh chan struct{}

	mu      sync.Mutex
	stopped bool
}

func New(logger *slog.Logger, opts Options) *FsWatcher {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &FsWatcher{
		opts:   opts,
		logger: logger,
		events: make(chan PathEvent, opts.EventBufferSize),
		errs:   make(chan error, 16),
		stopCh: make(chan struct{}),
	}
}

func (w *FsWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watcher: resolve root: %w", err)
	}
	w.rootPath = absPath

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: init fsnotify: %w", err)
	}
	w.fsw = fsw

	if err := w.addRecursive(absPath); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watcher: add directories: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *FsWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *FsWatcher) handle(ev fsnotify.Event) {
	relPath, err := filepath.Rel(w.rootPath, ev.Name)
	if err != nil {
		relPath = ev.Name
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			return // directory-only events are filtered, per 4.6
		}
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.emit(PathEvent{Path: relPath, Operation: op, Timestamp: time.Now()})
}

func (w *FsWatcher) emit(ev PathEvent) {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}
	select {
	case w.events <- ev:
	default:
		w.logger.Warn("watcher event buffer full, dropping event", slog.String("path", ev.Path))
	}
}

func (w *FsWatcher) emitError(err error) {
	select {
	case w.errs <- err:
	default:
	}
}

func (w *FsWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	close(w.events)
	close(w.errs)
	return nil
}

func (w *FsWatcher) Events() <-chan PathEvent { return w.events }
func (w *FsWatcher) Errors() <-chan error     { return w.errs }
