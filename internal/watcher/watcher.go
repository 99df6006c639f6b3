// Package watcher emits raw filesystem path events for a repository root.
//
// Per the component design, the Watcher itself does no filtering or
// debouncing: it watches recursively, drops directory-only events, and
// enqueues the single affected path for create/modify/delete. Moves enqueue
// both the source and destination path. Filtering (private directory, .git,
// ignore oracle) and debouncing are the Background Worker's job.
package watcher

import (
	"context"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// PathEvent is a single path-change notification.
type PathEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Watcher watches a repository root recursively and emits PathEvents.
type Watcher interface {
	// Start begins watching path. Blocks processing events into the
	// Events channel until the context is cancelled or Stop is called.
	Start(ctx context.Context, path string) error

	// Stop releases the underlying OS watch handles. Safe to call more
	// than once.
	Stop() error

	// Events is closed when the watcher stops.
	Events() <-chan PathEvent

	// Errors carries non-fatal watcher errors; the watcher keeps running.
	Errors() <-chan error
}

// Options configures a Watcher.
type Options struct {
	// EventBufferSize bounds the Events channel. The watcher never blocks
	// producers indefinitely: see spec.md 4.6, "unbounded queue" is
	// approximated here with a generous buffer; when it is full, the
	// incoming event is dropped and logged at Warn, rather than the queue
	// growing without bound.
	EventBufferSize int
}

func DefaultOptions() Options {
	return Options{EventBufferSize: 4096}
}

func (o Options) WithDefaults() Options {
	if o.EventBufferSize == 0 {
		o.EventBufferSize = DefaultOptions().EventBufferSize
	}
	return o
}
