// Package ui is the presentation layer: a one-shot plain-text/ANSI
// printer and an interactive TUI for indexing progress, explicitly out
// of the core's scope (spec §7).
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage represents a phase of the Indexer's LIFO event-stack run.
type Stage int

const (
	// StageScanning is the directory-walk stage (Directory/File events).
	StageScanning Stage = iota
	// StageChunking is the Object Parser stage (IndexFile/IndexObjects).
	StageChunking
	// StageContextual is the enclosing-context computation stage.
	StageContextual
	// StageEmbedding is the embedding scheduling/flush stage.
	StageEmbedding
	// StageIndexing is the FTS row and Vector Index update stage.
	StageIndexing
	// StageComplete indicates the run committed.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageChunking:
		return "Chunking"
	case StageContextual:
		return "Contextual"
	case StageEmbedding:
		return "Embedding"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage label for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageChunking:
		return "CHUNK"
	case StageContextual:
		return "CTX"
	case StageEmbedding:
		return "EMBED"
	case StageIndexing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is one progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent is a recoverable error surfaced during a run.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings tracks duration spent in each Indexer stage.
type StageTimings struct {
	Scan    time.Duration
	Chunk   time.Duration
	Context time.Duration
	Embed   time.Duration
	Index   time.Duration
}

// EmbedderInfo describes the embedding provider backing a run.
type EmbedderInfo struct {
	Backend    string
	Model      string
	Dimensions int
}

// CompletionStats is the final summary of a committed Indexer run.
type CompletionStats struct {
	Files    int
	Chunks   int
	Duration time.Duration
	Errors   int
	Warnings int
	Stages   StageTimings
	Embedder EmbedderInfo
}

// Renderer displays Indexer progress, either as plain text or as an
// interactive TUI.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures a Renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	ProjectDir string
}

// NewConfig builds a Config for output, detecting NO_COLOR.
func NewConfig(output io.Writer) Config {
	return Config{Output: output, NoColor: DetectNoColor()}
}

// NewRenderer picks a TUI renderer for interactive terminals and a
// plain renderer for pipes, CI, or when cfg.ForcePlain is set.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor reports whether NO_COLOR is set in the environment.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether the process looks like it's running in CI.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
