package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebased/codebased/internal/ignore"
	"github.com/codebased/codebased/internal/indexer"
	"github.com/codebased/codebased/internal/watcher"
)

type recordingIndexer struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recordingIndexer) Run(_ context.Context, paths []string, _ indexer.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := append([]string(nil), paths...)
	r.calls = append(r.calls, cp)
	return nil
}

func (r *recordingIndexer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingIndexer) lastCall() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func newTestOracle(t *testing.T) *ignore.Oracle {
	t.Helper()
	oracle, err := ignore.NewOracle("/nonexistent/ignorefile", ".codebased")
	require.NoError(t, err)
	return oracle
}

func TestWorker_DebouncesBurstIntoOneIndexerRun(t *testing.T) {
	idx := &recordingIndexer{}
	w := New(Config{PrivateDirName: ".codebased", VCSMarkerName: ".git", Oracle: newTestOracle(t), Indexer: idx})

	events := make(chan watcher.PathEvent, 8)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx, events)
		close(done)
	}()

	events <- watcher.PathEvent{Path: "a.go", Operation: watcher.OpModify, Timestamp: time.Now()}
	events <- watcher.PathEvent{Path: "b.go", Operation: watcher.OpModify, Timestamp: time.Now()}

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, idx.callCount())
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, idx.lastCall())

	cancel()
	<-done
}

func TestWorker_FiltersPrivateDirAndVCSMarker(t *testing.T) {
	idx := &recordingIndexer{}
	w := New(Config{PrivateDirName: ".codebased", VCSMarkerName: ".git", Oracle: newTestOracle(t), Indexer: idx})

	events := make(chan watcher.PathEvent, 8)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx, events)
		close(done)
	}()

	events <- watcher.PathEvent{Path: ".codebased/db.sqlite", Operation: watcher.OpModify, Timestamp: time.Now()}
	events <- watcher.PathEvent{Path: ".git/HEAD", Operation: watcher.OpModify, Timestamp: time.Now()}

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 0, idx.callCount(), "both events should have been filtered, no indexer run")

	cancel()
	<-done
}

func TestWorker_DedupesRepeatedPathWithinDebounceWindow(t *testing.T) {
	idx := &recordingIndexer{}
	w := New(Config{PrivateDirName: ".codebased", VCSMarkerName: ".git", Oracle: newTestOracle(t), Indexer: idx})

	events := make(chan watcher.PathEvent, 8)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx, events)
		close(done)
	}()

	events <- watcher.PathEvent{Path: "a.go", Operation: watcher.OpModify, Timestamp: time.Now()}
	events <- watcher.PathEvent{Path: "a.go", Operation: watcher.OpModify, Timestamp: time.Now()}

	time.Sleep(250 * time.Millisecond)
	require.Equal(t, 1, idx.callCount())
	assert.Equal(t, []string{"a.go"}, idx.lastCall())

	cancel()
	<-done
}

func TestWorker_ExitsCleanlyWhenChannelCloses(t *testing.T) {
	idx := &recordingIndexer{}
	w := New(Config{PrivateDirName: ".codebased", VCSMarkerName: ".git", Oracle: newTestOracle(t), Indexer: idx})

	events := make(chan watcher.PathEvent)
	close(events)

	err := w.Run(context.Background(), events)
	assert.NoError(t, err)
}

func TestWorker_ExitsOnContextCancellation(t *testing.T) {
	idx := &recordingIndexer{}
	w := New(Config{PrivateDirName: ".codebased", VCSMarkerName: ".git", Oracle: newTestOracle(t), Indexer: idx})

	events := make(chan watcher.PathEvent)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Run(ctx, events)
	assert.ErrorIs(t, err, context.Canceled)
}
