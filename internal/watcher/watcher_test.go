package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string) (*FsWatcher, context.CancelFunc) {
	t.Helper()
	w := New(nil, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	go func() {
		close(started)
		_ = w.Start(ctx, root)
	}()
	<-started
	time.Sleep(50 * time.Millisecond) // let addRecursive finish before we mutate the tree

	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
	return w, cancel
}

func waitForEvent(t *testing.T, events <-chan PathEvent, timeout time.Duration) (PathEvent, bool) {
	t.Helper()
	select {
	case ev, ok := <-events:
		return ev, ok
	case <-time.After(timeout):
		return PathEvent{}, false
	}
}

func TestFsWatcher_EmitsCreateForNewFile(t *testing.T) {
	root := t.TempDir()
	w, _ := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package main\n"), 0o644))

	ev, ok := waitForEvent(t, w.Events(), 2*time.Second)
	require.True(t, ok, "expected a path event")
	assert.Equal(t, "a.go", ev.Path)
}

func TestFsWatcher_EmitsModifyForExistingFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package main\n"), 0o644))

	w, _ := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package main\n\nfunc f() {}\n"), 0o644))

	found := false
	for i := 0; i < 5 && !found; i++ {
		ev, ok := waitForEvent(t, w.Events(), time.Second)
		if !ok {
			break
		}
		if ev.Path == "a.go" {
			found = true
		}
	}
	assert.True(t, found, "expected an event for a.go")
}

func TestFsWatcher_EmitsDeleteForRemovedFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package main\n"), 0o644))

	w, _ := startWatcher(t, root)

	require.NoError(t, os.Remove(filepath.Join(root, "a.go")))

	found := false
	for i := 0; i < 5 && !found; i++ {
		ev, ok := waitForEvent(t, w.Events(), time.Second)
		if !ok {
			break
		}
		if ev.Path == "a.go" && ev.Operation == OpDelete {
			found = true
		}
	}
	assert.True(t, found, "expected a delete event for a.go")
}

func TestFsWatcher_FiltersDirectoryOnlyEvents(t *testing.T) {
	root := t.TempDir()
	w, _ := startWatcher(t, root)

	require.NoError(t, os.Mkdir(filepath.Join(root, "subdir"), 0o755))

	// A bare directory creation must not itself surface as a PathEvent;
	// only a subsequent file write inside it should.
	require.NoError(t, os.WriteFile(filepath.Join(root, "subdir", "b.go"), []byte("package sub\n"), 0o644))

	found := false
	for i := 0; i < 6 && !found; i++ {
		ev, ok := waitForEvent(t, w.Events(), time.Second)
		if !ok {
			break
		}
		assert.NotEqual(t, "subdir", ev.Path, "directory creation must not surface as a PathEvent")
		if ev.Path == filepath.Join("subdir", "b.go") {
			found = true
		}
	}
	assert.True(t, found, "expected an event for the nested file, not the directory itself")
}

func TestFsWatcher_StopClosesChannels(t *testing.T) {
	root := t.TempDir()
	w := New(nil, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = w.Start(ctx, root)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, w.Stop())
	<-done

	_, ok := <-w.Events()
	assert.False(t, ok, "events channel should be closed after Stop")
}
