// Package lock enforces the Non-goal "assumes a single process owns the
// index files at a time" as an actual advisory file lock, rather than a
// documented assumption nobody checks.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// WriterLock guards exclusive ownership of a repository's private
// directory for as long as it is held: the CLI acquires it when it opens
// a session and releases it when the session is cleaned up.
type WriterLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a writer lock at path (typically Repo.LockPath()).
func New(path string) *WriterLock {
	return &WriterLock{path: path, flock: flock.New(path)}
}

// TryLock attempts to acquire the lock without blocking. A false return
// with a nil error means another process currently owns the index files.
func (l *WriterLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("lock: create directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("lock: acquire: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked WriterLock.
func (l *WriterLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	return l.flock.Unlock()
}
