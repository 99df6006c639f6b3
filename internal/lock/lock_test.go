package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLock_SecondAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")

	a := New(path)
	ok, err := a.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = a.Unlock() }()

	b := New(path)
	ok, err = b.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriterLock_UnlockAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")

	a := New(path)
	ok, err := a.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, a.Unlock())

	b := New(path)
	ok, err = b.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	_ = b.Unlock()
}
