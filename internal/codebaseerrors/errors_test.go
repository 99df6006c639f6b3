package codebaseerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodebasedError_ErrorString(t *testing.T) {
	err := BadFile("a-directory/code.py", fmt.Errorf("hash mismatch"))
	assert.Contains(t, err.Error(), "bad_file")
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestCodebasedError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := EmbeddingProviderFailure(cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestCodebasedError_IsMatchesByKind(t *testing.T) {
	err := NotFound("object", "42")
	require.True(t, errors.Is(err, &CodebasedError{Kind: KindNotFound}))
	require.False(t, errors.Is(err, &CodebasedError{Kind: KindBadFile}))
}

func TestOf(t *testing.T) {
	wrapped := fmt.Errorf("wrapping: %w", MigrationFailure(3, fmt.Errorf("syntax error")))
	kind, ok := Of(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindMigrationFailure, kind)

	_, ok = Of(fmt.Errorf("plain"))
	assert.False(t, ok)
}
