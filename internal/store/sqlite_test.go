package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebased/codebased/internal/object"
)

func TestOpen_InMemoryAppliesMigrations(t *testing.T) {
	s, err := Open(context.Background(), "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	stats, err := s.ComputeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestInsertFile_UpsertByPath(t *testing.T) {
	s, err := Open(context.Background(), "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	err = s.Tx(ctx, func(tx *sql.Tx) error {
		require.NoError(t, InsertFile(ctx, tx, File{Path: "a.go", SizeBytes: 10, LastModifiedNS: 1, ContentDigest: "d1"}))
		require.NoError(t, InsertFile(ctx, tx, File{Path: "a.go", SizeBytes: 20, LastModifiedNS: 2, ContentDigest: "d2"}))
		return nil
	})
	require.NoError(t, err)

	err = s.Tx(ctx, func(tx *sql.Tx) error {
		f, ok, getErr := GetFile(ctx, tx, "a.go")
		require.NoError(t, getErr)
		require.True(t, ok)
		assert.Equal(t, int64(20), f.SizeBytes)
		assert.Equal(t, "d2", f.ContentDigest)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteObjectsByPath_RemovesObjectAndFTSRowsButKeepsEmbedding(t *testing.T) {
	s, err := Open(context.Background(), "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	var objID int64
	err = s.Tx(ctx, func(tx *sql.Tx) error {
		require.NoError(t, InsertFile(ctx, tx, File{Path: "a.go", SizeBytes: 1, LastModifiedNS: 1, ContentDigest: "d"}))
		id, insErr := InsertObject(ctx, tx, object.Object{Path: "a.go", Name: "f", Kind: object.KindFunction})
		require.NoError(t, insErr)
		objID = id
		require.NoError(t, InsertEmbedding(ctx, tx, Embedding{ObjectID: id, ContentHash: "h", Vector: []float32{1, 2, 3}}))
		require.NoError(t, UpsertFTSRow(ctx, tx, FTSRow{ObjectID: id, Path: "a.go", Name: "f", Content: "f"}))
		return nil
	})
	require.NoError(t, err)

	err = s.Tx(ctx, func(tx *sql.Tx) error {
		ids, delErr := DeleteObjectsByPath(ctx, tx, "a.go")
		require.NoError(t, delErr)
		assert.Equal(t, []int64{objID}, ids)
		return nil
	})
	require.NoError(t, err)

	err = s.Tx(ctx, func(tx *sql.Tx) error {
		objs, getErr := GetObjectsByIDs(ctx, tx, []int64{objID})
		require.NoError(t, getErr)
		assert.Empty(t, objs)

		// Embeddings are retained by content hash even after their
		// owning object row is gone (spec §4.5).
		_, found, embErr := LookupEmbeddingByContentHash(ctx, tx, "h")
		require.NoError(t, embErr)
		assert.True(t, found)
		return nil
	})
	require.NoError(t, err)
}

func TestInsertEmbedding_LookupByContentHashFindsReusableVector(t *testing.T) {
	s, err := Open(context.Background(), "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	vec := []float32{0.1, 0.2, 0.3}
	err = s.Tx(ctx, func(tx *sql.Tx) error {
		require.NoError(t, InsertFile(ctx, tx, File{Path: "a.go", SizeBytes: 1, LastModifiedNS: 1, ContentDigest: "d"}))
		id, insErr := InsertObject(ctx, tx, object.Object{Path: "a.go", Name: "f", Kind: object.KindFunction})
		require.NoError(t, insErr)
		return InsertEmbedding(ctx, tx, Embedding{ObjectID: id, ContentHash: "samehash", Vector: vec})
	})
	require.NoError(t, err)

	err = s.Tx(ctx, func(tx *sql.Tx) error {
		e, found, lookErr := LookupEmbeddingByContentHash(ctx, tx, "samehash")
		require.NoError(t, lookErr)
		require.True(t, found)
		assert.Equal(t, vec, e.Vector)
		return nil
	})
	require.NoError(t, err)
}

func TestObjectsNotVisited_ReturnsOnlyUnvisitedPaths(t *testing.T) {
	s, err := Open(context.Background(), "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	err = s.Tx(ctx, func(tx *sql.Tx) error {
		require.NoError(t, InsertFile(ctx, tx, File{Path: "a.go", ContentDigest: "d"}))
		require.NoError(t, InsertFile(ctx, tx, File{Path: "b.go", ContentDigest: "d"}))
		return nil
	})
	require.NoError(t, err)

	err = s.Tx(ctx, func(tx *sql.Tx) error {
		stale, staleErr := ObjectsNotVisited(ctx, tx, map[string]struct{}{"a.go": {}})
		require.NoError(t, staleErr)
		assert.Equal(t, []string{"b.go"}, stale)
		return nil
	})
	require.NoError(t, err)
}
