package store

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndex_AddAndSearchFindsNearest(t *testing.T) {
	idx := NewVectorIndex(2)
	require.NoError(t, idx.Add([]int64{1, 2, 3}, [][]float32{{0, 0}, {10, 10}, {0.1, 0.1}}))

	results := idx.Search([]float32{0, 0}, 2)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
}

func TestVectorIndex_SearchPadsMissingSlotsWithSentinel(t *testing.T) {
	idx := NewVectorIndex(2)
	require.NoError(t, idx.Add([]int64{1}, [][]float32{{0, 0}}))

	results := idx.Search([]float32{0, 0}, 5)
	require.Len(t, results, 5)
	assert.Equal(t, int64(1), results[0].ID)
	for _, r := range results[1:] {
		assert.Equal(t, MissingID, r.ID)
		assert.True(t, math.IsInf(float64(r.Distance), 1))
	}
}

func TestVectorIndex_RemoveIgnoresAbsentIDs(t *testing.T) {
	idx := NewVectorIndex(2)
	require.NoError(t, idx.Add([]int64{1}, [][]float32{{1, 1}}))
	idx.Remove([]int64{999})
	assert.Equal(t, 1, idx.Len())

	idx.Remove([]int64{1})
	assert.Equal(t, 0, idx.Len())
}

func TestVectorIndex_AddReplacesExistingID(t *testing.T) {
	idx := NewVectorIndex(2)
	require.NoError(t, idx.Add([]int64{1}, [][]float32{{0, 0}}))
	require.NoError(t, idx.Add([]int64{1}, [][]float32{{5, 5}}))
	assert.Equal(t, 1, idx.Len())

	results := idx.Search([]float32{5, 5}, 1)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
}

func TestVectorIndex_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.idx")

	idx := NewVectorIndex(2)
	require.NoError(t, idx.Add([]int64{1, 2}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, idx.Save(path))

	_, err := os.Stat(path + ".meta")
	require.NoError(t, err)

	loaded := NewVectorIndex(2)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 2, loaded.Len())

	results := loaded.Search([]float32{1, 0}, 1)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ID)
}

func TestVectorIndex_AddRejectsDimensionMismatch(t *testing.T) {
	idx := NewVectorIndex(3)
	err := idx.Add([]int64{1}, [][]float32{{1, 2}})
	assert.Error(t, err)
}

func TestVectorIndex_SearchAfterDeleteStillFillsKFromSurvivors(t *testing.T) {
	idx := NewVectorIndex(2)
	require.NoError(t, idx.Add([]int64{1, 2, 3, 4}, [][]float32{{0, 0}, {1, 0}, {2, 0}, {3, 0}}))

	// Remove the two nearest neighbors to the query; two more live
	// vectors remain further out and must still fill the requested k.
	idx.Remove([]int64{1, 2})

	results := idx.Search([]float32{0, 0}, 2)
	require.Len(t, results, 2)
	assert.Equal(t, int64(3), results[0].ID)
	assert.Equal(t, int64(4), results[1].ID)
	for _, r := range results {
		assert.NotEqual(t, MissingID, r.ID)
	}
}
