package store

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MissingID is the sentinel external id returned by Search for slots with
// no match (spec §4.4).
const MissingID int64 = -1

// VectorResult is one row of a Search response.
type VectorResult struct {
	ID       int64
	Distance float32
}

// VectorIndex is the in-memory (object_id -> vector) L2 flat index (spec
// §4.4): an exact, brute-force nearest-neighbor structure, not an
// approximate graph, so that rankings are stable and reproducible across
// cache reuse (spec §1). It mirrors the ground-truth implementation's
// faiss.IndexFlatL2 wrapped in IndexIDMap2 — object ids are the external
// id space directly, with no internal key remapping layer.
type VectorIndex struct {
	mu      sync.RWMutex
	vectors map[int64][]float32
	dim     int
	closed  bool
}

type vectorMetadata struct {
	Dim int
}

// NewVectorIndex constructs an empty L2 flat index for vectors of
// dimension dim.
func NewVectorIndex(dim int) *VectorIndex {
	return &VectorIndex{
		vectors: make(map[int64][]float32),
		dim:     dim,
	}
}

// Add inserts or replaces vectors for ids. len(ids) must equal
// len(vectors), and every vector must have length dim.
func (v *VectorIndex) Add(ids []int64, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("vector index: ids/vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return fmt.Errorf("vector index: closed")
	}

	for _, vec := range vectors {
		if len(vec) != v.dim {
			return fmt.Errorf("vector index: expected dim %d, got %d", v.dim, len(vec))
		}
	}

	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		v.vectors[id] = vec
	}
	return nil
}

// Remove deletes ids from the index, silently ignoring absent ids.
func (v *VectorIndex) Remove(ids []int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	for _, id := range ids {
		delete(v.vectors, id)
	}
}

// Search returns the k nearest neighbors to query by squared Euclidean
// distance, computed by an exhaustive scan over every live vector (spec
// §4.4's flat index has no approximate shortcut). Missing slots (fewer
// than k live vectors) are padded with the sentinel id -1 and +Inf
// distance. Ties break on ascending id for deterministic ranking.
func (v *VectorIndex) Search(query []float32, k int) []VectorResult {
	v.mu.RLock()
	defer v.mu.RUnlock()

	results := make([]VectorResult, 0, len(v.vectors))
	if !v.closed {
		for id, vec := range v.vectors {
			results = append(results, VectorResult{ID: id, Distance: squaredL2(query, vec)})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}
	for len(results) < k {
		results = append(results, VectorResult{ID: MissingID, Distance: float32(math.Inf(1))})
	}
	return results
}

func squaredL2(a, b []float32) float32 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}

// Len returns the number of live vectors.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.vectors)
}

// Save persists the index as a snapshot pair (path holds the vectors,
// path+".meta" holds the dimension), written atomically via temp file +
// rename.
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return fmt.Errorf("vector index: closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("vector index: create directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("vector index: create snapshot: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(v.vectors); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("vector index: encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("vector index: close snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("vector index: rename snapshot: %w", err)
	}

	return v.saveMetadata(path + ".meta")
}

func (v *VectorIndex) saveMetadata(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("vector index: create metadata: %w", err)
	}
	meta := vectorMetadata{Dim: v.dim}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("vector index: encode metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("vector index: close metadata: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load replaces the index's contents with the snapshot at path. The
// index is rebuilt from scratch by the caller (not Load) when the file
// is absent or a rebuild is requested; Load itself is a straight
// round-trip of a previously Saved snapshot.
func (v *VectorIndex) Load(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return fmt.Errorf("vector index: closed")
	}

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("vector index: open metadata: %w", err)
	}
	defer func() { _ = metaFile.Close() }()

	var meta vectorMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("vector index: decode metadata: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("vector index: open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	var vectors map[int64][]float32
	if err := gob.NewDecoder(f).Decode(&vectors); err != nil {
		return fmt.Errorf("vector index: decode snapshot: %w", err)
	}

	v.vectors = vectors
	v.dim = meta.Dim
	return nil
}

// Close releases the index. A closed index rejects further mutation.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.vectors = nil
	return nil
}
