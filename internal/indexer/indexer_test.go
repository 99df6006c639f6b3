package indexer

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebased/codebased/internal/embedsched"
	"github.com/codebased/codebased/internal/ignore"
	"github.com/codebased/codebased/internal/object"
	"github.com/codebased/codebased/internal/store"
)

// stubEmbedder returns a deterministic, distinct vector per input so
// tests can assert on insertion without depending on a real provider.
type stubEmbedder struct {
	dim   int
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	s.calls++
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		vec := make([]float32, s.dim)
		for j := range vec {
			vec[j] = float32(len(in)+j) / 10
		}
		out[i] = vec
	}
	return out, nil
}

func setupTestIndexer(t *testing.T) (*Indexer, string, *store.Store, *store.VectorIndex) {
	t.Helper()

	root := t.TempDir()

	s, err := store.Open(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	vectors := store.NewVectorIndex(4)
	t.Cleanup(func() { _ = vectors.Close() })

	sched := embedsched.New(embedsched.DefaultConfig(4), &stubEmbedder{dim: 4})

	oracle, err := ignore.NewOracle(filepath.Join(root, ".codebasedignore"), ".codebased")
	require.NoError(t, err)

	ix := New(Config{
		Root:           root,
		PrivateDirName: ".codebased",
		VCSMarkerName:  ".git",
		Store:          s,
		Vectors:        vectors,
		Parser:         object.NewParser(),
		Scheduler:      sched,
		Oracle:         oracle,
	})

	return ix, root, s, vectors
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestRun_IndexesNewFileAndPopulatesStoreAndVectors(t *testing.T) {
	ix, root, s, vectors := setupTestIndexer(t)

	writeFile(t, root, "main.go", "package main\n\nfunc hello() {\n\tprintln(\"hi\")\n}\n")

	err := ix.Run(context.Background(), []string{"main.go"}, ModeIncremental)
	require.NoError(t, err)

	stats, err := s.ComputeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FileCount)
	assert.GreaterOrEqual(t, stats.ObjectCount, 1)
	assert.GreaterOrEqual(t, stats.EmbeddingCount, 1)
	assert.Greater(t, vectors.Len(), 0)
}

func TestRun_UnchangedFileIsNotReindexed(t *testing.T) {
	ix, root, s, _ := setupTestIndexer(t)

	writeFile(t, root, "main.go", "package main\n\nfunc hello() {}\n")

	ctx := context.Background()
	require.NoError(t, ix.Run(ctx, []string{"main.go"}, ModeIncremental))

	before, err := s.ComputeStats(ctx)
	require.NoError(t, err)

	require.NoError(t, ix.Run(ctx, []string{"main.go"}, ModeIncremental))

	after, err := s.ComputeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_ModifiedFileReindexesWithoutDuplicatingObjects(t *testing.T) {
	ix, root, s, _ := setupTestIndexer(t)
	ctx := context.Background()

	writeFile(t, root, "main.go", "package main\n\nfunc hello() {}\n")
	require.NoError(t, ix.Run(ctx, []string{"main.go"}, ModeIncremental))

	// Rewrite the file with an extra function: the re-index replaces the
	// file's old objects rather than adding to them, leaving exactly the
	// file object plus hello and world.
	writeFile(t, root, "main.go", "package main\n\nfunc hello() {}\n\nfunc world() {}\n")
	require.NoError(t, ix.Run(ctx, []string{"main.go"}, ModeIncremental))

	stats, err := s.ComputeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ObjectCount)
}

func TestRun_DeletedFileRemovesRowsButRetainsEmbeddingByHash(t *testing.T) {
	ix, root, s, vectors := setupTestIndexer(t)
	ctx := context.Background()

	writeFile(t, root, "main.go", "package main\n\nfunc hello() {}\n")
	require.NoError(t, ix.Run(ctx, []string{"main.go"}, ModeIncremental))

	beforeLen := vectors.Len()
	require.Greater(t, beforeLen, 0)

	require.NoError(t, os.Remove(filepath.Join(root, "main.go")))
	require.NoError(t, ix.Run(ctx, []string{"main.go"}, ModeIncremental))

	stats, err := s.ComputeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FileCount)
	assert.Equal(t, 0, stats.ObjectCount)
	// Embedding rows survive object deletion, keyed by content hash.
	assert.Greater(t, stats.EmbeddingCount, 0)
	assert.Less(t, vectors.Len(), beforeLen)
}

func TestRun_TotalModeDeletesFilesNotVisited(t *testing.T) {
	ix, root, s, _ := setupTestIndexer(t)
	ctx := context.Background()

	writeFile(t, root, "a.go", "package main\n\nfunc a() {}\n")
	writeFile(t, root, "b.go", "package main\n\nfunc b() {}\n")
	require.NoError(t, ix.Run(ctx, []string{"a.go", "b.go"}, ModeIncremental))

	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))

	// Total mode re-walks only a.go but should notice b.go vanished.
	require.NoError(t, ix.Run(ctx, []string{"a.go"}, ModeTotal))

	_, found, err := storeGetFile(ctx, s, "b.go")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRun_BinaryFileIsIgnored(t *testing.T) {
	ix, root, s, _ := setupTestIndexer(t)
	ctx := context.Background()

	abs := filepath.Join(root, "blob.bin")
	require.NoError(t, os.WriteFile(abs, []byte{0x00, 0x01, 0x02, 0xFF}, 0o644))

	require.NoError(t, ix.Run(ctx, []string{"blob.bin"}, ModeIncremental))

	stats, err := s.ComputeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FileCount)
}

func TestRun_DirectoryEventWalksChildrenSkippingIgnored(t *testing.T) {
	ix, root, s, _ := setupTestIndexer(t)
	ctx := context.Background()

	writeFile(t, root, ".codebasedignore", "ignored.go\n")
	writeFile(t, root, "main.go", "package main\n\nfunc hello() {}\n")
	writeFile(t, root, "ignored.go", "package main\n\nfunc skip() {}\n")

	oracle, err := ignore.NewOracle(filepath.Join(root, ".codebasedignore"), ".codebased")
	require.NoError(t, err)
	ix.cfg.Oracle = oracle

	require.NoError(t, ix.Run(ctx, []string{""}, ModeIncremental))

	_, found, err := storeGetFile(ctx, s, "main.go")
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = storeGetFile(ctx, s, "ignored.go")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRun_OnCommitCallbackFires(t *testing.T) {
	ix, root, _, _ := setupTestIndexer(t)
	writeFile(t, root, "main.go", "package main\n\nfunc hello() {}\n")

	fired := false
	ix.cfg.OnCommit = func() { fired = true }

	require.NoError(t, ix.Run(context.Background(), []string{"main.go"}, ModeIncremental))
	assert.True(t, fired)
}

// storeGetFile is a small helper wrapping store.GetFile in its own
// transaction, since GetFile itself takes an open *sql.Tx.
func storeGetFile(ctx context.Context, s *store.Store, path string) (store.File, bool, error) {
	var f store.File
	var found bool
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		var getErr error
		f, found, getErr = store.GetFile(ctx, tx, path)
		return getErr
	})
	return f, found, err
}
