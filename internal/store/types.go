// Package store implements the Relational Store and Vector Index (spec
// §3, §4.4): a modernc.org/sqlite-backed schema (file, object, embedding,
// fts, schema_migrations) plus an in-memory exact L2 flat vector index,
// both owned by a single writer and safe for concurrent reads.
package store

import "github.com/codebased/codebased/internal/object"

// File mirrors the file table: one row per indexed path.
type File struct {
	Path           string
	SizeBytes      int64
	LastModifiedNS int64
	ContentDigest  string
}

// Embedding mirrors the embedding table: one row per Object with a
// computed vector, keyed by object id and deduplicated by content hash.
type Embedding struct {
	ObjectID    int64
	ContentHash string
	Vector      []float32
}

// FTSRow mirrors one row of the fts virtual table.
type FTSRow struct {
	ObjectID int64
	Path     string
	Name     string
	Content  string
}

// Stats summarizes store contents for the `--stats` CLI surface.
type Stats struct {
	FileCount      int
	ObjectCount    int
	EmbeddingCount int
	VectorCount    int
}

// StoredObject is an object.Object enriched with its persisted id.
type StoredObject = object.Object
