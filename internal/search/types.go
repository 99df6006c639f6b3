// Package search implements the Search Engine (spec §4.8): hybrid
// BM25 (via the fts5 table) and semantic (via the Vector Index)
// retrieval, merged deterministically, with a process-local result
// cache invalidated on every Indexer commit.
package search

import "github.com/codebased/codebased/internal/object"

// Flags is the cache key: every input that can change a query's
// result set.
type Flags struct {
	Query    string
	TopK     int
	Semantic bool
	FullText bool
	Rerank   bool
}

// Span is a highlighted match, reported in both byte-offset and
// line-range form.
type Span struct {
	Start     int
	End       int
	StartLine int
	EndLine   int
}

// Result is one merged, rendered search hit.
type Result struct {
	Object        object.Object
	Rendered      string
	Highlights    []Span
	NameMatch     bool
	SemanticRank  int // 1-indexed; 0 if absent from the semantic branch
	FTSRank       int // 1-indexed; 0 if absent from the FTS branch
	SemanticScore float32
}
