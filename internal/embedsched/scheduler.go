// Package embedsched implements the Embedding Scheduler (spec §4.3):
// batching embedding requests under size/token ceilings and flushing to a
// synchronous provider in order. The Scheduler does not deduplicate:
// requests with equal content hashes are each sent to the provider. Reuse
// of stored vectors by content hash happens in the Indexer, which looks a
// hash up before it schedules a request.
package embedsched

import (
	"context"
	"fmt"
)

const (
	// DefaultBatchSizeLimit caps the number of requests per flush.
	DefaultBatchSizeLimit = 2048
	// DefaultBatchTokenLimit caps total pre-counted tokens per flush.
	DefaultBatchTokenLimit = 400_000
	// DefaultPerRequestTokenCap drops any single request exceeding it.
	DefaultPerRequestTokenCap = 8192
)

// Embedder issues the single synchronous embedding RPC (implemented by
// internal/provider.Provider).
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Config bounds scheduling behavior.
type Config struct {
	BatchSizeLimit     int
	BatchTokenLimit    int
	PerRequestTokenCap int
	Dim                int
}

// DefaultConfig returns spec's recommended ceilings.
func DefaultConfig(dim int) Config {
	return Config{
		BatchSizeLimit:     DefaultBatchSizeLimit,
		BatchTokenLimit:    DefaultBatchTokenLimit,
		PerRequestTokenCap: DefaultPerRequestTokenCap,
		Dim:                dim,
	}
}

// Request is one pending embedding job, keyed by (ObjectID, Content,
// ContentHash) with a pre-counted TokenCount.
type Request struct {
	ObjectID    int64
	Content     string
	ContentHash string
	TokenCount  int
}

// Result pairs a Request with its computed vector. Vector is nil for
// requests dropped for exceeding PerRequestTokenCap.
type Result struct {
	Request Request
	Vector  []float32
}

// Scheduler is scoped to a single index run; it is not safe for
// concurrent use (spec §5: "confined to one Indexer run at a time").
type Scheduler struct {
	cfg      Config
	embedder Embedder

	batch      []Request
	batchTokens int
}

// New constructs a Scheduler against embedder.
func New(cfg Config, embedder Embedder) *Scheduler {
	return &Scheduler{cfg: cfg, embedder: embedder}
}

// Schedule appends req to the internal batch, flushing first if adding
// it would cross either ceiling. Requests over PerRequestTokenCap are
// dropped silently and never reach the provider. Pending flushed
// results are returned here (possibly empty) so callers can stream
// results without a separate drain pass.
func (s *Scheduler) Schedule(ctx context.Context, req Request) ([]Result, error) {
	if req.TokenCount > s.cfg.PerRequestTokenCap {
		return nil, nil
	}

	var flushed []Result
	wouldExceedSize := len(s.batch)+1 > s.cfg.BatchSizeLimit
	wouldExceedTokens := s.batchTokens+req.TokenCount > s.cfg.BatchTokenLimit
	if (wouldExceedSize || wouldExceedTokens) && len(s.batch) > 0 {
		results, err := s.Flush(ctx)
		if err != nil {
			return nil, err
		}
		flushed = results
	}

	s.batch = append(s.batch, req)
	s.batchTokens += req.TokenCount
	return flushed, nil
}

// Flush issues one synchronous provider call for the current batch, in
// order: result i corresponds to input i. Returns an empty slice if the
// batch is empty.
func (s *Scheduler) Flush(ctx context.Context) ([]Result, error) {
	if len(s.batch) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(s.batch))
	for i, req := range s.batch {
		inputs[i] = req.Content
	}

	vectors, err := s.embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embedsched: flush: %w", err)
	}
	if len(vectors) != len(s.batch) {
		return nil, fmt.Errorf("embedsched: provider returned %d vectors for %d inputs", len(vectors), len(s.batch))
	}

	results := make([]Result, len(s.batch))
	for i, req := range s.batch {
		results[i] = Result{Request: req, Vector: vectors[i]}
	}

	s.batch = s.batch[:0]
	s.batchTokens = 0
	return results, nil
}

// Pending reports the number of requests currently buffered, unflushed.
func (s *Scheduler) Pending() int {
	return len(s.batch)
}
