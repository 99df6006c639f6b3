package search

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/codebased/codebased/internal/object"
	"github.com/codebased/codebased/internal/store"
)

// Embedder computes vectors for raw query text (satisfied by
// internal/provider.Provider and internal/embedsched.Embedder).
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

const defaultCacheSize = 256

// Config wires an Engine's collaborators.
type Config struct {
	Root      string
	Store     *store.Store
	Vectors   *store.VectorIndex
	Embedder  Embedder
	CacheSize int
}

// Engine is the Search Engine (spec §4.8). Safe for concurrent Search
// calls; its cache is mutex-protected and cleared by Invalidate.
type Engine struct {
	cfg   Config
	cache *lru.Cache[Flags, []Result]
	mu    sync.Mutex
}

// New constructs an Engine.
func New(cfg Config) (*Engine, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[Flags, []Result](size)
	if err != nil {
		return nil, fmt.Errorf("search: init cache: %w", err)
	}
	return &Engine{cfg: cfg, cache: cache}, nil
}

// Invalidate clears the result cache; wired as the Indexer's
// OnCommit callback.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Purge()
}

// Search executes flags.Query against the configured branches and
// returns the deterministic merge, truncated to flags.TopK.
func (e *Engine) Search(ctx context.Context, flags Flags) ([]Result, error) {
	if flags.TopK <= 0 {
		flags.TopK = 10
	}

	// Empty query -> empty result list, no provider call (spec §8).
	parsed := ParseQuery(flags.Query)
	if len(parsed.Phrases) == 0 && len(parsed.Keywords) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	if cached, ok := e.cache.Get(flags); ok {
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	var semantic []semanticHit
	var fts []ftsHit

	g, gctx := errgroup.WithContext(ctx)
	if flags.Semantic {
		g.Go(func() error {
			hits, err := e.semanticBranch(gctx, flags.Query, flags.TopK)
			if err != nil {
				return err
			}
			semantic = hits
			return nil
		})
	}
	if flags.FullText {
		g.Go(func() error {
			hits, err := e.ftsBranch(gctx, parsed, flags.TopK)
			if err != nil {
				return err
			}
			fts = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := merge(semantic, fts, flags.TopK)

	results, err := e.render(ctx, merged, parsed)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache.Add(flags, results)
	e.mu.Unlock()

	return results, nil
}

type semanticHit struct {
	id    int64
	rank  int
	score float32
}

type ftsHit struct {
	id        int64
	rank      int
	nameMatch bool
}

func (e *Engine) semanticBranch(ctx context.Context, query string, topK int) ([]semanticHit, error) {
	vecs, err := e.cfg.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, nil
	}

	results := e.cfg.Vectors.Search(vecs[0], topK)
	hits := make([]semanticHit, 0, len(results))
	for i, r := range results {
		if r.ID == store.MissingID {
			continue
		}
		hits = append(hits, semanticHit{id: r.ID, rank: i + 1, score: r.Distance})
	}
	return hits, nil
}

func (e *Engine) ftsBranch(ctx context.Context, parsed ParsedQuery, topK int) ([]ftsHit, error) {
	var nameMatches, contentMatches []store.FTSMatch

	err := e.cfg.Store.Tx(ctx, func(tx *sql.Tx) error {
		nameExpr := BuildFTSExpr("name", parsed)
		contentExpr := BuildFTSExpr("content", parsed)
		if nameExpr == "" {
			return nil
		}

		var err error
		nameMatches, err = store.SearchFTS(ctx, tx, nameExpr, topK)
		if err != nil {
			return err
		}
		contentMatches, err = store.SearchFTS(ctx, tx, contentExpr, topK)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Best rank per object, preferring name-matches, per spec §4.8.
	bestRank := make(map[int64]int)
	isName := make(map[int64]bool)
	order := make([]int64, 0, len(nameMatches)+len(contentMatches))

	for i, m := range nameMatches {
		if _, seen := bestRank[m.ObjectID]; !seen {
			order = append(order, m.ObjectID)
		}
		bestRank[m.ObjectID] = i + 1
		isName[m.ObjectID] = true
	}
	for i, m := range contentMatches {
		if isName[m.ObjectID] {
			continue // name-match rank already wins
		}
		if existing, seen := bestRank[m.ObjectID]; !seen || i+1 < existing {
			if !seen {
				order = append(order, m.ObjectID)
			}
			bestRank[m.ObjectID] = i + 1
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return bestRank[order[i]] < bestRank[order[j]]
	})
	if len(order) > topK {
		order = order[:topK]
	}

	hits := make([]ftsHit, len(order))
	for i, id := range order {
		hits[i] = ftsHit{id: id, rank: i + 1, nameMatch: isName[id]}
	}
	return hits, nil
}

type mergedHit struct {
	id           int64
	nameMatch    bool
	semanticRank int
	ftsRank      int
	score        float32
}

// merge partitions results per spec §4.8: both-branch hits sorted by
// min(semantic_rank, fts_rank); FTS-only in FTS order; semantic-only
// in semantic order; then name-matched FTS hits are promoted to the
// front, preserving their relative FTS rank order.
func merge(semantic []semanticHit, fts []ftsHit, topK int) []mergedHit {
	semByID := make(map[int64]semanticHit, len(semantic))
	for _, h := range semantic {
		semByID[h.id] = h
	}
	ftsByID := make(map[int64]ftsHit, len(fts))
	for _, h := range fts {
		ftsByID[h.id] = h
	}

	var both, ftsOnly, semOnly []mergedHit

	for _, h := range fts {
		if sem, ok := semByID[h.id]; ok {
			both = append(both, mergedHit{id: h.id, nameMatch: h.nameMatch, semanticRank: sem.rank, ftsRank: h.rank, score: sem.score})
		} else {
			ftsOnly = append(ftsOnly, mergedHit{id: h.id, nameMatch: h.nameMatch, ftsRank: h.rank})
		}
	}
	for _, h := range semantic {
		if _, ok := ftsByID[h.id]; ok {
			continue // already placed in both
		}
		semOnly = append(semOnly, mergedHit{id: h.id, semanticRank: h.rank, score: h.score})
	}

	sort.SliceStable(both, func(i, j int) bool {
		return minRank(both[i]) < minRank(both[j])
	})
	sort.SliceStable(ftsOnly, func(i, j int) bool { return ftsOnly[i].ftsRank < ftsOnly[j].ftsRank })
	sort.SliceStable(semOnly, func(i, j int) bool { return semOnly[i].semanticRank < semOnly[j].semanticRank })

	merged := make([]mergedHit, 0, len(both)+len(ftsOnly)+len(semOnly))
	merged = append(merged, both...)
	merged = append(merged, ftsOnly...)
	merged = append(merged, semOnly...)

	// Promote name-matched hits to the front, preserving their
	// relative FTS rank order; non-name-matches keep their relative
	// order after.
	promoted := make([]mergedHit, 0, len(merged))
	rest := make([]mergedHit, 0, len(merged))
	for _, h := range merged {
		if h.nameMatch {
			promoted = append(promoted, h)
		} else {
			rest = append(rest, h)
		}
	}
	sort.SliceStable(promoted, func(i, j int) bool { return promoted[i].ftsRank < promoted[j].ftsRank })

	final := append(promoted, rest...)
	if len(final) > topK {
		final = final[:topK]
	}
	return final
}

func minRank(h mergedHit) int {
	if h.semanticRank == 0 {
		return h.ftsRank
	}
	if h.ftsRank == 0 {
		return h.semanticRank
	}
	if h.semanticRank < h.ftsRank {
		return h.semanticRank
	}
	return h.ftsRank
}

// render fetches each hit's Object and current file bytes, discards
// stale results (content digest mismatch), and computes highlights.
func (e *Engine) render(ctx context.Context, hits []mergedHit, parsed ParsedQuery) ([]Result, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}

	var objs map[int64]object.Object
	err := e.cfg.Store.Tx(ctx, func(tx *sql.Tx) error {
		var err error
		objs, err = store.GetObjectsByIDs(ctx, tx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	fileLineCache := make(map[string][]string)
	results := make([]Result, 0, len(hits))

	for _, h := range hits {
		obj, ok := objs[h.id]
		if !ok {
			continue
		}

		lines, fresh, err := e.freshLines(ctx, obj.Path, fileLineCache)
		if err != nil || !fresh {
			continue
		}

		rendered := object.Render(obj, lines, object.RenderOptions{IncludeContext: true, IncludePath: true, LineNumbers: false})
		highlights := computeHighlights(rendered, parsed)

		results = append(results, Result{
			Object:        obj,
			Rendered:      rendered,
			Highlights:    highlights,
			NameMatch:     h.nameMatch,
			SemanticRank:  h.semanticRank,
			FTSRank:       h.ftsRank,
			SemanticScore: h.score,
		})
	}
	return results, nil
}

// freshLines reads path's current bytes and splits them into lines,
// returning fresh=false if the on-disk digest no longer matches the
// stored File row (the stale-result check of spec §4.8).
func (e *Engine) freshLines(ctx context.Context, path string, cache map[string][]string) ([]string, bool, error) {
	if lines, ok := cache[path]; ok {
		return lines, true, nil
	}

	abs := filepath.Join(e.cfg.Root, path)
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, false, nil
	}

	digest := sha256.Sum256(content)
	digestHex := hex.EncodeToString(digest[:])

	var stored store.File
	var found bool
	err = e.cfg.Store.Tx(ctx, func(tx *sql.Tx) error {
		var getErr error
		stored, found, getErr = store.GetFile(ctx, tx, path)
		return getErr
	})
	if err != nil {
		return nil, false, err
	}
	if !found || stored.ContentDigest != digestHex {
		return nil, false, nil
	}

	lines := object.SplitLines(content)
	cache[path] = lines
	return lines, true, nil
}

// computeHighlights finds non-overlapping, case-insensitive
// occurrences of every keyword and phrase, sorts by start, merges
// overlapping spans, and derives line ranges from newline positions.
func computeHighlights(rendered string, parsed ParsedQuery) []Span {
	terms := make([]string, 0, len(parsed.Phrases)+len(parsed.Keywords))
	terms = append(terms, parsed.Phrases...)
	terms = append(terms, parsed.Keywords...)
	if len(terms) == 0 {
		return nil
	}

	lower := strings.ToLower(rendered)
	lineStarts := newlineOffsets(rendered)

	var spans []Span
	for _, term := range terms {
		if term == "" {
			continue
		}
		lowerTerm := strings.ToLower(term)
		start := 0
		for {
			idx := strings.Index(lower[start:], lowerTerm)
			if idx < 0 {
				break
			}
			absStart := start + idx
			absEnd := absStart + len(term)
			spans = append(spans, Span{
				Start:     absStart,
				End:       absEnd,
				StartLine: lineForOffset(lineStarts, absStart),
				EndLine:   lineForOffset(lineStarts, absEnd),
			})
			start = absEnd
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return mergeSpans(spans)
}

func mergeSpans(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	merged := []Span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
				last.EndLine = s.EndLine
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func newlineOffsets(s string) []int {
	offsets := []int{0}
	for i, r := range s {
		if r == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

func lineForOffset(lineStarts []int, offset int) int {
	line := sort.Search(len(lineStarts), func(i int) bool { return lineStarts[i] > offset }) - 1
	if line < 0 {
		return 0
	}
	return line
}
