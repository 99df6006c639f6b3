// Package indexer implements the Indexer pipeline (spec §4.5): a
// single-threaded, event-stack traversal that diffs the filesystem
// against stored state and drives the Object Parser, Embedding
// Scheduler, Relational Store, and Vector Index atomically.
package indexer

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/codebased/codebased/internal/codebaseerrors"
	"github.com/codebased/codebased/internal/embedsched"
	"github.com/codebased/codebased/internal/ignore"
	"github.com/codebased/codebased/internal/object"
	"github.com/codebased/codebased/internal/store"
)

// Mode selects total (full reconciliation) vs incremental traversal.
type Mode int

const (
	ModeIncremental Mode = iota
	ModeTotal
)

// Config wires an Indexer's collaborators.
type Config struct {
	Root            string // absolute repository root
	PrivateDirName  string // e.g. ".codebased", skipped during traversal
	VCSMarkerName   string // e.g. ".git", skipped during traversal
	VectorIndexPath string

	Store     *store.Store
	Vectors   *store.VectorIndex
	Parser    *object.Parser
	Scheduler *embedsched.Scheduler
	Oracle    *ignore.Oracle

	// RebuildVectorIndex forces AlreadyIndexed files to still reload
	// their embeddings into the Vector Index (spec §4.5 File event).
	RebuildVectorIndex bool

	// OnCommit is invoked synchronously when the Commit event runs,
	// after the relational transaction commits and the vector index
	// snapshot is persisted. Used to invalidate the Search cache.
	OnCommit func()
}

// Indexer runs one traversal at a time; it is not safe for concurrent
// Run calls (spec §5: confined to one Indexer run at a time).
type Indexer struct {
	cfg Config
}

// New constructs an Indexer.
func New(cfg Config) *Indexer {
	return &Indexer{cfg: cfg}
}

type eventKind int

const (
	evDirectory eventKind = iota
	evFile
	evDeleteFile
	evDeleteFileObjects
	evIndexFile
	evIndexObjects
	evScheduleEmbeddingRequests
	evStoreEmbeddings
	evFlushEmbeddings
	evFaissDeletes
	evFaissInserts
	evDeleteNotVisited
	evCommit
)

type event struct {
	kind eventKind

	path string
	data []byte

	objects  map[int64]object.Object
	requests []embedsched.Request
	results  []embedsched.Result
	ids      []int64
}

// run carries the mutable state of one traversal: the event stack, the
// transaction it operates in, and the pending cross-cutting lists spec
// §4.5 describes (pending-deletion-ids, pending-insertions, visited).
type run struct {
	ctx context.Context
	ix  *Indexer
	tx  *sql.Tx
	mode Mode

	stack []event

	pendingDeletionIDs []int64
	pendingInsertions  []store.Embedding
	visited            map[string]struct{}
}

func (r *run) push(ev event) {
	r.stack = append(r.stack, ev)
}

func (r *run) pop() (event, bool) {
	if len(r.stack) == 0 {
		return event{}, false
	}
	n := len(r.stack) - 1
	ev := r.stack[n]
	r.stack = r.stack[:n]
	return ev, true
}

// Run executes one traversal over paths (repository-root-relative) in
// the given mode. Any error rolls back the relational transaction and
// leaves the on-disk vector snapshot reflecting the last successful
// run (spec §4.5 failure semantics).
func (ix *Indexer) Run(ctx context.Context, paths []string, mode Mode) (err error) {
	tx, release, err := ix.cfg.Store.BeginIndexTx(ctx)
	if err != nil {
		return err
	}
	defer release()

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	r := &run{
		ctx:     ctx,
		ix:      ix,
		tx:      tx,
		mode:    mode,
		visited: make(map[string]struct{}),
	}

	// Seeding order (§4.5): pushed in this order, consumed LIFO so
	// last pushed runs first: Commit, FaissInserts, FaissDeletes,
	// FlushEmbeddings, (optionally DeleteNotVisited), then the roots.
	r.push(event{kind: evCommit})
	r.push(event{kind: evFaissInserts})
	r.push(event{kind: evFaissDeletes})
	r.push(event{kind: evFlushEmbeddings})
	if mode == ModeTotal {
		r.push(event{kind: evDeleteNotVisited})
	}
	for _, p := range paths {
		r.push(rootEvent(ix.cfg.Root, p))
	}

	for {
		ev, ok := r.pop()
		if !ok {
			break
		}
		if err := ix.process(r, ev); err != nil {
			return err
		}
		if ev.kind == evCommit {
			committed = true
		}
	}

	return nil
}

// rootEvent resolves a root path to a Directory or File event based on
// its current filesystem type; a root that no longer exists is treated
// as a File event, letting the normal missing-file demotion handle it.
func rootEvent(root, relPath string) event {
	abs := filepath.Join(root, relPath)
	info, err := os.Lstat(abs)
	if err == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
		return event{kind: evDirectory, path: relPath}
	}
	return event{kind: evFile, path: relPath}
}

func (ix *Indexer) process(r *run, ev event) error {
	switch ev.kind {
	case evDirectory:
		return ix.processDirectory(r, ev)
	case evFile:
		return ix.processFile(r, ev)
	case evDeleteFile:
		return ix.processDeleteFile(r, ev)
	case evDeleteFileObjects:
		return ix.processDeleteFileObjects(r, ev)
	case evIndexFile:
		return ix.processIndexFile(r, ev)
	case evIndexObjects:
		return ix.processIndexObjects(r, ev)
	case evScheduleEmbeddingRequests:
		return ix.processScheduleEmbeddingRequests(r, ev)
	case evStoreEmbeddings:
		return ix.processStoreEmbeddings(r, ev)
	case evFlushEmbeddings:
		return ix.processFlushEmbeddings(r)
	case evFaissDeletes:
		return ix.processFaissDeletes(r)
	case evFaissInserts:
		return ix.processFaissInserts(r)
	case evDeleteNotVisited:
		return ix.processDeleteNotVisited(r)
	case evCommit:
		return ix.processCommit(r)
	default:
		return fmt.Errorf("indexer: unknown event kind %d", ev.kind)
	}
}

// processDirectory scans a directory, pushing Directory/File events for
// its children, skipping symlinks, the VCS marker, the private
// directory, and ignored paths.
func (ix *Indexer) processDirectory(r *run, ev event) error {
	abs := filepath.Join(ix.cfg.Root, ev.path)
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil // directory vanished between push and scan; nothing to do
	}

	names := make([]string, 0, len(entries))
	byName := make(map[string]os.DirEntry, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
		byName[e.Name()] = e
	}
	sort.Strings(names)

	// Push in reverse so the first child (alphabetically) is processed
	// first once popped (last pushed pops first).
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		entry := byName[name]

		if name == ix.cfg.VCSMarkerName || name == ix.cfg.PrivateDirName {
			continue
		}

		childRel := filepath.Join(ev.path, name)
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}

		isDir := entry.IsDir()
		if ix.cfg.Oracle != nil && ix.cfg.Oracle.Ignored(childRel, isDir) {
			continue
		}

		if isDir {
			r.push(event{kind: evDirectory, path: childRel})
		} else {
			r.push(event{kind: evFile, path: childRel})
		}
	}
	return nil
}

// processFile stats the file and compares (size, mtime_ns) to the
// stored row, deciding between no-op, deletion, or a re-index.
func (ix *Indexer) processFile(r *run, ev event) error {
	r.visited[ev.path] = struct{}{}

	abs := filepath.Join(ix.cfg.Root, ev.path)
	info, statErr := os.Lstat(abs)

	if statErr != nil || (info != nil && info.Mode()&os.ModeSymlink != 0) {
		r.push(event{kind: evDeleteFileObjects, path: ev.path})
		r.push(event{kind: evDeleteFile, path: ev.path})
		return nil
	}

	stored, found, err := store.GetFile(r.ctx, r.tx, ev.path)
	if err != nil {
		return err
	}

	sizeBytes := info.Size()
	mtimeNS := info.ModTime().UnixNano()

	if found && stored.SizeBytes == sizeBytes && stored.LastModifiedNS == mtimeNS {
		if ix.cfg.RebuildVectorIndex {
			return ix.reloadFileEmbeddings(r, ev.path)
		}
		return nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		// File-level I/O error between stat and read: demote to delete,
		// per spec §4.5 failure semantics; never abort the run for this.
		r.push(event{kind: evDeleteFileObjects, path: ev.path})
		r.push(event{kind: evDeleteFile, path: ev.path})
		return nil
	}

	if !object.IsText(content) {
		return nil // Ignore: binary/non-UTF-8/16 content
	}

	digest := sha256.Sum256(content)
	digestHex := hex.EncodeToString(digest[:])

	if err := store.InsertFile(r.ctx, r.tx, store.File{
		Path:           ev.path,
		SizeBytes:      sizeBytes,
		LastModifiedNS: mtimeNS,
		ContentDigest:  digestHex,
	}); err != nil {
		return err
	}

	if found && stored.ContentDigest == digestHex {
		return nil // AlreadyIndexed: digest unchanged despite stat drift
	}

	// Push IndexFile then DeleteFileObjects: DeleteFileObjects, pushed
	// last, pops and runs first, clearing stale rows before the new
	// parse is inserted (spec §4.5).
	r.push(event{kind: evIndexFile, path: ev.path, data: content})
	r.push(event{kind: evDeleteFileObjects, path: ev.path})
	return nil
}

// reloadFileEmbeddings re-queues a rebuild's worth of vector inserts for
// an unchanged file's existing embeddings, without touching the
// relational rows.
func (ix *Indexer) reloadFileEmbeddings(r *run, path string) error {
	embeddings, err := embeddingsForPath(r, path)
	if err != nil {
		return err
	}
	r.pendingInsertions = append(r.pendingInsertions, embeddings...)
	return nil
}

func embeddingsForPath(r *run, path string) ([]store.Embedding, error) {
	rows, err := r.tx.QueryContext(r.ctx, `SELECT id FROM object WHERE path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("indexer: list objects for %s: %w", path, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []store.Embedding
	for _, id := range ids {
		objs, err := store.GetObjectsByIDs(r.ctx, r.tx, []int64{id})
		if err != nil {
			return nil, err
		}
		if _, ok := objs[id]; !ok {
			continue
		}
		// Find the embedding row by scanning (object_id is PK on embedding).
		var blob []byte
		var hash string
		row := r.tx.QueryRowContext(r.ctx, `SELECT content_hash, vector FROM embedding WHERE object_id = ?`, id)
		if err := row.Scan(&hash, &blob); err == sql.ErrNoRows {
			continue
		} else if err != nil {
			return nil, err
		}
		vec, err := store.DecodeVector(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Embedding{ObjectID: id, ContentHash: hash, Vector: vec})
	}
	return out, nil
}

func (ix *Indexer) processDeleteFile(r *run, ev event) error {
	return store.DeleteFile(r.ctx, r.tx, ev.path)
}

func (ix *Indexer) processDeleteFileObjects(r *run, ev event) error {
	ids, err := store.DeleteObjectsByPath(r.ctx, r.tx, ev.path)
	if err != nil {
		return err
	}
	r.pendingDeletionIDs = append(r.pendingDeletionIDs, ids...)
	return nil
}

func (ix *Indexer) processIndexFile(r *run, ev event) error {
	objs, err := ix.cfg.Parser.Parse(r.ctx, ev.path, ev.data)
	if err != nil {
		return codebaseerrors.BadFile(ev.path, err)
	}

	byID := make(map[int64]object.Object, len(objs))
	for _, obj := range objs {
		id, err := store.InsertObject(r.ctx, r.tx, obj)
		if err != nil {
			return err
		}
		obj.ID = id
		byID[id] = obj
	}

	r.push(event{kind: evIndexObjects, path: ev.path, data: ev.data, objects: byID})
	return nil
}

func (ix *Indexer) processIndexObjects(r *run, ev event) error {
	lines := object.SplitLines(ev.data)

	ids := make([]int64, 0, len(ev.objects))
	for id := range ev.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	requests := make([]embedsched.Request, 0, len(ids))
	for _, id := range ids {
		obj := ev.objects[id]

		rendered := object.Render(obj, lines, object.CanonicalOptions)
		hash := sha256.Sum256([]byte(rendered))
		hashHex := hex.EncodeToString(hash[:])

		if err := store.UpsertFTSRow(r.ctx, r.tx, store.FTSRow{
			ObjectID: id,
			Path:     obj.Path,
			Name:     obj.Name,
			Content:  rendered,
		}); err != nil {
			return err
		}

		requests = append(requests, embedsched.Request{
			ObjectID:    id,
			Content:     rendered,
			ContentHash: hashHex,
			TokenCount:  estimateTokens(rendered),
		})
	}

	r.push(event{kind: evScheduleEmbeddingRequests, requests: requests})
	return nil
}

// estimateTokens is a coarse, fast token-count estimate (roughly 4
// bytes per token) used only to enforce the Scheduler's ceilings; it
// need not match the embedding provider's own tokenizer exactly.
func estimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}

func (ix *Indexer) processScheduleEmbeddingRequests(r *run, ev event) error {
	var batch []store.Embedding

	for _, req := range ev.requests {
		existing, found, err := store.LookupEmbeddingByContentHash(r.ctx, r.tx, req.ContentHash)
		if err != nil {
			return err
		}
		if found {
			batch = append(batch, store.Embedding{
				ObjectID:    req.ObjectID,
				ContentHash: req.ContentHash,
				Vector:      existing.Vector,
			})
			continue
		}

		results, err := ix.cfg.Scheduler.Schedule(r.ctx, req)
		if err != nil {
			return codebaseerrors.EmbeddingProviderFailure(err)
		}
		batch = append(batch, resultsToEmbeddings(results)...)
	}

	if len(batch) > 0 {
		r.push(event{kind: evStoreEmbeddings, results: embeddingsToResults(batch)})
	}
	return nil
}

func embeddingsToResults(batch []store.Embedding) []embedsched.Result {
	results := make([]embedsched.Result, len(batch))
	for i, e := range batch {
		results[i] = embedsched.Result{
			Request: embedsched.Request{ObjectID: e.ObjectID, ContentHash: e.ContentHash},
			Vector:  e.Vector,
		}
	}
	return results
}

func resultsToEmbeddings(results []embedsched.Result) []store.Embedding {
	out := make([]store.Embedding, 0, len(results))
	for _, res := range results {
		if res.Vector == nil {
			continue // dropped by the Scheduler for exceeding the per-request cap
		}
		out = append(out, store.Embedding{
			ObjectID:    res.Request.ObjectID,
			ContentHash: res.Request.ContentHash,
			Vector:      res.Vector,
		})
	}
	return out
}

func (ix *Indexer) processStoreEmbeddings(r *run, ev event) error {
	for _, res := range ev.results {
		e := store.Embedding{ObjectID: res.Request.ObjectID, ContentHash: res.Request.ContentHash, Vector: res.Vector}
		if err := store.InsertEmbedding(r.ctx, r.tx, e); err != nil {
			return err
		}
		r.pendingInsertions = append(r.pendingInsertions, e)
	}
	return nil
}

func (ix *Indexer) processFlushEmbeddings(r *run) error {
	results, err := ix.cfg.Scheduler.Flush(r.ctx)
	if err != nil {
		return codebaseerrors.EmbeddingProviderFailure(err)
	}
	if len(results) == 0 {
		return nil
	}
	r.push(event{kind: evStoreEmbeddings, results: results})
	return nil
}

// processFaissDeletes and processFaissInserts are no-ops: the events
// exist only to preserve the LIFO event-stack ordering. The actual
// VectorIndex mutation happens in processCommit, after the relational
// transaction has durably committed, so a rolled-back run never leaves
// the in-memory vector index ahead of the database it's supposed to
// mirror.
func (ix *Indexer) processFaissDeletes(r *run) error {
	return nil
}

func (ix *Indexer) processFaissInserts(r *run) error {
	return nil
}

func (ix *Indexer) processDeleteNotVisited(r *run) error {
	stale, err := store.ObjectsNotVisited(r.ctx, r.tx, r.visited)
	if err != nil {
		return err
	}
	for _, path := range stale {
		ids, err := store.DeleteObjectsByPath(r.ctx, r.tx, path)
		if err != nil {
			return err
		}
		r.pendingDeletionIDs = append(r.pendingDeletionIDs, ids...)
		if err := store.DeleteFile(r.ctx, r.tx, path); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) processCommit(r *run) error {
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("indexer: commit: %w", err)
	}

	// Only mutate the in-memory vector index once the relational
	// transaction it mirrors has durably committed.
	if len(r.pendingDeletionIDs) > 0 {
		ix.cfg.Vectors.Remove(r.pendingDeletionIDs)
	}
	if len(r.pendingInsertions) > 0 {
		ids := make([]int64, len(r.pendingInsertions))
		vectors := make([][]float32, len(r.pendingInsertions))
		for i, e := range r.pendingInsertions {
			ids[i] = e.ObjectID
			vectors[i] = e.Vector
		}
		if err := ix.cfg.Vectors.Add(ids, vectors); err != nil {
			return fmt.Errorf("indexer: apply vector inserts after commit: %w", err)
		}
	}

	if ix.cfg.VectorIndexPath != "" {
		if err := ix.cfg.Vectors.Save(ix.cfg.VectorIndexPath); err != nil {
			return fmt.Errorf("indexer: persist vector index: %w", err)
		}
	}
	if ix.cfg.OnCommit != nil {
		ix.cfg.OnCommit()
	}
	return nil
}
