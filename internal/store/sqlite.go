package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/codebased/codebased/internal/object"
)

// Store is the Relational Store (spec §3): file/object/embedding rows
// plus an FTS5 virtual table, backed by a single SQLite connection in
// WAL mode. Mutation is expected to come from one writer (the Indexer).
// The store serializes every transaction (index or read) behind one
// mutex, so a Search issued while an indexer run is in flight waits for
// that run's commit rather than racing it; it does not run concurrently
// with it.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open creates or opens the relational store at path (or an in-memory
// store when path is empty), applying any pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// Single-writer discipline: one connection, so WAL concurrent-reader
	// semantics never have to arbitrate between pooled writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: set pragma %q: %w", pragma, err)
		}
	}

	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close releases the underlying connection, checkpointing WAL first.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Tx runs fn inside a transaction, committing on success and rolling
// back on error or panic. General-purpose helper for callers (tests,
// CLI plumbing) that don't need to straddle a commit across multiple
// steps.
func (s *Store) Tx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store: closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// BeginIndexTx opens a transaction for the Indexer's own event loop,
// which straddles a commit across many events (spec §4.5: the
// relational transaction is committed only when the Commit event is
// processed, as the last step of a run). The returned release func
// must be called exactly once, after the caller has committed or
// rolled back tx, to unlock the store for the next caller.
func (s *Store) BeginIndexTx(ctx context.Context) (tx *sql.Tx, release func(), err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("store: closed")
	}
	tx, err = s.db.BeginTx(ctx, nil)
	if err != nil {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("store: begin index tx: %w", err)
	}
	return tx, s.mu.Unlock, nil
}

// InsertFile upserts a file row by path.
func InsertFile(ctx context.Context, tx *sql.Tx, f File) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO file(path, size_bytes, last_modified_ns, content_digest)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size_bytes = excluded.size_bytes,
			last_modified_ns = excluded.last_modified_ns,
			content_digest = excluded.content_digest
	`, f.Path, f.SizeBytes, f.LastModifiedNS, f.ContentDigest)
	if err != nil {
		return fmt.Errorf("store: insert file %s: %w", f.Path, err)
	}
	return nil
}

// GetFile fetches the file row for path, returning (File{}, false, nil)
// if absent.
func GetFile(ctx context.Context, tx *sql.Tx, path string) (File, bool, error) {
	var f File
	err := tx.QueryRowContext(ctx,
		`SELECT path, size_bytes, last_modified_ns, content_digest FROM file WHERE path = ?`, path,
	).Scan(&f.Path, &f.SizeBytes, &f.LastModifiedNS, &f.ContentDigest)
	if err == sql.ErrNoRows {
		return File{}, false, nil
	}
	if err != nil {
		return File{}, false, fmt.Errorf("store: get file %s: %w", path, err)
	}
	return f, true, nil
}

// DeleteFile removes the file row for path.
func DeleteFile(ctx context.Context, tx *sql.Tx, path string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM file WHERE path = ?`, path); err != nil {
		return fmt.Errorf("store: delete file %s: %w", path, err)
	}
	return nil
}

// InsertObject inserts obj and returns its assigned id. The object id
// column is AUTOINCREMENT, so ids strictly increase and an id freed by a
// delete is not handed out again.
func InsertObject(ctx context.Context, tx *sql.Tx, obj object.Object) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO object(
			path, name, language, kind,
			byte_start, byte_end,
			start_row, start_column, end_row, end_column,
			context_before, context_after
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		obj.Path, obj.Name, obj.Language, string(obj.Kind),
		obj.ByteRange.Start, obj.ByteRange.End,
		obj.Coords.Start.Row, obj.Coords.Start.Column, obj.Coords.End.Row, obj.Coords.End.Column,
		encodeRows(obj.ContextBefore), encodeRows(obj.ContextAfter),
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert object %s:%s: %w", obj.Path, obj.Name, err)
	}
	return res.LastInsertId()
}

// DeleteObjectsByPath deletes every object row for path and its fts
// rows, returning the deleted object ids so callers can queue them for
// Vector Index removal. Embedding rows are retained (keyed by content
// hash, for reuse on a future re-index of equivalent content) per
// spec §4.5.
func DeleteObjectsByPath(ctx context.Context, tx *sql.Tx, path string) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM object WHERE path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("store: list objects for %s: %w", path, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan object id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := placeholderList(len(ids))
	args := int64Args(ids)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM fts WHERE rowid IN (%s)`, placeholders), args...); err != nil {
		return nil, fmt.Errorf("store: delete fts rows for %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM object WHERE path = ?`, path); err != nil {
		return nil, fmt.Errorf("store: delete objects for %s: %w", path, err)
	}
	return ids, nil
}

// ObjectsNotVisited returns the path of every file row whose path is not
// in visited, used by the total-mode DeleteNotVisited event.
func ObjectsNotVisited(ctx context.Context, tx *sql.Tx, visited map[string]struct{}) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT path FROM file`)
	if err != nil {
		return nil, fmt.Errorf("store: list paths: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("store: scan path: %w", err)
		}
		if _, ok := visited[path]; !ok {
			stale = append(stale, path)
		}
	}
	return stale, rows.Err()
}

// UpsertFTSRow writes (or rewrites) the fts row for row.ObjectID.
func UpsertFTSRow(ctx context.Context, tx *sql.Tx, row FTSRow) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM fts WHERE rowid = ?`, row.ObjectID); err != nil {
		return fmt.Errorf("store: clear fts row %d: %w", row.ObjectID, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO fts(rowid, path, name, content) VALUES (?, ?, ?, ?)`,
		row.ObjectID, row.Path, row.Name, row.Content); err != nil {
		return fmt.Errorf("store: insert fts row %d: %w", row.ObjectID, err)
	}
	return nil
}

// InsertEmbedding upserts the embedding row for e.ObjectID.
func InsertEmbedding(ctx context.Context, tx *sql.Tx, e Embedding) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO embedding(object_id, content_hash, vector)
		VALUES (?, ?, ?)
		ON CONFLICT(object_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			vector = excluded.vector
	`, e.ObjectID, e.ContentHash, EncodeVector(e.Vector))
	if err != nil {
		return fmt.Errorf("store: insert embedding %d: %w", e.ObjectID, err)
	}
	return nil
}

// LookupEmbeddingByContentHash finds a previously stored embedding with
// the same content_hash, letting the Indexer reuse vectors
// for unchanged content instead of re-requesting them.
func LookupEmbeddingByContentHash(ctx context.Context, tx *sql.Tx, hash string) (Embedding, bool, error) {
	var e Embedding
	var blob []byte
	err := tx.QueryRowContext(ctx,
		`SELECT object_id, content_hash, vector FROM embedding WHERE content_hash = ? LIMIT 1`, hash,
	).Scan(&e.ObjectID, &e.ContentHash, &blob)
	if err == sql.ErrNoRows {
		return Embedding{}, false, nil
	}
	if err != nil {
		return Embedding{}, false, fmt.Errorf("store: lookup embedding by hash: %w", err)
	}
	vec, err := DecodeVector(blob)
	if err != nil {
		return Embedding{}, false, err
	}
	e.Vector = vec
	return e, true, nil
}

// AllEmbeddings returns every stored embedding row (object_id,
// content_hash, vector).
func AllEmbeddings(ctx context.Context, tx *sql.Tx) ([]Embedding, error) {
	rows, err := tx.QueryContext(ctx, `SELECT object_id, content_hash, vector FROM embedding`)
	if err != nil {
		return nil, fmt.Errorf("store: list embeddings: %w", err)
	}
	defer rows.Close()

	var out []Embedding
	for rows.Next() {
		var e Embedding
		var blob []byte
		if err := rows.Scan(&e.ObjectID, &e.ContentHash, &blob); err != nil {
			return nil, fmt.Errorf("store: scan embedding: %w", err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, err
		}
		e.Vector = vec
		out = append(out, e)
	}
	return out, rows.Err()
}

// ComputeStats summarizes table sizes for the `--stats` surface.
func (s *Store) ComputeStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file`).Scan(&stats.FileCount); err != nil {
		return Stats{}, fmt.Errorf("store: count files: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM object`).Scan(&stats.ObjectCount); err != nil {
		return Stats{}, fmt.Errorf("store: count objects: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding`).Scan(&stats.EmbeddingCount); err != nil {
		return Stats{}, fmt.Errorf("store: count embeddings: %w", err)
	}
	return stats, nil
}

func encodeRows(rows []int) string {
	if len(rows) == 0 {
		return ""
	}
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = strconv.Itoa(r)
	}
	return strings.Join(parts, ",")
}

func decodeRows(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	rows := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		rows = append(rows, n)
	}
	return rows
}

func placeholderList(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
