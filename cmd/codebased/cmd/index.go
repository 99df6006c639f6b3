package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/codebased/codebased/internal/embedsched"
	"github.com/codebased/codebased/internal/ignore"
	"github.com/codebased/codebased/internal/indexer"
	"github.com/codebased/codebased/internal/lock"
	"github.com/codebased/codebased/internal/logging"
	"github.com/codebased/codebased/internal/object"
	"github.com/codebased/codebased/internal/provider"
	"github.com/codebased/codebased/internal/repo"
	"github.com/codebased/codebased/internal/search"
	"github.com/codebased/codebased/internal/store"
	"github.com/codebased/codebased/internal/watcher"
	"github.com/codebased/codebased/internal/worker"
)

// session bundles every collaborator a command needs, opened against
// one located repository.
type session struct {
	repo       repo.Repo
	store      *store.Store
	vectors    *store.VectorIndex
	parser     *object.Parser
	scheduler  *embedsched.Scheduler
	oracle     *ignore.Oracle
	provider   *provider.Provider
	indexerCfg indexer.Config
	indexer    *indexer.Indexer // RebuildVectorIndex: false, used by the Background Worker
	engine     *search.Engine
	lock       *lock.WriterLock
	logger     *slog.Logger
}

// openSession locates the repository rooted above dir, acquires the
// advisory writer lock, and wires every collaborator named in
// SPEC_FULL.md's package layout.
func openSession(ctx context.Context, dir string) (*session, func(), error) {
	r, err := repo.Find(dir)
	if err != nil {
		return nil, nil, err
	}
	if err := r.Ensure(); err != nil {
		return nil, nil, fmt.Errorf("prepare private directory: %w", err)
	}

	cfg, err := repo.LoadConfig(filepath.Join(r.Root, ".codebased.yml"))
	if err != nil {
		cfg = repo.DefaultConfig()
	}

	logger, logCleanup, err := logging.Setup(logging.DefaultConfig(r.PrivateDir))
	if err != nil {
		logger = slog.Default()
		logCleanup = func() {}
	}

	wlock := lock.New(r.LockPath())
	acquired, err := wlock.TryLock()
	if err != nil {
		logCleanup()
		return nil, nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	if !acquired {
		logCleanup()
		return nil, nil, fmt.Errorf("another codebased process owns %s", r.PrivateDir)
	}

	s, err := store.Open(ctx, r.DBPath())
	if err != nil {
		_ = wlock.Unlock()
		logCleanup()
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	vectors := store.NewVectorIndex(cfg.Dim)
	if _, statErr := os.Stat(r.VectorIndexPath()); statErr == nil {
		if loadErr := vectors.Load(r.VectorIndexPath()); loadErr != nil {
			logger.Warn("vector index load failed, starting empty", slog.String("error", loadErr.Error()))
		}
	}

	oracle, err := ignore.NewOracle(r.IgnoreFilePath(), repo.PrivateDirName)
	if err != nil {
		oracle, _ = ignore.NewOracle("", repo.PrivateDirName)
	}

	prov := provider.New(provider.Config{
		Endpoint:   os.Getenv("CODEBASED_EMBEDDING_ENDPOINT"),
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.Dim,
		APIKey:     os.Getenv("CODEBASED_EMBEDDING_API_KEY"),
	}, nil)

	scheduler := embedsched.New(embedsched.DefaultConfig(cfg.Dim), prov)

	engine, err := search.New(search.Config{
		Root:      r.Root,
		Store:     s,
		Vectors:   vectors,
		Embedder:  prov,
		CacheSize: 256,
	})
	if err != nil {
		_ = s.Close()
		_ = wlock.Unlock()
		logCleanup()
		return nil, nil, fmt.Errorf("init search engine: %w", err)
	}

	parser := object.NewParser()

	indexerCfg := indexer.Config{
		Root:            r.Root,
		PrivateDirName:  repo.PrivateDirName,
		VCSMarkerName:   repo.VCSMarker,
		VectorIndexPath: r.VectorIndexPath(),
		Store:           s,
		Vectors:         vectors,
		Parser:          parser,
		Scheduler:       scheduler,
		Oracle:          oracle,
		OnCommit:        engine.Invalidate,
	}

	sess := &session{
		repo:       r,
		store:      s,
		vectors:    vectors,
		parser:     parser,
		scheduler:  scheduler,
		oracle:     oracle,
		provider:   prov,
		indexerCfg: indexerCfg,
		indexer:    indexer.New(indexerCfg),
		engine:     engine,
		lock:       wlock,
		logger:     logger,
	}

	cleanup := func() {
		_ = sess.store.Close()
		_ = sess.lock.Unlock()
		logCleanup()
	}
	return sess, cleanup, nil
}

// ensureIndexed runs a total index if the store has never been
// populated, or an incremental one otherwise; rebuildVectors forces
// every object's embedding to be reloaded into the Vector Index even
// when its content is unchanged.
func (sess *session) ensureIndexed(ctx context.Context, rebuildVectors bool) error {
	stats, err := sess.store.ComputeStats(ctx)
	if err != nil {
		return fmt.Errorf("compute stats: %w", err)
	}

	mode := indexer.ModeIncremental
	if stats.FileCount == 0 {
		mode = indexer.ModeTotal
	}

	ix := sess.indexer
	if rebuildVectors {
		cfg := sess.indexerCfg
		cfg.RebuildVectorIndex = true
		ix = indexer.New(cfg)
	}
	return ix.Run(ctx, []string{""}, mode)
}

// runBackground starts the Filesystem Watcher and Background Worker,
// keeping the index live until ctx is cancelled (spec §4.6/§4.7).
func (sess *session) runBackground(ctx context.Context) error {
	w := watcher.New(sess.logger, watcher.DefaultOptions())
	defer func() { _ = w.Stop() }()

	bw := worker.New(worker.Config{
		PrivateDirName: repo.PrivateDirName,
		VCSMarkerName:  repo.VCSMarker,
		Oracle:         sess.oracle,
		Indexer:        sess.indexer,
		Logger:         sess.logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Start(gctx, sess.repo.Root); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return bw.Run(gctx, w.Events())
	})
	return g.Wait()
}
