package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codebased/codebased/internal/search"
	"github.com/codebased/codebased/internal/ui"
)

// searchOptions holds the CLI surface named in spec §6.
type searchOptions struct {
	directory         string
	topK              int
	semantic          bool
	noSemantic        bool
	fullText          bool
	noFullText        bool
	rebuildFaissIndex bool
	cachedOnly        bool
	background        bool
	noBackground      bool
	stats             bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the indexed repository",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.directory, "directory", ".", "repository directory")
	cmd.Flags().IntVar(&opts.topK, "top-k", 10, "maximum number of results")
	cmd.Flags().BoolVar(&opts.semantic, "semantic", true, "enable the semantic branch")
	cmd.Flags().BoolVar(&opts.noSemantic, "no-semantic", false, "disable the semantic branch")
	cmd.Flags().BoolVar(&opts.fullText, "full-text", true, "enable the full-text branch")
	cmd.Flags().BoolVar(&opts.noFullText, "no-full-text", false, "disable the full-text branch")
	cmd.Flags().BoolVar(&opts.rebuildFaissIndex, "rebuild-faiss-index", false, "reload every object's embedding into the Vector Index, even if unchanged")
	cmd.Flags().BoolVar(&opts.cachedOnly, "cached-only", false, "search the existing index without indexing first")
	cmd.Flags().BoolVar(&opts.background, "background", false, "keep watching and indexing after printing results")
	cmd.Flags().BoolVar(&opts.noBackground, "no-background", false, "exit after printing results (default)")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "print index statistics instead of searching")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.noSemantic {
		opts.semantic = false
	}
	if opts.noFullText {
		opts.fullText = false
	}
	if opts.noBackground {
		opts.background = false
	}

	sess, cleanup, err := openSession(ctx, opts.directory)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return err
	}
	defer cleanup()

	if !opts.cachedOnly {
		renderer := ui.NewRenderer(ui.NewConfig(cmd.ErrOrStderr()))
		_ = renderer.Start(ctx)
		start := time.Now()
		err := sess.ensureIndexed(ctx, opts.rebuildFaissIndex)
		renderer.Complete(ui.CompletionStats{Duration: time.Since(start)})
		_ = renderer.Stop()
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
	}

	if opts.stats {
		stats, err := sess.store.ComputeStats(ctx)
		if err != nil {
			return fmt.Errorf("compute stats: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "files: %d\nobjects: %d\nembeddings: %d\nvectors: %d\n",
			stats.FileCount, stats.ObjectCount, stats.EmbeddingCount, sess.vectors.Len())
	} else if query != "" {
		results, err := sess.engine.Search(ctx, search.Flags{
			Query:    query,
			TopK:     opts.topK,
			Semantic: opts.semantic,
			FullText: opts.fullText,
		})
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		ui.PrintResults(cmd.OutOrStdout(), results, ui.IsTTY(cmd.OutOrStdout()) && !ui.DetectNoColor())
	}

	if opts.background {
		bgCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return sess.runBackground(bgCtx)
	}
	return nil
}
