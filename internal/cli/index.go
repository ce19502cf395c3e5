package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"ragctx/internal/adapter/fs"
	"ragctx/internal/usecase"
)

var indexRebuild bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Embed and store passages for retrieval",
	Long: `Index blog posts (JSON) and text files in the specified directory.
Each document is chunked, embedded and written to the configured passage
store. With the bolt backend the index is stored in .ragctx/index.db within
the root directory.

Examples:
  ragctx index .                 # Index current directory
  ragctx index ./posts --rebuild # Drop the existing index first`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "clear the existing index before indexing")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	out := cmd.OutOrStdout()

	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	counter, err := newCounter(cfg)
	if err != nil {
		return err
	}
	chk, err := newChunker(cfg, counter)
	if err != nil {
		return err
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, GetRootDir(), embedder.Dimension(), true)
	if err != nil {
		return err
	}
	defer st.Close()

	settings := indexSettings(cfg, embedder)
	if st.bolt != nil {
		migration, err := st.bolt.CheckMigration(settings)
		if err != nil {
			return fmt.Errorf("failed to check migration: %w", err)
		}
		if migration.NeedsRebuild || indexRebuild {
			reason := migration.Reason
			if reason == "" {
				reason = "requested"
			}
			log.Info("clearing index", "reason", reason)
			if err := st.bolt.Clear(); err != nil {
				return fmt.Errorf("failed to clear index: %w", err)
			}
		}
	} else if cfg.Store.Backend == "memory" {
		log.Warn("memory store is discarded when the command exits")
	}

	walker := fs.NewWalker(cfg.Index.Includes, cfg.Index.Excludes)
	if err := walker.Validate(); err != nil {
		return err
	}
	indexUC := usecase.NewIndexUseCase(walker, walker, chk, embedder, st, usecase.IndexOptions{
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
	}, log)

	fmt.Fprintf(out, "Scanning %s...\n", path)

	var (
		bar       *progressbar.ProgressBar
		barMu     sync.Mutex
		startTime time.Time
	)
	progress := func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(cmd.ErrOrStderr())
				}),
			)
		}
		_ = bar.Set(done)

		if done > 0 && done < total {
			rate := float64(done) / time.Since(startTime).Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	result, err := indexUC.Index(ctx, path, progress)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	if st.bolt != nil {
		if err := st.bolt.Stamp(settings); err != nil {
			return fmt.Errorf("failed to update schema info: %w", err)
		}
	}
	if err := invalidateAnswers(ctx); err != nil {
		log.Warn("failed to invalidate answer cache", "error", err)
	}

	total, err := st.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count passages: %w", err)
	}

	fmt.Fprintf(out, "\nIndexing complete:\n")
	fmt.Fprintf(out, "  Files indexed:  %d\n", result.FilesIndexed)
	fmt.Fprintf(out, "  Files failed:   %d\n", result.FilesFailed)
	fmt.Fprintf(out, "  Documents:      %d\n", result.Documents)
	fmt.Fprintf(out, "  Passages:       %d\n", result.Passages)
	fmt.Fprintf(out, "  Stored total:   %d\n", total)
	fmt.Fprintf(out, "  Duration:       %s\n", formatDuration(result.Duration))

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}

	fmt.Fprintf(out, "\nIndex stored at: %s\n", st.path)
	return nil
}

// invalidateAnswers drops cached answers, which may cite passages that
// changed.
func invalidateAnswers(ctx context.Context) error {
	answers, closeCache, err := newAnswerCache(ctx, GetConfig())
	if err != nil {
		return err
	}
	defer closeCache()
	if answers == nil {
		return nil
	}
	return answers.Invalidate(ctx)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
