package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/newsdesk/internal/config"
	"github.com/xxxsen/newsdesk/internal/docstore"
	"github.com/xxxsen/newsdesk/internal/index"
	"github.com/xxxsen/newsdesk/internal/indexer"
	"github.com/xxxsen/newsdesk/internal/job"
	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
	"github.com/xxxsen/newsdesk/internal/repo"
	"github.com/xxxsen/newsdesk/internal/schedule"
)

type indexFlags struct {
	dir      string
	out      string
	postgres bool
}

func (f *indexFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dir, "dir", "", "document directory (default indexer.docs_dir)")
	cmd.Flags().StringVar(&f.out, "out", "", "JSONL index file (default index.data.path)")
	cmd.Flags().BoolVar(&f.postgres, "postgres", false, "write chunks to the chunk_embeddings table")
}

func newIndexCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "build and maintain the embedding index",
	}
	cmd.AddCommand(newIndexBuildCmd(configPath), newIndexWatchCmd(configPath), newIndexChunkCmd(configPath))
	return cmd
}

// indexTarget resolves where chunks go. Postgres is used when asked for
// or when the configured index reads from it.
func indexTarget(cfg *config.Config, f *indexFlags) (string, bool, error) {
	dir := f.dir
	if dir == "" {
		dir = cfg.Indexer.DocsDir
	}
	if dir == "" {
		return "", false, fmt.Errorf("--dir or indexer.docs_dir is required")
	}
	usePostgres := f.postgres || (f.out == "" && cfg.Index.Type == "postgres")
	if usePostgres && !cfg.Database.Enabled() {
		return "", false, fmt.Errorf("database is required to write chunks to postgres")
	}
	if !usePostgres && f.out == "" {
		f.out = indexFilePath(cfg)
		if f.out == "" {
			return "", false, fmt.Errorf("--out or index.data.path is required")
		}
	}
	return dir, usePostgres, nil
}

func indexFilePath(cfg *config.Config) string {
	data, ok := cfg.Index.Data.(map[string]interface{})
	if !ok {
		return ""
	}
	path, _ := data["path"].(string)
	return path
}

func sinkFactory(conn *sql.DB, usePostgres bool, out string) job.SinkFactory {
	return func() (indexer.Sink, error) {
		if usePostgres {
			return indexer.NewRepoSink(repo.NewChunkRepo(conn)), nil
		}
		return indexer.NewFileSink(out), nil
	}
}

func indexerOptions(cfg *config.Config) indexer.Options {
	return indexer.Options{
		ChunkSize: cfg.Indexer.ChunkSize,
		Overlap:   cfg.Indexer.Overlap,
		Delay:     time.Duration(cfg.Indexer.DelayMs) * time.Millisecond,
	}
}

func newIndexBuildCmd(configPath *string) *cobra.Command {
	flags := &indexFlags{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "embed a document directory into the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			dir, usePostgres, err := indexTarget(cfg, flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			conn, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			if conn != nil {
				defer conn.Close()
			}
			embedder, err := buildEmbedder(cfg, conn)
			if err != nil {
				return err
			}
			sink, err := sinkFactory(conn, usePostgres, flags.out)()
			if err != nil {
				return err
			}
			stats, err := indexer.NewBuilder(embedder, sink, indexerOptions(cfg)).Build(ctx, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents, %d chunks, skipped %d\n", stats.Documents, stats.Chunks, stats.Skipped)
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func newIndexWatchCmd(configPath *string) *cobra.Command {
	var (
		flags = &indexFlags{}
		now   bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "rebuild the index and prune the embedding cache on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Indexer.RebuildSchedule == "" && cfg.Indexer.CacheCleanupSchedule == "" {
				return fmt.Errorf("indexer.rebuild_schedule or indexer.cache_cleanup_schedule is required")
			}
			ctx := cmd.Context()
			conn, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			if conn != nil {
				defer conn.Close()
			}
			sched := schedule.NewCronScheduler()
			var rebuild schedule.Job
			if cfg.Indexer.RebuildSchedule != "" {
				dir, usePostgres, err := indexTarget(cfg, flags)
				if err != nil {
					return err
				}
				embedder, err := buildEmbedder(cfg, conn)
				if err != nil {
					return err
				}
				rebuild = job.NewIndexRebuildJob(embedder, sinkFactory(conn, usePostgres, flags.out), dir, indexerOptions(cfg))
				if err := sched.AddJob(rebuild, cfg.Indexer.RebuildSchedule); err != nil {
					return err
				}
			}
			if cfg.Indexer.CacheCleanupSchedule != "" && conn != nil {
				cleanup := job.NewEmbeddingCacheCleanupJob(repo.NewEmbeddingCacheRepo(conn), cfg.Indexer.CacheMaxAgeDays)
				if err := sched.AddJob(cleanup, cfg.Indexer.CacheCleanupSchedule); err != nil {
					return err
				}
			}
			if now && rebuild != nil {
				if err := sched.RunNow(ctx, rebuild); err != nil {
					return err
				}
			}
			sched.Start(ctx)
			logNextRuns(ctx, sched, job.IndexRebuildJobName, job.EmbeddingCacheCleanupJobName)
			logutil.GetLogger(ctx).Info("index watch started")
			<-ctx.Done()
			sched.Stop()
			logutil.GetLogger(context.Background()).Info("index watch stopped", zap.Error(context.Cause(ctx)))
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&now, "now", false, "rebuild once before waiting for the schedule")
	return cmd
}

func logNextRuns(ctx context.Context, sched *schedule.CronScheduler, names ...string) {
	logger := logutil.GetLogger(ctx)
	for _, name := range names {
		if next, ok := sched.Next(name); ok {
			logger.Info("job next run", zap.String("job", name), zap.Time("next", next))
		}
	}
}

// printSourceChunks lists the indexed chunks of one source.
func printSourceChunks(w io.Writer, idx *index.Index, source string) error {
	chunks := idx.ChunksOf(source)
	if len(chunks) == 0 {
		return fmt.Errorf("source %s is not indexed: %w", source, appErr.ErrNotFound)
	}
	for _, c := range chunks {
		fmt.Fprintf(w, "%s\t%d\n", c.SourceID, c.ChunkIndex)
	}
	return nil
}

func newIndexChunkCmd(configPath *string) *cobra.Command {
	var (
		source string
		chunk  int
	)
	cmd := &cobra.Command{
		Use:   "chunk",
		Short: "print the text of one indexed chunk, or list a source's chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" {
				return fmt.Errorf("--source is required")
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("chunk") {
				ctx := cmd.Context()
				conn, err := openDatabase(ctx, cfg)
				if err != nil {
					return err
				}
				if conn != nil {
					defer conn.Close()
				}
				idx, err := openIndex(ctx, cfg, conn)
				if err != nil {
					return err
				}
				defer idx.Close()
				return printSourceChunks(cmd.OutOrStdout(), idx, source)
			}
			store, err := docstore.New(cfg.DocStore)
			if err != nil {
				return err
			}
			text, err := indexer.ChunkText(cmd.Context(), store, source, chunk, indexerOptions(cfg))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source id of the document")
	cmd.Flags().IntVar(&chunk, "chunk", 0, "chunk index; omit to list the chunks of the source")
	return cmd
}
