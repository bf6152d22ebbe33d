package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/newsdesk/internal/ai"
	"github.com/xxxsen/newsdesk/internal/config"
	"github.com/xxxsen/newsdesk/internal/db"
	"github.com/xxxsen/newsdesk/internal/docstore"
	"github.com/xxxsen/newsdesk/internal/embedcache"
	"github.com/xxxsen/newsdesk/internal/index"
	"github.com/xxxsen/newsdesk/internal/normalizer"
	"github.com/xxxsen/newsdesk/internal/prompt"
	"github.com/xxxsen/newsdesk/internal/refine"
	"github.com/xxxsen/newsdesk/internal/repo"
	"github.com/xxxsen/newsdesk/internal/retrieval"
	"github.com/xxxsen/newsdesk/internal/stage"
)

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	log := logutil.GetLogger(context.Background())
	log.Info("config loaded", zap.String("config", configPath))
	if cfg.EnvFile != "" {
		if err := godotenv.Load(cfg.EnvFile); err != nil {
			log.Warn("env file not loaded", zap.String("env_file", cfg.EnvFile), zap.Error(err))
		}
	}
	return cfg, nil
}

// app holds the shared collaborators of one process.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	idx      *index.Index
	embedder ai.IEmbedder
	store    docstore.Store
	prompts  *prompt.Templates
	backends *ai.Backends
	engine   *retrieval.Engine
}

func (a *app) Close() {
	if a.idx != nil {
		a.idx.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if !cfg.Database.Enabled() {
		return nil, nil
	}
	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return conn, nil
}

func buildEmbedder(cfg *config.Config, conn *sql.DB) (ai.IEmbedder, error) {
	args := cfg.Embedder.Data
	if args == nil {
		args = cfg.Backends.Providers[cfg.Embedder.Provider]
	}
	p, err := ai.NewEmbedProvider(cfg.Embedder.Provider, args)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	e := ai.NewEmbedder(p, cfg.Embedder.Model)
	if cfg.Embedder.DBCache && conn != nil {
		e = embedcache.WrapDBCacheToEmbedder(e, repo.NewEmbeddingCacheRepo(conn))
	}
	return embedcache.WithQueryCache(e, cfg.Embedder.CacheSize, time.Duration(cfg.Embedder.CacheTTLSecs)*time.Second), nil
}

func openIndex(ctx context.Context, cfg *config.Config, conn *sql.DB) (*index.Index, error) {
	var args interface{} = cfg.Index.Data
	if cfg.Index.Type == "postgres" {
		args = index.PostgresArgs{DB: conn}
	}
	return index.Open(ctx, cfg.Index.Type, args, index.Options{
		Workers:           cfg.Retrieval.Workers,
		ParallelMinChunks: cfg.Retrieval.ParallelMinChunks,
	})
}

func stageBackend(s config.StageConfig) ai.StageBackend {
	return ai.StageBackend{Provider: s.Provider, Model: s.Model, AllowFallback: s.FallbackEnabled()}
}

// newApp wires retrieval. Generation backends are resolved lazily by
// the commands that need them.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()
	var err error
	if a.db, err = openDatabase(ctx, cfg); err != nil {
		return nil, err
	}
	if a.idx, err = openIndex(ctx, cfg, a.db); err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if a.embedder, err = buildEmbedder(cfg, a.db); err != nil {
		return nil, err
	}
	if a.store, err = docstore.New(cfg.DocStore); err != nil {
		return nil, fmt.Errorf("open doc store: %w", err)
	}
	if a.prompts, err = prompt.Load(cfg.PromptsPath); err != nil {
		return nil, err
	}
	a.backends = ai.NewBackends(cfg.Backends.Priority, cfg.Backends.Providers, ai.GeneratorOptions{
		Timeout:      time.Duration(cfg.Backends.TimeoutSecs) * time.Second,
		MaxAttempts:  cfg.Backends.Retry.MaxAttempts,
		InitialDelay: time.Duration(cfg.Backends.Retry.InitialDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Backends.Retry.MaxDelayMs) * time.Millisecond,
	})
	a.engine = retrieval.NewEngine(a.idx, a.embedder, a.store, retrieval.Options{
		TopK:      cfg.Retrieval.TopK,
		Threshold: cfg.Retrieval.ScoreThreshold(),
	})
	logutil.GetLogger(ctx).Info("retrieval ready",
		zap.String("index", cfg.Index.Type),
		zap.Int("chunks", a.idx.Len()),
		zap.Int("dim", a.idx.Dim()),
		zap.String("doc_store", cfg.DocStore.Type),
	)
	ok = true
	return a, nil
}

func (a *app) enableNormalizer(ctx context.Context) error {
	if !a.cfg.Retrieval.QueryNormalization() {
		return nil
	}
	n, err := normalizer.NewFromBackends(ctx, a.backends, stageBackend(a.cfg.Stages.Normalizer), a.prompts.Normalizer)
	if err != nil {
		return err
	}
	a.engine.WithRewriter(n)
	return nil
}

func (a *app) selectStage(ctx context.Context, name string, s config.StageConfig) (ai.IGenerator, error) {
	gen, provider, err := a.backends.Select(ctx, stageBackend(s))
	if err != nil {
		return nil, fmt.Errorf("select %s backend: %w", name, err)
	}
	logutil.GetLogger(ctx).Info("stage backend selected", zap.String("stage", name), zap.String("provider", provider), zap.String("model", s.Model))
	return gen, nil
}

func (a *app) controller(ctx context.Context) (*refine.Controller, error) {
	if err := a.enableNormalizer(ctx); err != nil {
		return nil, err
	}
	planGen, err := a.selectStage(ctx, "planner", a.cfg.Stages.Planner)
	if err != nil {
		return nil, err
	}
	draftGen, err := a.selectStage(ctx, "drafter", a.cfg.Stages.Drafter)
	if err != nil {
		return nil, err
	}
	criticGen, err := a.selectStage(ctx, "critic", a.cfg.Stages.Critic)
	if err != nil {
		return nil, err
	}
	maxChars := a.cfg.Retrieval.MaxContextChars
	stopScore := a.cfg.Refinement.StopScore()
	return refine.NewController(
		a.engine,
		stage.NewPlanStage(planGen, a.prompts.Planner, maxChars),
		stage.NewDraftStage(draftGen, a.prompts.Drafter, maxChars),
		stage.NewCriticStage(criticGen, a.prompts.Critic),
		refine.Options{MaxIter: a.cfg.Refinement.MaxIter, NoteThreshold: &stopScore},
	), nil
}
