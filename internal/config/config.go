package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

const (
	DefaultTopK            = 10
	DefaultThreshold       = 0.3
	DefaultMaxContextChars = 2000
	DefaultMaxIter         = 5
	DefaultNoteThreshold   = 8
	DefaultBackendTimeout  = 60
	DefaultChunkSize       = 500
	DefaultOverlap         = 50
	DefaultCacheMaxAgeDays = 30
)

var DefaultPriority = []string{"github", "openai", "gemini"}

type Config struct {
	LogConfig   logger.LogConfig `json:"log_config"`
	EnvFile     string           `json:"env_file"`
	Database    DatabaseConfig   `json:"database"`
	Index       IndexConfig      `json:"index"`
	DocStore    DocStoreConfig   `json:"doc_store"`
	Embedder    EmbedderConfig   `json:"embedder"`
	Backends    BackendsConfig   `json:"backends"`
	Stages      StagesConfig     `json:"stages"`
	Retrieval   RetrievalConfig  `json:"retrieval"`
	Refinement  RefinementConfig `json:"refinement"`
	Indexer     IndexerConfig    `json:"indexer"`
	PromptsPath string           `json:"prompts_path"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

type IndexConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type DocStoreConfig struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	PlainText bool        `json:"plain_text"`
}

type EmbedderConfig struct {
	Provider     string      `json:"provider"`
	Model        string      `json:"model"`
	Data         interface{} `json:"data"`
	CacheSize    int         `json:"cache_size"`
	CacheTTLSecs int         `json:"cache_ttl_secs"`
	DBCache      bool        `json:"db_cache"`
}

type BackendsConfig struct {
	Priority    []string               `json:"priority"`
	Providers   map[string]interface{} `json:"providers"`
	TimeoutSecs int                    `json:"timeout_secs"`
	Retry       RetryConfig            `json:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int `json:"max_attempts"`
	InitialDelayMs int `json:"initial_delay_ms"`
	MaxDelayMs     int `json:"max_delay_ms"`
}

type StageConfig struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	AllowFallback *bool  `json:"allow_fallback"`
}

func (s StageConfig) FallbackEnabled() bool {
	return s.AllowFallback == nil || *s.AllowFallback
}

type StagesConfig struct {
	Normalizer StageConfig `json:"normalizer"`
	Planner    StageConfig `json:"planner"`
	Drafter    StageConfig `json:"drafter"`
	Critic     StageConfig `json:"critic"`
}

type RetrievalConfig struct {
	TopK              int      `json:"top_k"`
	Threshold         *float64 `json:"threshold"`
	NormalizeQuery    *bool    `json:"normalize_query"`
	Workers           int      `json:"workers"`
	ParallelMinChunks int      `json:"parallel_min_chunks"`
	MaxContextChars   int      `json:"max_context_chars"`
}

func (r RetrievalConfig) ScoreThreshold() float64 {
	if r.Threshold == nil {
		return DefaultThreshold
	}
	return *r.Threshold
}

func (r RetrievalConfig) QueryNormalization() bool {
	return r.NormalizeQuery == nil || *r.NormalizeQuery
}

type RefinementConfig struct {
	MaxIter       int     `json:"max_iter"`
	NoteThreshold *float64 `json:"note_threshold"`
}

func (r RefinementConfig) StopScore() float64 {
	if r.NoteThreshold == nil {
		return DefaultNoteThreshold
	}
	return *r.NoteThreshold
}

type IndexerConfig struct {
	DocsDir              string `json:"docs_dir"`
	ChunkSize            int    `json:"chunk_size"`
	Overlap              int    `json:"overlap"`
	DelayMs              int    `json:"delay_ms"`
	RebuildSchedule      string `json:"rebuild_schedule"`
	CacheMaxAgeDays      int    `json:"cache_max_age_days"`
	CacheCleanupSchedule string `json:"cache_cleanup_schedule"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	c.Index.Type = strings.ToLower(strings.TrimSpace(c.Index.Type))
	if c.Index.Type == "" {
		c.Index.Type = "file"
	}
	switch c.Index.Type {
	case "file":
		if c.Index.Data == nil {
			return fmt.Errorf("index.data is required for file index")
		}
	case "postgres":
		if !c.Database.Enabled() {
			return fmt.Errorf("database is required for postgres index")
		}
	default:
		return fmt.Errorf("index.type must be file or postgres")
	}
	c.DocStore.Type = strings.ToLower(strings.TrimSpace(c.DocStore.Type))
	if c.DocStore.Type == "" {
		c.DocStore.Type = "local"
	}
	if c.DocStore.Type != "local" && c.DocStore.Type != "s3" {
		return fmt.Errorf("doc_store.type must be local or s3")
	}
	if c.Embedder.Provider == "" {
		return fmt.Errorf("embedder.provider is required")
	}
	if c.Embedder.Model == "" {
		return fmt.Errorf("embedder.model is required")
	}
	if c.Embedder.DBCache && !c.Database.Enabled() {
		return fmt.Errorf("database is required for embedder.db_cache")
	}
	if len(c.Backends.Priority) == 0 {
		c.Backends.Priority = append([]string(nil), DefaultPriority...)
	}
	if c.Backends.TimeoutSecs <= 0 {
		c.Backends.TimeoutSecs = DefaultBackendTimeout
	}
	if c.Backends.Retry.MaxAttempts <= 0 {
		c.Backends.Retry.MaxAttempts = 1
	}
	for _, stage := range []*StageConfig{&c.Stages.Normalizer, &c.Stages.Planner, &c.Stages.Drafter, &c.Stages.Critic} {
		if stage.Provider == "" {
			stage.Provider = "auto"
		}
		if stage.Model == "" {
			stage.Model = "gpt-4o-mini"
		}
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = DefaultTopK
	}
	if c.Retrieval.MaxContextChars <= 0 {
		c.Retrieval.MaxContextChars = DefaultMaxContextChars
	}
	if c.Retrieval.ParallelMinChunks <= 0 {
		c.Retrieval.ParallelMinChunks = 4096
	}
	if c.Refinement.MaxIter <= 0 {
		c.Refinement.MaxIter = DefaultMaxIter
	}
	if c.Refinement.NoteThreshold != nil && (*c.Refinement.NoteThreshold < 0 || *c.Refinement.NoteThreshold > 10) {
		return fmt.Errorf("refinement.note_threshold must be in [0, 10]")
	}
	if c.Indexer.ChunkSize <= 0 {
		c.Indexer.ChunkSize = DefaultChunkSize
		if c.Indexer.Overlap == 0 {
			c.Indexer.Overlap = DefaultOverlap
		}
	}
	if c.Indexer.Overlap < 0 || c.Indexer.Overlap >= c.Indexer.ChunkSize {
		return fmt.Errorf("indexer.overlap must be in [0, chunk_size)")
	}
	if c.Indexer.CacheMaxAgeDays <= 0 {
		c.Indexer.CacheMaxAgeDays = DefaultCacheMaxAgeDays
	}
	return nil
}
