package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"index": {"type": "file", "data": {"path": "index.jsonl"}},
		"doc_store": {"data": {"dir": "data/raw"}},
		"embedder": {"provider": "openai", "model": "text-embedding-3-small"}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogConfig.Level)
	require.Equal(t, "local", cfg.DocStore.Type)
	require.Equal(t, DefaultPriority, cfg.Backends.Priority)
	require.Equal(t, DefaultBackendTimeout, cfg.Backends.TimeoutSecs)
	require.Equal(t, 1, cfg.Backends.Retry.MaxAttempts)
	require.Equal(t, DefaultTopK, cfg.Retrieval.TopK)
	require.Equal(t, DefaultThreshold, cfg.Retrieval.ScoreThreshold())
	require.True(t, cfg.Retrieval.QueryNormalization())
	require.Equal(t, DefaultMaxContextChars, cfg.Retrieval.MaxContextChars)
	require.Equal(t, DefaultMaxIter, cfg.Refinement.MaxIter)
	require.Nil(t, cfg.Refinement.NoteThreshold)
	require.Equal(t, float64(DefaultNoteThreshold), cfg.Refinement.StopScore())
	require.Equal(t, "auto", cfg.Stages.Critic.Provider)
	require.True(t, cfg.Stages.Critic.FallbackEnabled())
	require.Equal(t, DefaultChunkSize, cfg.Indexer.ChunkSize)
	require.Equal(t, DefaultOverlap, cfg.Indexer.Overlap)
	require.Equal(t, DefaultCacheMaxAgeDays, cfg.Indexer.CacheMaxAgeDays)
}

func TestLoadKeepsExplicitZeroThreshold(t *testing.T) {
	path := writeConfig(t, `{
		"index": {"data": {"path": "index.jsonl"}},
		"embedder": {"provider": "openai", "model": "m"},
		"retrieval": {"threshold": 0, "normalize_query": false},
		"refinement": {"note_threshold": 0},
		"stages": {"drafter": {"provider": "github", "allow_fallback": false}}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 0.0, cfg.Retrieval.ScoreThreshold())
	require.False(t, cfg.Retrieval.QueryNormalization())
	require.NotNil(t, cfg.Refinement.NoteThreshold)
	require.Equal(t, 0.0, cfg.Refinement.StopScore())
	require.Equal(t, "github", cfg.Stages.Drafter.Provider)
	require.False(t, cfg.Stages.Drafter.FallbackEnabled())
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"postgres without db": `{"index": {"type": "postgres"}, "embedder": {"provider": "openai", "model": "m"}}`,
		"bad index type":      `{"index": {"type": "faiss"}, "embedder": {"provider": "openai", "model": "m"}}`,
		"missing embedder":    `{"index": {"data": {}}}`,
		"overlap too big":     `{"index": {"data": {}}, "embedder": {"provider": "openai", "model": "m"}, "indexer": {"chunk_size": 10, "overlap": 10}}`,
		"negative note":       `{"index": {"data": {}}, "embedder": {"provider": "openai", "model": "m"}, "refinement": {"note_threshold": -1}}`,
		"bad doc store":       `{"index": {"data": {}}, "doc_store": {"type": "ftp"}, "embedder": {"provider": "openai", "model": "m"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}
