package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/newsdesk/internal/model"
	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	conn, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = conn.Exec(`CREATE EXTENSION IF NOT EXISTS vector`)
	require.NoError(t, err)
	_, err = conn.Exec(`CREATE TABLE IF NOT EXISTS chunk_embeddings (
		id BIGSERIAL PRIMARY KEY, source TEXT NOT NULL, chunk_index INTEGER NOT NULL,
		embedding vector NOT NULL, UNIQUE (source, chunk_index))`)
	require.NoError(t, err)
	_, err = conn.Exec(`CREATE TABLE IF NOT EXISTS embedding_cache (
		model_name TEXT NOT NULL, content_hash TEXT NOT NULL, embedding vector NOT NULL,
		ctime BIGINT NOT NULL, PRIMARY KEY (model_name, content_hash))`)
	require.NoError(t, err)
	_, err = conn.Exec(`DELETE FROM chunk_embeddings WHERE source LIKE 'repo-test-%'`)
	require.NoError(t, err)
	return conn
}

func TestChunkRepoReplaceAndList(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	r := NewChunkRepo(conn)

	require.NoError(t, r.ReplaceSource(ctx, "repo-test-a", []model.Chunk{
		{ChunkIndex: 0, Vector: []float32{1, 0}},
		{ChunkIndex: 1, Vector: []float32{0, 1}},
	}))
	require.NoError(t, r.ReplaceSource(ctx, "repo-test-a", []model.Chunk{
		{ChunkIndex: 0, Vector: []float32{0.6, 0.8}},
	}))
	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	var mine []model.Chunk
	for _, c := range all {
		if c.SourceID == "repo-test-a" {
			mine = append(mine, c)
		}
	}
	require.Len(t, mine, 1)
	require.InDeltaSlice(t, []float32{0.6, 0.8}, mine[0].Vector, 1e-6)
}

func TestEmbeddingCacheRepo(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	r := NewEmbeddingCacheRepo(conn)

	_, ok, err := r.Get(ctx, "repo-test-model", "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, r.Save(ctx, &model.EmbeddingCache{ModelName: "repo-test-model", ContentHash: "h1", Embedding: []float32{1, 2}, Ctime: 10}))
	got, ok, err := r.Get(ctx, "repo-test-model", "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float32{1, 2}, got)

	n, err := r.DeleteBefore(ctx, 11)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, int64(1))
}

func TestBuildChunkPage(t *testing.T) {
	q, args, err := buildChunkPage(2000, 1000)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(q, "LIMIT $1 OFFSET $2"), q)
	require.Contains(t, q, "ORDER BY id asc")
	require.Equal(t, []interface{}{uint(1000), uint(2000)}, args)
}

func TestInsertErrorMapsUniqueViolation(t *testing.T) {
	err := insertError("a.txt", fmt.Errorf("exec: %w", &pq.Error{Code: "23505"}))
	require.True(t, appErr.IsConflict(err))
	require.Contains(t, err.Error(), "a.txt")

	boom := errors.New("connection reset")
	err = insertError("a.txt", boom)
	require.False(t, appErr.IsConflict(err))
	require.ErrorIs(t, err, boom)
}

func TestChunkRepoDuplicateIndexConflicts(t *testing.T) {
	conn := openTestDB(t)
	r := NewChunkRepo(conn)
	err := r.ReplaceSource(context.Background(), "repo-test-dup", []model.Chunk{
		{ChunkIndex: 0, Vector: []float32{1, 0}},
		{ChunkIndex: 0, Vector: []float32{0, 1}},
	})
	require.True(t, appErr.IsConflict(err))
}
