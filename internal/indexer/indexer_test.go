package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/newsdesk/internal/docstore"
	"github.com/xxxsen/newsdesk/internal/index"
	"github.com/xxxsen/newsdesk/internal/model"
	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

type countingEmbedder struct {
	texts []string
	err   error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.texts = append(e.texts, text)
	return []float32{float32(len(strings.Fields(text))), 0, 0}, nil
}

func (e *countingEmbedder) ModelName() string {
	return "counting"
}

type memoryWriter struct {
	bySource map[string][]model.Chunk
}

func (m *memoryWriter) ReplaceSource(ctx context.Context, sourceID string, chunks []model.Chunk) error {
	if m.bySource == nil {
		m.bySource = make(map[string][]model.Chunk)
	}
	m.bySource[sourceID] = chunks
	return nil
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "w"
	}
	return strings.Join(parts, " ")
}

func TestTokenize(t *testing.T) {
	require.Equal(t, []string{"hello", "world", "42x", "caf"}, Tokenize("Hello, World! 42x café"))
	require.Empty(t, Tokenize("?! --"))
}

func TestSplitTokens(t *testing.T) {
	tokens := strings.Fields(words(1200))
	windows, err := SplitTokens(tokens, 500, 50)
	require.NoError(t, err)
	require.Len(t, windows, 3)
	require.Len(t, windows[0], 500)
	require.Len(t, windows[1], 500)
	require.Len(t, windows[2], 300)

	windows, err = SplitTokens(tokens[:500], 500, 50)
	require.NoError(t, err)
	require.Len(t, windows, 1)

	windows, err = SplitTokens(nil, 500, 50)
	require.NoError(t, err)
	require.Empty(t, windows)

	_, err = SplitTokens(tokens, 10, 10)
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = SplitTokens(tokens, 0, 0)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestBuildWritesLoadableIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.html"), []byte("<html><script>skip me</script><p>"+words(600)+"</p></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.md"), []byte("# Title\n\nsome *markdown* text"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), []byte("!!!"), 0o644))

	out := filepath.Join(t.TempDir(), "index.jsonl")
	emb := &countingEmbedder{}
	stats, err := NewBuilder(emb, NewFileSink(out), Options{}).Build(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Documents)
	require.Equal(t, 3, stats.Chunks)
	require.Equal(t, 1, stats.Skipped)
	require.Equal(t, "title some markdown text", emb.texts[2])
	for _, text := range emb.texts {
		require.NotContains(t, text, "skip")
	}

	idx, err := index.Open(context.Background(), "file", map[string]interface{}{"path": out}, index.Options{})
	require.NoError(t, err)
	defer idx.Close()
	require.Equal(t, 3, idx.Len())
	chunks := idx.ChunksOf("a.html")
	require.Len(t, chunks, 2)
	require.Equal(t, 1, chunks[1].ChunkIndex)
	require.InDelta(t, 1.0, index.Dot(chunks[0].Vector, chunks[0].Vector), 1e-6)
	require.Len(t, idx.ChunksOf("sub/b.md"), 1)
}

func TestBuildRepoSink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte(words(120)), 0o644))
	w := &memoryWriter{}
	_, err := NewBuilder(&countingEmbedder{}, NewRepoSink(w), Options{ChunkSize: 50, Overlap: 10}).Build(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, w.bySource["a.txt"], 3)
}

type conflictingWriter struct {
	memoryWriter
	conflicts int
	calls     int
}

func (c *conflictingWriter) ReplaceSource(ctx context.Context, sourceID string, chunks []model.Chunk) error {
	c.calls++
	if c.calls <= c.conflicts {
		return fmt.Errorf("chunks of %s: %w", sourceID, appErr.ErrConflict)
	}
	return c.memoryWriter.ReplaceSource(ctx, sourceID, chunks)
}

func TestRepoSinkRetriesConflictOnce(t *testing.T) {
	w := &conflictingWriter{conflicts: 1}
	chunks := []model.Chunk{{SourceID: "a.txt", ChunkIndex: 0}}
	require.NoError(t, NewRepoSink(w).Write(context.Background(), "a.txt", chunks))
	require.Equal(t, 2, w.calls)
	require.Len(t, w.bySource["a.txt"], 1)

	w = &conflictingWriter{conflicts: 2}
	err := NewRepoSink(w).Write(context.Background(), "a.txt", chunks)
	require.True(t, appErr.IsConflict(err))
	require.Equal(t, 2, w.calls)
}

func TestBuildEmbedFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	boom := errors.New("quota")
	_, err := NewBuilder(&countingEmbedder{err: boom}, NewFileSink(filepath.Join(dir, "out.jsonl")), Options{}).Build(context.Background(), dir)
	require.ErrorIs(t, err, boom)
}

func TestChunkText(t *testing.T) {
	dir := t.TempDir()
	body := words(40) + " marker " + words(40)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte(body), 0o644))
	store := docstore.NewLocal(dir)

	text, err := ChunkText(context.Background(), store, "a.txt", 1, Options{ChunkSize: 50, Overlap: 10})
	require.NoError(t, err)
	require.Contains(t, text, "marker")

	_, err = ChunkText(context.Background(), store, "a.txt", 5, Options{ChunkSize: 50, Overlap: 10})
	require.True(t, appErr.IsNotFound(err))
	_, err = ChunkText(context.Background(), store, "missing.txt", 0, Options{})
	require.True(t, appErr.IsNotFound(err))
}
