package index

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/newsdesk/internal/model"
	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

// scenarioChunks scores 0.9, 0.8 and 0.5 against the query {1, 0}.
func scenarioChunks() []model.Chunk {
	return []model.Chunk{
		{SourceID: "docA", ChunkIndex: 0, Vector: unit(0.9)},
		{SourceID: "docA", ChunkIndex: 1, Vector: unit(0.8)},
		{SourceID: "docB", ChunkIndex: 0, Vector: unit(0.5)},
	}
}

func unit(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func TestSearchRanksAndFilters(t *testing.T) {
	idx, err := New(scenarioChunks(), Options{})
	require.NoError(t, err)
	defer idx.Close()

	res, err := idx.Search([]float32{1, 0}, 3, 0.3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, "docA", res[0].SourceID)
	require.InDelta(t, 0.9, res[0].Score, 1e-6)
	require.InDelta(t, 0.8, res[1].Score, 1e-6)
	require.Equal(t, "docB", res[2].SourceID)

	res, err = idx.Search([]float32{1, 0}, 3, 0.6)
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, c := range res {
		require.Equal(t, "docA", c.SourceID)
	}

	res, err = idx.Search([]float32{1, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, 0, res[0].ChunkIndex)
}

func TestSearchTiesKeepLoadOrder(t *testing.T) {
	chunks := []model.Chunk{
		{SourceID: "x", ChunkIndex: 0, Vector: []float32{0, 1}},
		{SourceID: "b", ChunkIndex: 0, Vector: []float32{1, 0}},
		{SourceID: "a", ChunkIndex: 0, Vector: []float32{1, 0}},
		{SourceID: "c", ChunkIndex: 0, Vector: []float32{2, 0}},
	}
	idx, err := New(chunks, Options{})
	require.NoError(t, err)
	res, err := idx.Search([]float32{1, 0}, 2, 0.5)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, []string{res[0].SourceID, res[1].SourceID})
}

func TestSearchEmptyIndex(t *testing.T) {
	idx, err := New(nil, Options{})
	require.NoError(t, err)
	res, err := idx.Search([]float32{1, 0}, 5, 0.3)
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestSearchDefaultsTopK(t *testing.T) {
	chunks := make([]model.Chunk, 0, 20)
	for i := 0; i < 20; i++ {
		chunks = append(chunks, model.Chunk{SourceID: "s", ChunkIndex: i, Vector: []float32{1, 0}})
	}
	idx, err := New(chunks, Options{})
	require.NoError(t, err)
	res, err := idx.Search([]float32{1, 0}, 0, 0)
	require.NoError(t, err)
	require.Len(t, res, DefaultTopK)
}

func TestNewRejectsMixedDimensions(t *testing.T) {
	_, err := New([]model.Chunk{
		{SourceID: "a", Vector: []float32{1, 0}},
		{SourceID: "b", Vector: []float32{1, 0, 0}},
	}, Options{})
	require.Error(t, err)
	require.True(t, appErr.IsConfiguration(err))
}

func TestNewNormalizesVectors(t *testing.T) {
	idx, err := New([]model.Chunk{{SourceID: "a", Vector: []float32{3, 4}}}, Options{})
	require.NoError(t, err)
	c := idx.ChunksOf("a")
	require.Len(t, c, 1)
	require.InDelta(t, 1.0, Dot(c[0].Vector, c[0].Vector), 1e-6)
	require.Empty(t, idx.ChunksOf("missing"))
}

func TestSearchPooledMatchesSequential(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	chunks := make([]model.Chunk, 0, 500)
	for i := 0; i < 500; i++ {
		v := make([]float32, 16)
		for j := range v {
			v[j] = float32(r.NormFloat64())
		}
		chunks = append(chunks, model.Chunk{SourceID: "s", ChunkIndex: i, Vector: v})
	}
	seq, err := New(chunks, Options{})
	require.NoError(t, err)
	par, err := New(chunks, Options{Workers: 4, ParallelMinChunks: 100})
	require.NoError(t, err)
	defer par.Close()
	require.NotNil(t, par.pool)

	q := Normalize(chunks[42].Vector)
	a, err := seq.Search(q, 25, -1)
	require.NoError(t, err)
	b, err := par.Search(q, 25, -1)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, 42, a[0].ChunkIndex)
	for i := 1; i < len(a); i++ {
		require.GreaterOrEqual(t, a[i-1].Score, a[i].Score)
	}
}

func TestFileSourceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.jsonl")
	require.NoError(t, WriteFile(path, scenarioChunks()))

	idx, err := Open(context.Background(), "file", map[string]interface{}{"path": path}, Options{})
	require.NoError(t, err)
	require.Equal(t, 3, idx.Len())
	require.Equal(t, 2, idx.Dim())
	require.Len(t, idx.ChunksOf("docA"), 2)
}

func TestFileSourceMissingIsConfigurationError(t *testing.T) {
	_, err := Open(context.Background(), "file", map[string]interface{}{"path": filepath.Join(t.TempDir(), "nope.jsonl")}, Options{})
	require.Error(t, err)
	require.True(t, appErr.IsConfiguration(err))

	_, err = NewSource("faiss", nil)
	require.Error(t, err)
}
