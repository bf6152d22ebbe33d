package index

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/xxxsen/newsdesk/internal/model"
	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

const DefaultTopK = 10

type Options struct {
	// Workers > 1 enables pooled scoring for indexes holding at least
	// ParallelMinChunks chunks.
	Workers           int
	ParallelMinChunks int
}

// Index is an immutable set of unit-normalized chunk vectors. It is safe
// for concurrent searches.
type Index struct {
	chunks   []model.Chunk
	dim      int
	bySource map[string][]int
	pool     *ants.Pool
	minPar   int
	workers  int
}

func New(chunks []model.Chunk, opts Options) (*Index, error) {
	idx := &Index{
		chunks:   make([]model.Chunk, 0, len(chunks)),
		bySource: make(map[string][]int),
		minPar:   opts.ParallelMinChunks,
		workers:  opts.Workers,
	}
	for i, c := range chunks {
		if len(c.Vector) == 0 {
			return nil, fmt.Errorf("chunk %d of %s has empty vector: %w", c.ChunkIndex, c.SourceID, appErr.ErrConfiguration)
		}
		if idx.dim == 0 {
			idx.dim = len(c.Vector)
		}
		if len(c.Vector) != idx.dim {
			return nil, fmt.Errorf("chunk %d of %s has dimension %d, want %d: %w", c.ChunkIndex, c.SourceID, len(c.Vector), idx.dim, appErr.ErrConfiguration)
		}
		c.Vector = Normalize(c.Vector)
		c.Score = 0
		idx.chunks = append(idx.chunks, c)
		idx.bySource[c.SourceID] = append(idx.bySource[c.SourceID], i)
	}
	if idx.workers > 1 && len(idx.chunks) >= idx.minPar {
		pool, err := ants.NewPool(idx.workers, ants.WithPreAlloc(true))
		if err != nil {
			return nil, fmt.Errorf("create scoring pool: %w", err)
		}
		idx.pool = pool
	}
	return idx, nil
}

func (x *Index) Close() {
	if x.pool != nil {
		x.pool.Release()
	}
}

func (x *Index) Len() int {
	return len(x.chunks)
}

func (x *Index) Dim() int {
	return x.dim
}

// Search ranks every chunk by dot product with query, keeps the topK best
// and drops those scoring below threshold. query must be unit-normalized.
func (x *Index) Search(query []float32, topK int, threshold float64) ([]model.Chunk, error) {
	if len(x.chunks) == 0 {
		return []model.Chunk{}, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("query dimension %d, index dimension %d: %w", len(query), x.dim, appErr.ErrInvalid)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	scores := x.score(query)
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	if len(order) > topK {
		order = order[:topK]
	}
	out := make([]model.Chunk, 0, len(order))
	for _, i := range order {
		if scores[i] < threshold {
			continue
		}
		c := x.chunks[i]
		c.Score = scores[i]
		out = append(out, c)
	}
	return out, nil
}

// ChunksOf lists the chunks of one source in load order.
func (x *Index) ChunksOf(sourceID string) []model.Chunk {
	ids := x.bySource[sourceID]
	out := make([]model.Chunk, 0, len(ids))
	for _, i := range ids {
		out = append(out, x.chunks[i])
	}
	return out
}

func (x *Index) score(query []float32) []float64 {
	scores := make([]float64, len(x.chunks))
	if x.pool == nil {
		scoreRange(x.chunks, query, scores, 0, len(x.chunks))
		return scores
	}
	step := (len(x.chunks) + x.workers - 1) / x.workers
	var wg sync.WaitGroup
	for start := 0; start < len(x.chunks); start += step {
		end := min(start+step, len(x.chunks))
		wg.Add(1)
		lo, hi := start, end
		if err := x.pool.Submit(func() {
			defer wg.Done()
			scoreRange(x.chunks, query, scores, lo, hi)
		}); err != nil {
			scoreRange(x.chunks, query, scores, lo, hi)
			wg.Done()
		}
	}
	wg.Wait()
	return scores
}

func scoreRange(chunks []model.Chunk, query []float32, scores []float64, lo, hi int) {
	for i := lo; i < hi; i++ {
		scores[i] = Dot(chunks[i].Vector, query)
	}
}

func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Normalize returns a unit L2 copy of v. A zero vector is returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}
