package embedcache

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/newsdesk/internal/ai"
)

// queryCache keeps recent query vectors in memory for one embedder. The
// model is fixed per wrapper so entries are keyed by content hash alone.
type queryCache struct {
	next    ai.IEmbedder
	vectors *expirable.LRU[string, []float32]
	hits    atomic.Uint64
	misses  atomic.Uint64
	evicted atomic.Uint64
}

// WithQueryCache returns e unchanged when size or ttl is not positive.
func WithQueryCache(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	qc := &queryCache{next: e}
	qc.vectors = expirable.NewLRU[string, []float32](size, func(string, []float32) {
		qc.evicted.Add(1)
	}, ttl)
	return qc
}

func (q *queryCache) Embed(ctx context.Context, text string) ([]float32, error) {
	_, hash, _ := buildCacheKey(q.next.ModelName(), text)
	if vec, ok := q.vectors.Get(hash); ok {
		hits := q.hits.Add(1)
		logutil.GetLogger(ctx).Debug("query vector reused",
			zap.String("model", q.next.ModelName()),
			zap.Uint64("hits", hits),
			zap.Uint64("misses", q.misses.Load()),
		)
		return slices.Clone(vec), nil
	}
	q.misses.Add(1)
	vec, err := q.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) > 0 {
		q.vectors.Add(hash, slices.Clone(vec))
	}
	return vec, nil
}

func (q *queryCache) ModelName() string {
	return q.next.ModelName()
}
