package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/newsdesk/internal/ai"
	"github.com/xxxsen/newsdesk/internal/docstore"
	"github.com/xxxsen/newsdesk/internal/index"
	"github.com/xxxsen/newsdesk/internal/model"
	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

// QueryRewriter turns a free text request into a search query.
type QueryRewriter interface {
	Normalize(ctx context.Context, request string) (string, error)
}

type Options struct {
	TopK      int
	Threshold float64
}

// Engine turns requests into ranked articles and their full text. The
// index is shared read only, so one Engine serves concurrent requests.
type Engine struct {
	idx      *index.Index
	embedder ai.IEmbedder
	store    docstore.Store
	rewriter QueryRewriter
	opts     Options
}

func NewEngine(idx *index.Index, embedder ai.IEmbedder, store docstore.Store, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = index.DefaultTopK
	}
	return &Engine{idx: idx, embedder: embedder, store: store, opts: opts}
}

// WithRewriter makes Collect normalize requests before searching.
func (e *Engine) WithRewriter(r QueryRewriter) *Engine {
	e.rewriter = r
	return e
}

func (e *Engine) FindRelevantArticles(ctx context.Context, query string) ([]model.Article, error) {
	if e == nil || e.idx == nil || e.embedder == nil {
		return nil, fmt.Errorf("retrieval engine not initialized: %w", appErr.ErrConfiguration)
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := e.idx.Search(index.Normalize(vec), e.opts.TopK, e.opts.Threshold)
	if err != nil {
		return nil, err
	}
	articles := GroupBySource(chunks)
	logutil.GetLogger(ctx).Debug("articles found",
		zap.Int("chunks", len(chunks)),
		zap.Int("articles", len(articles)),
	)
	return articles, nil
}

// GroupBySource folds ranked chunks into articles sorted by MaxScore.
// Equal MaxScores keep first appearance order.
func GroupBySource(chunks []model.Chunk) []model.Article {
	pos := make(map[string]int)
	articles := make([]model.Article, 0)
	for _, c := range chunks {
		i, ok := pos[c.SourceID]
		if !ok {
			i = len(articles)
			pos[c.SourceID] = i
			articles = append(articles, model.Article{SourceID: c.SourceID, MaxScore: c.Score})
		}
		a := &articles[i]
		a.Chunks = append(a.Chunks, c)
		if c.Score > a.MaxScore {
			a.MaxScore = c.Score
		}
	}
	for i := range articles {
		var sum float64
		for _, c := range articles[i].Chunks {
			sum += c.Score
		}
		articles[i].AvgScore = sum / float64(len(articles[i].Chunks))
	}
	sort.SliceStable(articles, func(a, b int) bool {
		return articles[a].MaxScore > articles[b].MaxScore
	})
	return articles
}

// HydrateContext loads the text of each article in rank order. Articles
// missing from the store are dropped.
func (e *Engine) HydrateContext(ctx context.Context, articles []model.Article) (model.ContextSet, error) {
	if e == nil || e.store == nil {
		return nil, fmt.Errorf("document store not initialized: %w", appErr.ErrConfiguration)
	}
	logger := logutil.GetLogger(ctx)
	out := make(model.ContextSet, 0, len(articles))
	for _, a := range articles {
		text, err := e.store.Read(ctx, a.SourceID)
		if err != nil {
			if appErr.IsNotFound(err) {
				logger.Info("article text missing, dropped from context",
					zap.String("source", a.SourceID),
					zap.Float64("max_score", a.MaxScore),
				)
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("read article failed, dropped from context",
				zap.String("source", a.SourceID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, model.ContextDoc{SourceID: a.SourceID, Text: text})
	}
	return out, nil
}

// Rewrite returns the search query for request, unchanged when no
// rewriter is set.
func (e *Engine) Rewrite(ctx context.Context, request string) (string, error) {
	if e == nil || e.rewriter == nil {
		return request, nil
	}
	query, err := e.rewriter.Normalize(ctx, request)
	if err != nil {
		return "", fmt.Errorf("normalize query: %w", err)
	}
	return query, nil
}

// Collect runs the whole retrieval path for a request.
func (e *Engine) Collect(ctx context.Context, request string) (model.ContextSet, error) {
	query, err := e.Rewrite(ctx, request)
	if err != nil {
		return nil, err
	}
	articles, err := e.FindRelevantArticles(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.HydrateContext(ctx, articles)
}
