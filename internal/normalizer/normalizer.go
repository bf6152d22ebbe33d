package normalizer

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/newsdesk/internal/ai"
	"github.com/xxxsen/newsdesk/internal/prompt"
)

// QueryNormalizer rewrites a request into keywords for semantic search.
type QueryNormalizer struct {
	gen ai.IGenerator
	tpl prompt.NormalizerPrompts
}

func New(gen ai.IGenerator, tpl prompt.NormalizerPrompts) *QueryNormalizer {
	return &QueryNormalizer{gen: gen, tpl: tpl}
}

// NewFromBackends selects the backend for spec, honoring auto detection
// and fallback.
func NewFromBackends(ctx context.Context, backends *ai.Backends, spec ai.StageBackend, tpl prompt.NormalizerPrompts) (*QueryNormalizer, error) {
	gen, name, err := backends.Select(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("select normalizer backend: %w", err)
	}
	logutil.GetLogger(ctx).Debug("normalizer backend selected", zap.String("provider", name))
	return New(gen, tpl), nil
}

func (n *QueryNormalizer) Normalize(ctx context.Context, request string) (string, error) {
	keywords, err := n.gen.Complete(ctx, n.tpl.System, request)
	if err != nil {
		return "", err
	}
	logutil.GetLogger(ctx).Debug("request normalized", zap.String("keywords", keywords))
	return keywords, nil
}
