package ai

import (
	"context"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

// AlternateBuilder constructs the fallback generator on first use.
type AlternateBuilder func() (GeneratorEntry, error)

type failoverGenerator struct {
	primary  GeneratorEntry
	altName  string
	buildAlt AlternateBuilder
	altOnce  sync.Once
	alt      GeneratorEntry
	altErr   error
}

// NewFailoverGenerator answers with primary and, when primary fails,
// retries the same prompt once on the alternate backend.
func NewFailoverGenerator(primary GeneratorEntry, altName string, buildAlt AlternateBuilder) IGenerator {
	if buildAlt == nil {
		return primary.Generator
	}
	return &failoverGenerator{primary: primary, altName: altName, buildAlt: buildAlt}
}

func (g *failoverGenerator) Complete(ctx context.Context, system string, user string) (string, error) {
	res, err := g.primary.Generator.Complete(ctx, system, user)
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	logger := logutil.GetLogger(ctx)
	logger.Warn("generator failed, trying alternate",
		zap.String("name", g.primary.Name),
		zap.String("alternate", g.altName),
		zap.Error(err),
	)
	g.altOnce.Do(func() {
		g.alt, g.altErr = g.buildAlt()
	})
	if g.altErr != nil {
		return "", appErr.NewAggregateError([]string{g.primary.Name, g.altName}, []error{err, g.altErr})
	}
	res, altErr := g.alt.Generator.Complete(ctx, system, user)
	if altErr != nil {
		return "", appErr.NewAggregateError([]string{g.primary.Name, g.alt.Name}, []error{err, altErr})
	}
	return res, nil
}
