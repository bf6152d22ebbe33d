package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

type GeneratorOptions struct {
	Timeout      time.Duration
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

type generator struct {
	provider IProvider
	model    string
	opts     GeneratorOptions
}

// NewGenerator binds p to model. Every call gets its own timeout, a
// trimmed result and, with MaxAttempts > 1, exponential retries.
func NewGenerator(p IProvider, model string, opts GeneratorOptions) IGenerator {
	return &generator{provider: p, model: model, opts: opts}
}

func (g *generator) Complete(ctx context.Context, system string, user string) (string, error) {
	var text string
	attempt := 0
	op := func() error {
		attempt++
		res, err := g.completeOnce(ctx, system, user)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			logutil.GetLogger(ctx).Debug("backend call failed",
				zap.String("provider", g.provider.Name()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		text = res
		return nil
	}
	if err := backoff.Retry(op, g.backoff(ctx)); err != nil {
		return "", err
	}
	return text, nil
}

func (g *generator) completeOnce(ctx context.Context, system string, user string) (string, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	resp, err := g.provider.Complete(ctx, g.model, system, user)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", g.provider.Name(), appErr.ErrBackendCall, err)
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("%s: empty ai response: %w", g.provider.Name(), appErr.ErrBackendCall)
	}
	return text, nil
}

func (g *generator) backoff(ctx context.Context) backoff.BackOff {
	attempts := g.opts.MaxAttempts
	if attempts <= 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	eb := backoff.NewExponentialBackOff()
	if g.opts.InitialDelay > 0 {
		eb.InitialInterval = g.opts.InitialDelay
	}
	if g.opts.MaxDelay > 0 {
		eb.MaxInterval = g.opts.MaxDelay
	}
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

type embedder struct {
	provider IEmbedProvider
	model    string
}

func NewEmbedder(p IEmbedProvider, model string) IEmbedder {
	return &embedder{provider: p, model: model}
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.provider.Embed(ctx, e.model, text)
}

func (e *embedder) ModelName() string {
	return e.model
}
