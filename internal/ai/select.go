package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

const AutoProvider = "auto"

// StageBackend describes which backend a stage wants.
type StageBackend struct {
	Provider      string
	Model         string
	AllowFallback bool
}

// Backends resolves stage backends against a priority ordered set of
// configured providers.
type Backends struct {
	priority []string
	args     map[string]interface{}
	opts     GeneratorOptions
}

func NewBackends(priority []string, args map[string]interface{}, opts GeneratorOptions) *Backends {
	names := make([]string, 0, len(priority))
	for _, name := range priority {
		if key := normalizeName(name); key != "" {
			names = append(names, key)
		}
	}
	normalized := make(map[string]interface{}, len(args))
	for name, v := range args {
		normalized[normalizeName(name)] = v
	}
	return &Backends{priority: names, args: normalized, opts: opts}
}

// Detect returns the first provider in priority order whose credential is
// present.
func (b *Backends) Detect() (string, error) {
	for _, name := range b.priority {
		if HasCredential(name, b.args[name]) {
			return name, nil
		}
	}
	return "", fmt.Errorf("no api key found for %s: %w", strings.Join(b.priority, ", "), appErr.ErrConfiguration)
}

func (b *Backends) Build(name string, model string) (IGenerator, error) {
	p, err := NewProvider(name, b.args[name])
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", name, err)
	}
	return NewGenerator(p, model, b.opts), nil
}

func (b *Backends) alternate(name string) string {
	for _, candidate := range b.priority {
		if candidate != name {
			return candidate
		}
	}
	return ""
}

// Select builds the generator for a stage. A failing init switches once to
// the alternate provider when fallback is allowed. The returned generator
// also falls back at call time.
func (b *Backends) Select(ctx context.Context, spec StageBackend) (IGenerator, string, error) {
	logger := logutil.GetLogger(ctx)
	name := normalizeName(spec.Provider)
	if name == "" || name == AutoProvider {
		detected, err := b.Detect()
		if err != nil {
			return nil, "", err
		}
		name = detected
	}
	gen, err := b.Build(name, spec.Model)
	if err != nil {
		if !spec.AllowFallback {
			return nil, "", err
		}
		alt := b.alternate(name)
		if alt == "" {
			return nil, "", err
		}
		logger.Warn("backend init failed, falling back",
			zap.String("provider", name),
			zap.String("fallback", alt),
			zap.Error(err),
		)
		altGen, altErr := b.Build(alt, spec.Model)
		if altErr != nil {
			return nil, "", appErr.NewAggregateError([]string{name, alt}, []error{err, altErr})
		}
		return altGen, alt, nil
	}
	alt := b.alternate(name)
	if !spec.AllowFallback || alt == "" {
		return gen, name, nil
	}
	return NewFailoverGenerator(GeneratorEntry{Name: name, Generator: gen}, alt, func() (GeneratorEntry, error) {
		altGen, err := b.Build(alt, spec.Model)
		if err != nil {
			return GeneratorEntry{}, err
		}
		return GeneratorEntry{Name: alt, Generator: altGen}, nil
	}), name, nil
}
