package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/newsdesk/internal/model"
)

// Source loads the raw chunk set an Index is built from.
type Source interface {
	Load(ctx context.Context) ([]model.Chunk, error)
}

type SourceFactory func(args interface{}) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]SourceFactory{}
)

func Register(name string, factory SourceFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func NewSource(name string, args interface{}) (Source, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("index.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported index type: %s", name)
	}
	return factory(args)
}

// Open loads the named source and builds an Index from it.
func Open(ctx context.Context, name string, args interface{}, opts Options) (*Index, error) {
	src, err := NewSource(name, args)
	if err != nil {
		return nil, err
	}
	chunks, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	return New(chunks, opts)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("index config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode index config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode index config: %w", err)
	}
	return nil
}
