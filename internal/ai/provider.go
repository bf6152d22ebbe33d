package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// IProvider is a chat completion backend.
type IProvider interface {
	Name() string
	Complete(ctx context.Context, model string, system string, user string) (string, error)
}

type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// IGenerator is a provider bound to a model.
type IGenerator interface {
	Complete(ctx context.Context, system string, user string) (string, error)
}

type IEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

type ProviderFactory func(args interface{}) (IProvider, error)

type EmbedProviderFactory func(args interface{}) (IEmbedProvider, error)

type providerEntry struct {
	env     string
	factory ProviderFactory
}

var (
	registryMu    sync.RWMutex
	registry      = map[string]providerEntry{}
	embedRegistry = map[string]EmbedProviderFactory{}
)

// Register adds a chat provider. env names the variable holding its
// credential when the provider args do not carry one.
func Register(name string, env string, factory ProviderFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = providerEntry{env: env, factory: factory}
	registryMu.Unlock()
}

func RegisterEmbed(name string, factory EmbedProviderFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	embedRegistry[key] = factory
	registryMu.Unlock()
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("ai provider is required")
	}
	registryMu.RLock()
	entry, ok := registry[key]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return entry.factory(args)
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("embed provider is required")
	}
	registryMu.RLock()
	factory := embedRegistry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported embed provider: %s", name)
	}
	return factory(args)
}

// HasCredential reports whether the named provider can find an api key
// in its args or in the environment.
func HasCredential(name string, args interface{}) bool {
	registryMu.RLock()
	entry, ok := registry[normalizeName(name)]
	registryMu.RUnlock()
	if !ok {
		return false
	}
	cred := credentialConfig{}
	if args != nil {
		if err := decodeConfig(args, &cred); err != nil {
			return false
		}
	}
	key, _ := cred.resolve(entry.env)
	return key != ""
}

type credentialConfig struct {
	APIKey    string `json:"api_key"`
	APIKeyEnv string `json:"api_key_env"`
}

func (c credentialConfig) resolve(defaultEnv string) (string, string) {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key, ""
	}
	env := strings.TrimSpace(c.APIKeyEnv)
	if env == "" {
		env = defaultEnv
	}
	if env == "" {
		return "", ""
	}
	return strings.TrimSpace(os.Getenv(env)), env
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// decodeConfig copies loosely typed provider args into dst. Nil args leave
// dst untouched.
func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
