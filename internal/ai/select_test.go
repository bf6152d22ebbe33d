package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

type fakeConfig struct {
	credentialConfig
	Reply string `json:"reply"`
	Fail  bool   `json:"fail"`
}

type fakeProvider struct {
	name  string
	reply string
	fail  bool
	calls *int32
}

func (p *fakeProvider) Name() string {
	return p.name
}

func (p *fakeProvider) Complete(ctx context.Context, model string, system string, user string) (string, error) {
	if p.calls != nil {
		atomic.AddInt32(p.calls, 1)
	}
	if p.fail {
		return "", fmt.Errorf("%s unavailable", p.name)
	}
	return p.reply, nil
}

func registerFake(name, env string) {
	Register(name, env, func(args interface{}) (IProvider, error) {
		cfg := &fakeConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		if key, _ := cfg.resolve(env); key == "" {
			return nil, fmt.Errorf("%s key missing: %w", name, appErr.ErrBackendInit)
		}
		return &fakeProvider{name: name, reply: cfg.Reply, fail: cfg.Fail}, nil
	})
}

func init() {
	registerFake("fake-a", "FAKE_A_KEY")
	registerFake("fake-b", "FAKE_B_KEY")
}

func TestDetectUsesPriorityOrder(t *testing.T) {
	t.Setenv("FAKE_A_KEY", "")
	t.Setenv("FAKE_B_KEY", "b")
	b := NewBackends([]string{"fake-a", "FAKE-B"}, nil, GeneratorOptions{})
	name, err := b.Detect()
	require.NoError(t, err)
	require.Equal(t, "fake-b", name)

	t.Setenv("FAKE_A_KEY", "a")
	name, err = b.Detect()
	require.NoError(t, err)
	require.Equal(t, "fake-a", name)
}

func TestDetectWithoutCredentialIsConfigurationError(t *testing.T) {
	t.Setenv("FAKE_A_KEY", "")
	t.Setenv("FAKE_B_KEY", "")
	b := NewBackends([]string{"fake-a", "fake-b"}, nil, GeneratorOptions{})
	_, _, err := b.Select(context.Background(), StageBackend{Provider: AutoProvider, Model: "m", AllowFallback: true})
	require.Error(t, err)
	require.True(t, appErr.IsConfiguration(err))
}

func TestHasCredentialFromArgs(t *testing.T) {
	t.Setenv("FAKE_A_KEY", "")
	require.False(t, HasCredential("fake-a", nil))
	require.True(t, HasCredential("fake-a", map[string]interface{}{"api_key": "k"}))
	t.Setenv("OTHER_ENV", "v")
	require.True(t, HasCredential("fake-a", map[string]interface{}{"api_key_env": "OTHER_ENV"}))
	require.False(t, HasCredential("unknown", nil))
}

func TestSelectFallsBackWhenInitFails(t *testing.T) {
	t.Setenv("FAKE_A_KEY", "")
	t.Setenv("FAKE_B_KEY", "b")
	b := NewBackends([]string{"fake-a", "fake-b"}, map[string]interface{}{
		"fake-b": map[string]interface{}{"reply": "  from b \n"},
	}, GeneratorOptions{})
	gen, name, err := b.Select(context.Background(), StageBackend{Provider: "fake-a", Model: "m", AllowFallback: true})
	require.NoError(t, err)
	require.Equal(t, "fake-b", name)
	out, err := gen.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	require.Equal(t, "from b", out)
}

func TestSelectWithoutFallbackSurfacesInitError(t *testing.T) {
	t.Setenv("FAKE_A_KEY", "")
	t.Setenv("FAKE_B_KEY", "b")
	b := NewBackends([]string{"fake-a", "fake-b"}, nil, GeneratorOptions{})
	_, _, err := b.Select(context.Background(), StageBackend{Provider: "fake-a", Model: "m"})
	require.Error(t, err)
	require.True(t, appErr.IsBackendInit(err))
	require.False(t, appErr.IsAggregate(err))
}

func TestSelectBothInitFailuresAggregate(t *testing.T) {
	t.Setenv("FAKE_A_KEY", "")
	t.Setenv("FAKE_B_KEY", "")
	b := NewBackends([]string{"fake-a", "fake-b"}, nil, GeneratorOptions{})
	_, _, err := b.Select(context.Background(), StageBackend{Provider: "fake-a", Model: "m", AllowFallback: true})
	require.Error(t, err)
	var agg *appErr.AggregateError
	require.True(t, errors.As(err, &agg))
	require.Equal(t, []string{"fake-a", "fake-b"}, agg.Names)
	require.Contains(t, err.Error(), "fake-a key missing")
	require.Contains(t, err.Error(), "fake-b key missing")
}

func TestSelectFallsBackAtCallTime(t *testing.T) {
	t.Setenv("FAKE_A_KEY", "a")
	t.Setenv("FAKE_B_KEY", "b")
	b := NewBackends([]string{"fake-a", "fake-b"}, map[string]interface{}{
		"fake-a": map[string]interface{}{"fail": true},
		"fake-b": map[string]interface{}{"reply": "rescued"},
	}, GeneratorOptions{})
	gen, name, err := b.Select(context.Background(), StageBackend{Provider: AutoProvider, Model: "m", AllowFallback: true})
	require.NoError(t, err)
	require.Equal(t, "fake-a", name)
	out, err := gen.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	require.Equal(t, "rescued", out)
}

func TestSelectCallTimeFailureOfBothAggregates(t *testing.T) {
	t.Setenv("FAKE_A_KEY", "a")
	t.Setenv("FAKE_B_KEY", "b")
	b := NewBackends([]string{"fake-a", "fake-b"}, map[string]interface{}{
		"fake-a": map[string]interface{}{"fail": true},
		"fake-b": map[string]interface{}{"fail": true},
	}, GeneratorOptions{})
	gen, _, err := b.Select(context.Background(), StageBackend{Provider: "fake-a", Model: "m", AllowFallback: true})
	require.NoError(t, err)
	_, err = gen.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	require.True(t, appErr.IsAggregate(err))
	require.ErrorIs(t, err, appErr.ErrBackendCall)
}

func TestGeneratorRejectsEmptyResponse(t *testing.T) {
	gen := NewGenerator(&fakeProvider{name: "x", reply: " \n\t"}, "m", GeneratorOptions{})
	_, err := gen.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	require.ErrorIs(t, err, appErr.ErrBackendCall)
}

func TestGeneratorRetries(t *testing.T) {
	var calls int32
	gen := NewGenerator(&fakeProvider{name: "x", fail: true, calls: &calls}, "m", GeneratorOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	})
	_, err := gen.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))

	calls = 0
	gen = NewGenerator(&fakeProvider{name: "x", fail: true, calls: &calls}, "m", GeneratorOptions{})
	_, err = gen.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type slowProvider struct{}

func (slowProvider) Name() string {
	return "slow"
}

func (slowProvider) Complete(ctx context.Context, model string, system string, user string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestGeneratorTimeoutIsCallError(t *testing.T) {
	gen := NewGenerator(slowProvider{}, "m", GeneratorOptions{Timeout: 10 * time.Millisecond})
	_, err := gen.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	require.ErrorIs(t, err, appErr.ErrBackendCall)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGithubProviderSendsSystemAndUser(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  outline \n"}}]}`))
	}))
	defer srv.Close()

	p, err := NewProvider("github", map[string]interface{}{"api_key": "secret", "endpoint": srv.URL})
	require.NoError(t, err)
	out, err := p.Complete(context.Background(), "gpt-4o-mini", "sys", "usr")
	require.NoError(t, err)
	require.Equal(t, "outline", out)
	require.Equal(t, "gpt-4o-mini", got.Model)
	require.Equal(t, []chatMsg{{Role: "system", Content: "sys"}, {Role: "user", Content: "usr"}}, got.Messages)
}

func TestGithubProviderRequiresKey(t *testing.T) {
	t.Setenv(githubKeyEnv, "")
	_, err := NewProvider("github", nil)
	require.Error(t, err)
	require.True(t, appErr.IsBackendInit(err))
}

func TestOpenAIEmbedProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5,0.25]}]}`))
	}))
	defer srv.Close()

	p, err := NewEmbedProvider("openai", map[string]interface{}{"api_key": "k", "base_url": srv.URL})
	require.NoError(t, err)
	e := NewEmbedder(p, "text-embedding-3-small")
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, 0.25}, vec)
	require.Equal(t, "text-embedding-3-small", e.ModelName())
}

type staticGenerator struct {
	reply string
}

func (g *staticGenerator) Complete(ctx context.Context, system string, user string) (string, error) {
	return g.reply, nil
}

type cancelingGenerator struct {
	cancel context.CancelFunc
}

func (g *cancelingGenerator) Complete(ctx context.Context, system string, user string) (string, error) {
	g.cancel()
	return "", fmt.Errorf("primary aborted: %w", appErr.ErrBackendCall)
}

func TestFailoverStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	built := 0
	gen := NewFailoverGenerator(
		GeneratorEntry{Name: "fake-a", Generator: &cancelingGenerator{cancel: cancel}},
		"fake-b",
		func() (GeneratorEntry, error) {
			built++
			return GeneratorEntry{Name: "fake-b", Generator: &staticGenerator{reply: "late"}}, nil
		},
	)
	_, err := gen.Complete(ctx, "sys", "user")
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, appErr.IsAggregate(err))
	require.Equal(t, 0, built)
}
