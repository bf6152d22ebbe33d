package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	openAIKeyEnv         = "OPENAI_APIKEY"
)

type openAIConfig struct {
	credentialConfig
	BaseURL string `json:"base_url"`
}

type openAIProvider struct {
	opts []option.RequestOption
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) Complete(ctx context.Context, model string, system string, user string) (string, error) {
	client := openai.NewClient(p.opts...)
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai response has no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type openAIEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type openAIEmbedProvider struct {
	apiKey  string
	baseURL string
}

func (p *openAIEmbedProvider) Name() string {
	return "openai"
}

func (p *openAIEmbedProvider) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	endpoint := strings.TrimRight(p.baseURL, "/") + "/embeddings"
	data, err := json.Marshal(openAIEmbedRequest{Model: model, Input: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("openai response has no embeddings")
	}
	return out.Data[0].Embedding, nil
}

func loadOpenAIConfig(args interface{}) (string, string, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return "", "", err
	}
	key, env := cfg.resolve(openAIKeyEnv)
	if key == "" {
		return "", "", fmt.Errorf("openai api key missing (%s): %w", env, appErr.ErrBackendInit)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return key, baseURL, nil
}

func createOpenAIFactory(args interface{}) (IProvider, error) {
	key, baseURL, err := loadOpenAIConfig(args)
	if err != nil {
		return nil, err
	}
	return &openAIProvider{opts: []option.RequestOption{
		option.WithAPIKey(key),
		option.WithBaseURL(baseURL),
	}}, nil
}

func createOpenAIEmbedFactory(args interface{}) (IEmbedProvider, error) {
	key, baseURL, err := loadOpenAIConfig(args)
	if err != nil {
		return nil, err
	}
	return &openAIEmbedProvider{apiKey: key, baseURL: baseURL}, nil
}

func init() {
	Register("openai", openAIKeyEnv, createOpenAIFactory)
	RegisterEmbed("openai", createOpenAIEmbedFactory)
}
