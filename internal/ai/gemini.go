package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

const geminiKeyEnv = "GEMINI_API_KEY"

type geminiConfig struct {
	credentialConfig
	TaskType string `json:"task_type"`
}

type geminiProvider struct {
	apiKey string
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) Complete(ctx context.Context, model string, system string, user string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", err
	}
	var cfg *genai.GenerateContentConfig
	if system != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		}
	}
	resp, err := client.Models.GenerateContent(
		ctx,
		model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: user}}}},
		cfg,
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

type geminiEmbedProvider struct {
	apiKey   string
	taskType string
}

func (p *geminiEmbedProvider) Name() string {
	return "gemini"
}

func (p *geminiEmbedProvider) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	var config *genai.EmbedContentConfig
	if p.taskType != "" {
		config = &genai.EmbedContentConfig{
			TaskType: p.taskType,
		}
	}
	resp, err := client.Models.EmbedContent(
		ctx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		config,
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding values returned")
	}
	return resp.Embeddings[0].Values, nil
}

func loadGeminiConfig(args interface{}) (*geminiConfig, string, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, "", err
	}
	key, env := cfg.resolve(geminiKeyEnv)
	if key == "" {
		return nil, "", fmt.Errorf("gemini api key missing (%s): %w", env, appErr.ErrBackendInit)
	}
	return cfg, key, nil
}

func createGeminiFactory(args interface{}) (IProvider, error) {
	_, key, err := loadGeminiConfig(args)
	if err != nil {
		return nil, err
	}
	return &geminiProvider{apiKey: key}, nil
}

func createGeminiEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg, key, err := loadGeminiConfig(args)
	if err != nil {
		return nil, err
	}
	return &geminiEmbedProvider{apiKey: key, taskType: strings.TrimSpace(cfg.TaskType)}, nil
}

func init() {
	Register("gemini", geminiKeyEnv, createGeminiFactory)
	RegisterEmbed("gemini", createGeminiEmbedFactory)
}
