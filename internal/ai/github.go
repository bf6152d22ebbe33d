package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

const (
	defaultGithubEndpoint = "https://models.github.ai/inference"
	githubKeyEnv          = "GITHUB_APIKEY"
	githubEndpointEnv     = "AZURE_ENDPOINT"
)

type githubConfig struct {
	credentialConfig
	Endpoint string `json:"endpoint"`
}

// githubProvider talks to the GitHub Models (Azure AI inference) chat
// completions endpoint.
type githubProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []chatMsg `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *githubProvider) Name() string {
	return "github"
}

func (p *githubProvider) Complete(ctx context.Context, model string, system string, user string) (string, error) {
	endpoint := strings.TrimRight(p.endpoint, "/") + "/chat/completions"
	reqBody := chatRequest{
		Model: model,
		Messages: []chatMsg{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("github models request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("github models response has no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func createGithubFactory(args interface{}) (IProvider, error) {
	cfg := &githubConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	key, env := cfg.resolve(githubKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("github api key missing (%s): %w", env, appErr.ErrBackendInit)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv(githubEndpointEnv))
	}
	if endpoint == "" {
		endpoint = defaultGithubEndpoint
	}
	return &githubProvider{apiKey: key, endpoint: endpoint, client: http.DefaultClient}, nil
}

func init() {
	Register("github", githubKeyEnv, createGithubFactory)
}
