package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOpenRouterURL = "https://openrouter.ai/api/v1"
	maxResponseBody      = 4 << 20 // 4MB
)

// OpenRouter reasons through the OpenRouter chat completions endpoint.
type OpenRouter struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	referer    string
	title      string
}

// NewOpenRouter creates an OpenRouter backend.
func NewOpenRouter(cfg Config) (*OpenRouter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter: missing API key")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenRouterURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &OpenRouter{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(base, "/"),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: client,
		referer:    "https://github.com/kalambet/bloodlens",
		title:      "bloodlens",
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (c *OpenRouter) Reason(ctx context.Context, p Prompt) (string, error) {
	var msgs []chatMessage
	if p.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: p.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: p.User})

	body, err := json.Marshal(completionRequest{Model: c.model, Messages: msgs, MaxTokens: c.maxTokens})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(ProviderOpenRouter, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", classifyStatus(ProviderOpenRouter, resp.StatusCode, string(detail))
	}

	var cr completionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&cr); err != nil {
		return "", fmt.Errorf("openrouter: %w: decoding response: %v", ErrTransient, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("openrouter: %w: no choices returned", ErrRefused)
	}
	if cr.Choices[0].FinishReason == "content_filter" {
		return "", fmt.Errorf("openrouter: %w: content filtered", ErrRefused)
	}
	return cr.Choices[0].Message.Content, nil
}

func (c *OpenRouter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)
}
