package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"venture-idea-analyzer/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*CompatAdapter)(nil)

// CompatAdapter speaks the OpenAI chat-completions wire format against
// any compatible gateway (vLLM, LM Studio, proxy providers). It goes
// through net/http directly because these gateways only guarantee the
// HTTP surface, not SDK compatibility.
type CompatAdapter struct {
	apiKey string
	base   string
	model  string
	client *http.Client
}

func NewCompatAdapter(apiKey, model, base string) (*CompatAdapter, error) {
	if base == "" {
		return nil, errors.New("compat gateway base url empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &CompatAdapter{
		apiKey: apiKey,
		base:   strings.TrimRight(base, "/"),
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *CompatAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{c.model}, nil
}

func (c *CompatAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	if model == "" {
		model = c.model
	}
	return adapter.ModelInfo{
		Name:        model,
		Description: "OpenAI-compatible gateway model",
		Supports:    []string{"text"},
	}, nil
}

// CountTokens is a heuristic here; compatible gateways expose no
// counting endpoint.
func (c *CompatAdapter) CountTokens(_ context.Context, _ string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(m.Content) / 4
	}
	return n, nil
}

func (c *CompatAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	text, _, err := c.ChatWithUsage(ctx, model, messages)
	return text, err
}

func (c *CompatAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if model == "" {
		model = c.model
	}
	reqBody := struct {
		Model    string            `json:"model"`
		Messages []adapter.Message `json:"messages"`
	}{Model: model, Messages: messages}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", adapter.Usage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", adapter.Usage{}, fmt.Errorf("compat gateway http %d", resp.StatusCode)
	}

	var payload struct {
		Choices []struct {
			Message adapter.Message `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", adapter.Usage{}, err
	}
	u := adapter.Usage{
		PromptTokens:     payload.Usage.PromptTokens,
		CompletionTokens: payload.Usage.CompletionTokens,
		TotalTokens:      payload.Usage.TotalTokens,
	}
	for _, ch := range payload.Choices {
		if ch.Message.Content != "" {
			return ch.Message.Content, u, nil
		}
	}
	return "", u, errors.New("no choice content")
}
