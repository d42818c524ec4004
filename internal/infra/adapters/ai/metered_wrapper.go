package ai

import (
	"context"
	"time"

	"venture-idea-analyzer/internal/domain/ports/adapter"
	"venture-idea-analyzer/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*meteredAI)(nil)

// meteredAI records token usage and call latency for every chat call.
// Plain Chat is routed through ChatWithUsage so usage is never lost.
type meteredAI struct {
	inner    adapter.AIServiceAdapter
	provider string
}

func NewMeteredAI(inner adapter.AIServiceAdapter, provider string) adapter.AIServiceAdapter {
	return &meteredAI{inner: inner, provider: provider}
}

func (m *meteredAI) ListModels(ctx context.Context) ([]string, error) {
	return m.inner.ListModels(ctx)
}

func (m *meteredAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return m.inner.GetModelInfo(model)
}

func (m *meteredAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return m.inner.CountTokens(ctx, model, messages)
}

func (m *meteredAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	text, _, err := m.ChatWithUsage(ctx, model, messages)
	return text, err
}

func (m *meteredAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	start := time.Now()
	text, u, err := m.inner.ChatWithUsage(ctx, model, messages)
	metrics.ObserveAIUsage(m.provider, model,
		u.PromptTokens, u.CompletionTokens, u.TotalTokens,
		int(time.Since(start).Milliseconds()), err == nil)
	return text, u, err
}
