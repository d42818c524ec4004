package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"venture-idea-analyzer/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter is the dev-mode stand-in: it answers every stage with a
// well-formed canned response, no API key needed. Responses are
// deterministic per input so repeated runs of the same idea produce the
// same report.
type NoopAIAdapter struct{}

func NewNoopAIAdapter() *NoopAIAdapter { return &NoopAIAdapter{} }

func (a *NoopAIAdapter) ListModels(context.Context) ([]string, error) {
	return []string{"noop-model"}, nil
}

func (a *NoopAIAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	if model == "" {
		model = "noop-model"
	}
	return adapter.ModelInfo{
		Name:        model,
		Description: "Deterministic local stand-in",
		MaxTokens:   8192,
		Supports:    []string{"text"},
	}, nil
}

func (a *NoopAIAdapter) CountTokens(_ context.Context, _ string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(m.Content) / 4
	}
	return n, nil
}

func (a *NoopAIAdapter) Chat(ctx context.Context, _ string, messages []adapter.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return "{}", nil
	}
	system := messages[0].Content
	user := messages[len(messages)-1].Content
	score := 4 + seedFrom(user)%6 // deterministic score in [4,9]

	if strings.Contains(system, "investment memo") {
		return `{"strengths": ["addresses a concrete need"],
			"weaknesses": ["assumptions untested"],
			"suggested_actions": ["interview ten potential customers"],
			"idea_improvements": {"before": "", "after": "narrow the initial audience to one segment"}}`, nil
	}

	extra := `"notes": "n/a"`
	switch {
	case strings.Contains(system, "pain_points"):
		extra = `"pain_points": ["time lost to manual steps"]`
	case strings.Contains(system, "tam"):
		extra = `"tam": "unknown", "sam": "unknown", "som": "unknown"`
	case strings.Contains(system, "competitors"):
		extra = `"competitors": ["established incumbents"]`
	case strings.Contains(system, "value_proposition"):
		extra = `"value_proposition": "simpler than the status quo"`
	case strings.Contains(system, "revenue_streams"):
		extra = `"revenue_streams": ["subscriptions"]`
	case strings.Contains(system, "experiments"):
		extra = `"experiments": ["landing page smoke test"]`
	case strings.Contains(system, "risks"):
		extra = `"risks": ["none identified"]`
	case strings.Contains(system, "kpis"):
		extra = `"kpis": ["weekly active users"]`
	}
	return fmt.Sprintf(`{"score": %d, "reasoning": "canned local assessment", %s,
		"strengths": ["plausible direction"], "weaknesses": ["unvalidated"],
		"suggested_actions": ["talk to users"]}`, score, extra), nil
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	text, err := a.Chat(ctx, model, messages)
	n, _ := a.CountTokens(ctx, model, messages)
	return text, adapter.Usage{PromptTokens: n, CompletionTokens: len(text) / 4, TotalTokens: n + len(text)/4}, err
}

func seedFrom(s string) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() % 1000)
}
