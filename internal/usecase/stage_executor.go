package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/adapter"
	"venture-idea-analyzer/internal/domain/ports/repository"
	"venture-idea-analyzer/internal/infra/metrics"
)

const stageRetryBackoff = 250 * time.Millisecond

// StageExecutor wraps one inference call with a bounded timeout, shape
// validation and a deterministic fallback. Execute never returns an
// error: any failure (timeout, malformed JSON, missing required field)
// yields the stage's fallback payload instead.
type StageExecutor struct {
	jobs    repository.AnalysisJobRepository
	ai      adapter.AIServiceAdapter
	aiModel string
	log     *zerolog.Logger

	sleep func(time.Duration) // swappable in tests
}

func NewStageExecutor(jobs repository.AnalysisJobRepository, ai adapter.AIServiceAdapter, aiModel string, log *zerolog.Logger) *StageExecutor {
	return &StageExecutor{jobs: jobs, ai: ai, aiModel: aiModel, log: log, sleep: time.Sleep}
}

// Execute runs one stage against the inference service and merges the
// resulting payload (real or fallback) into the job's response map. A
// failed store write is logged and skipped; the pipeline continues,
// since a missing write is indistinguishable from a slow one to a later
// reader.
func (e *StageExecutor) Execute(ctx context.Context, jobID string, stage model.StageID, ideaText string, prior map[model.StageID]model.StagePayload) model.StagePayload {
	spec := SpecFor(stage)
	snapshot := BuildStageContext(ideaText, prior)
	start := time.Now()

	payload, ok := e.callWithRetry(ctx, spec, snapshot)
	if !ok {
		payload = spec.Fallback()
	}

	outcome := "ok"
	if payload.Fallback {
		outcome = "fallback"
	}
	metrics.ObserveStage(string(stage), outcome, time.Since(start).Seconds())
	e.log.Debug().Str("job_id", jobID).Str("stage", string(stage)).
		Str("outcome", outcome).Float64("score", payload.Score).Msg("stage executed")

	if err := e.jobs.MergeStagePayload(ctx, nil, jobID, stage, payload); err != nil {
		e.log.Error().Err(err).Str("job_id", jobID).Str("stage", string(stage)).Msg("merge stage payload failed; skipping write")
	}
	res := &model.StageResult{
		ID:            uuid.NewString(),
		JobID:         jobID,
		StageID:       stage,
		InputSnapshot: snapshot,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
	if _, err := e.jobs.AppendStageResult(ctx, nil, res); err != nil {
		e.log.Error().Err(err).Str("job_id", jobID).Str("stage", string(stage)).Msg("append stage result failed; skipping write")
	}
	return payload
}

// callWithRetry makes the inference call with one retry on failure,
// using a short exponential backoff between attempts.
func (e *StageExecutor) callWithRetry(ctx context.Context, spec StageSpec, snapshot string) (model.StagePayload, bool) {
	msgs := []adapter.Message{
		{Role: "system", Content: spec.SystemRole},
		{Role: "user", Content: snapshot},
	}
	backoff := stageRetryBackoff
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			e.sleep(backoff)
			backoff *= 2
		}
		callCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
		text, err := e.ai.Chat(callCtx, e.aiModel, msgs)
		cancel()
		if err != nil {
			e.log.Warn().Err(err).Str("stage", string(spec.ID)).Int("attempt", attempt+1).Msg("stage inference call failed")
			continue
		}
		payload, perr := parseStagePayload(text, spec)
		if perr != nil {
			e.log.Warn().Err(perr).Str("stage", string(spec.ID)).Int("attempt", attempt+1).Msg("stage response malformed")
			continue
		}
		return payload, true
	}
	return model.StagePayload{}, false
}

// stageResponse is the wire shape every stage must return, plus
// stage-specific extras captured via the raw map.
type stageResponse struct {
	Score            *float64 `json:"score"`
	Reasoning        string   `json:"reasoning"`
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses"`
	SuggestedActions []string `json:"suggested_actions"`
}

// parseStagePayload validates the response shape: numeric score, a
// reasoning string and every stage-specific required field present.
func parseStagePayload(text string, spec StageSpec) (model.StagePayload, error) {
	raw := extractJSON(text)

	var resp stageResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return model.StagePayload{}, err
	}
	if resp.Score == nil {
		return model.StagePayload{}, errMissingField("score")
	}
	if strings.TrimSpace(resp.Reasoning) == "" {
		return model.StagePayload{}, errMissingField("reasoning")
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return model.StagePayload{}, err
	}
	fields := make(map[string]any, len(spec.RequiredFields))
	for _, f := range spec.RequiredFields {
		v, ok := generic[f]
		if !ok {
			return model.StagePayload{}, errMissingField(f)
		}
		fields[f] = v
	}

	return model.StagePayload{
		Score:       clampScore(*resp.Score),
		Rationale:   resp.Reasoning,
		Strengths:   resp.Strengths,
		Weaknesses:  resp.Weaknesses,
		Suggestions: resp.SuggestedActions,
		Fields:      fields,
	}, nil
}

type errMissingField string

func (e errMissingField) Error() string { return "missing required field: " + string(e) }

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}

// extractJSON tolerates models that wrap their JSON in code fences or
// prose: it slices from the first '{' to the last '}'.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}
