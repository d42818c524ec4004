package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/adapter"
)

const (
	synthesisTimeout      = 45 * time.Second
	fallbackItemsPerStage = 2
	fallbackListCap       = 10
)

// Synthesizer produces the final investor-style report from the eight
// stage payloads. The numeric parts (overall score, weighted scores)
// are always computed locally; only the qualitative narrative comes
// from the model, with a deterministic assembly path when that call
// fails.
type Synthesizer struct {
	ai      adapter.AIServiceAdapter
	aiModel string
	log     *zerolog.Logger
}

func NewSynthesizer(ai adapter.AIServiceAdapter, aiModel string, log *zerolog.Logger) *Synthesizer {
	return &Synthesizer{ai: ai, aiModel: aiModel, log: log}
}

type synthesisResponse struct {
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses"`
	SuggestedActions []string `json:"suggested_actions"`
	IdeaImprovements struct {
		Before string `json:"before"`
		After  string `json:"after"`
	} `json:"idea_improvements"`
}

// Synthesize builds the final report. It never returns nil: if the
// synthesis call fails, the qualitative sections are assembled from the
// stage payloads instead and the report is marked as such.
func (s *Synthesizer) Synthesize(ctx context.Context, idea *model.Idea, responses map[model.StageID]model.StagePayload, profile model.WeightProfile) *model.FinalReport {
	completed, failed := splitStages(responses)
	scores := categoryScores(responses)
	overall, weighted := model.WeightedOverall(scores, profile)

	report := &model.FinalReport{
		OverallScore:     overall,
		BusinessCategory: profile.Category,
		WeightedScores:   weighted,
		CategoryScores:   scores,
		Completion: model.CompletionMeta{
			Partial:         len(failed) > 0,
			CompletedStages: completed,
			FailedStages:    failed,
			Method:          model.ReportMethodFull,
		},
	}

	resp, err := s.callSynthesis(ctx, idea, responses, profile, overall)
	if err != nil {
		s.log.Warn().Err(err).Msg("synthesis call failed; assembling report from stage payloads")
		return s.fallbackReport(idea, responses, profile, completed, failed)
	}

	report.Strengths = resp.Strengths
	report.Weaknesses = resp.Weaknesses
	report.SuggestedActions = resp.SuggestedActions
	report.IdeaImprovements = model.IdeaImprovements{
		Before: resp.IdeaImprovements.Before,
		After:  resp.IdeaImprovements.After,
	}
	if report.IdeaImprovements.Before == "" {
		report.IdeaImprovements.Before = idea.Content
	}
	return report
}

func (s *Synthesizer) callSynthesis(ctx context.Context, idea *model.Idea, responses map[model.StageID]model.StagePayload, profile model.WeightProfile, overall float64) (*synthesisResponse, error) {
	findings := make(map[string]any, len(responses))
	for stage, p := range responses {
		if p.Processing() {
			continue
		}
		findings[string(stage)] = summarizePayload(p)
	}
	enc, err := json.Marshal(findings)
	if err != nil {
		return nil, err
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Idea:\n%s\n\n", idea.Content)
	fmt.Fprintf(&user, "Business category: %s\n", profile.Category)
	fmt.Fprintf(&user, "Overall score (precomputed, do not change): %.0f\n\n", overall)
	fmt.Fprintf(&user, "Stage findings:\n%s\n", enc)

	msgs := []adapter.Message{
		{Role: "system", Content: "You are a VC lead partner writing an investment memo. " +
			"Synthesize the stage findings into a JSON object: strengths, weaknesses, " +
			"suggested_actions (arrays of strings), idea_improvements (object with before and after strings)."},
		{Role: "user", Content: user.String()},
	}

	callCtx, cancel := context.WithTimeout(ctx, synthesisTimeout)
	defer cancel()
	text, err := s.ai.Chat(callCtx, s.aiModel, msgs)
	if err != nil {
		return nil, err
	}

	var resp synthesisResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &resp); err != nil {
		return nil, err
	}
	if len(resp.Strengths) == 0 && len(resp.Weaknesses) == 0 {
		return nil, fmt.Errorf("synthesis response carried no findings")
	}
	return &resp, nil
}

// fallbackReport assembles the qualitative sections from the completed
// stages' own lists, capped so the report stays readable. The overall
// score switches to the mean of the succeeded stages since the weighted
// roll-up would punish fallback placeholders twice.
func (s *Synthesizer) fallbackReport(idea *model.Idea, responses map[model.StageID]model.StagePayload, profile model.WeightProfile, completed, failed []model.StageID) *model.FinalReport {
	succeeded := make([]float64, 0, len(completed))
	for _, stage := range completed {
		succeeded = append(succeeded, responses[stage].Score)
	}

	report := &model.FinalReport{
		OverallScore:     model.MeanOverall(succeeded),
		BusinessCategory: profile.Category,
		CategoryScores:   categoryScores(responses),
		IdeaImprovements: model.IdeaImprovements{Before: idea.Content},
		Completion: model.CompletionMeta{
			Partial:         true,
			CompletedStages: completed,
			FailedStages:    append(append([]model.StageID{}, failed...), model.StageVCLead),
			Method:          model.ReportMethodFallback,
		},
	}
	for _, stage := range model.AnalysisStages {
		p, ok := responses[stage]
		if !ok || p.Processing() || p.Fallback {
			continue
		}
		report.Strengths = appendCapped(report.Strengths, p.Strengths)
		report.Weaknesses = appendCapped(report.Weaknesses, p.Weaknesses)
		report.SuggestedActions = appendCapped(report.SuggestedActions, p.Suggestions)
	}
	return report
}

// splitStages partitions the analysis stages into completed (a real
// payload landed) and failed (fallback, still processing, or missing).
func splitStages(responses map[model.StageID]model.StagePayload) (completed, failed []model.StageID) {
	for _, stage := range model.AnalysisStages {
		p, ok := responses[stage]
		if !ok || p.Processing() || p.Fallback {
			failed = append(failed, stage)
			continue
		}
		completed = append(completed, stage)
	}
	return completed, failed
}

// categoryScores collects every materialized stage score, fallback
// defaults included, keyed by stage.
func categoryScores(responses map[model.StageID]model.StagePayload) map[model.StageID]float64 {
	out := make(map[model.StageID]float64, len(responses))
	for stage, p := range responses {
		if !model.IsAnalysisStage(stage) || p.Processing() {
			continue
		}
		out[stage] = p.Score
	}
	return out
}

func appendCapped(dst, src []string) []string {
	take := fallbackItemsPerStage
	if take > len(src) {
		take = len(src)
	}
	for i := 0; i < take && len(dst) < fallbackListCap; i++ {
		dst = append(dst, src[i])
	}
	return dst
}
