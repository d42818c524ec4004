package usecase

import (
	"context"
	"math"
	"testing"

	"venture-idea-analyzer/internal/domain/model"
)

func fullResponses(score float64) map[model.StageID]model.StagePayload {
	out := make(map[model.StageID]model.StagePayload, len(model.AnalysisStages))
	for _, s := range model.AnalysisStages {
		p, err := parseStagePayload(stageJSON(s, score), SpecFor(s))
		if err != nil {
			panic(err)
		}
		out[s] = p
	}
	return out
}

func TestSynthesizeFullPath(t *testing.T) {
	ai := allSucceedAI(8)
	synth := NewSynthesizer(ai, "test-model", testLogger())
	idea := &model.Idea{ID: "i1", Content: "a b2b saas tool"}
	profile := Classify(idea.Content, nil)

	report := synth.Synthesize(context.Background(), idea, fullResponses(8), profile)
	if report == nil {
		t.Fatal("report must never be nil")
	}
	if report.Completion.Method != model.ReportMethodFull {
		t.Errorf("method = %q, want full", report.Completion.Method)
	}
	if report.Completion.Partial {
		t.Error("all stages succeeded; report must not be partial")
	}
	if len(report.Completion.CompletedStages) != len(model.AnalysisStages) {
		t.Errorf("completed = %v", report.Completion.CompletedStages)
	}
	if report.BusinessCategory != CategoryB2BSaaS {
		t.Errorf("category = %q", report.BusinessCategory)
	}
	if len(report.Strengths) == 0 {
		t.Error("qualitative sections missing")
	}
	// Uniform scores make the weighted overall independent of weights.
	if report.OverallScore != 80 {
		t.Errorf("overall = %v, want 80", report.OverallScore)
	}
}

func TestSynthesizeOverallEqualsRoundedWeightedSum(t *testing.T) {
	ai := allSucceedAI(7)
	synth := NewSynthesizer(ai, "test-model", testLogger())
	idea := &model.Idea{ID: "i1", Content: "a marketplace connecting buyers and sellers"}
	profile := Classify(idea.Content, nil)

	responses := fullResponses(7)
	// Vary a few scores so the invariant is non-trivial.
	p := responses[model.StageMarket]
	p.Score = 9
	responses[model.StageMarket] = p
	p = responses[model.StageLegal]
	p.Score = 3
	responses[model.StageLegal] = p

	report := synth.Synthesize(context.Background(), idea, responses, profile)
	sum := 0.0
	for _, s := range model.AnalysisStages {
		sum += report.WeightedScores[s]
	}
	if report.OverallScore != math.Round(sum) {
		t.Errorf("overall %v != round(sum of weighted) %v", report.OverallScore, math.Round(sum))
	}
	for _, s := range model.AnalysisStages {
		want := report.CategoryScores[s] * profile.Weights[s] * 10
		if math.Abs(report.WeightedScores[s]-want) > 1e-9 {
			t.Errorf("weighted[%s] = %v, want %v", s, report.WeightedScores[s], want)
		}
	}
}

func TestSynthesizeFallbackOnCallFailure(t *testing.T) {
	ai := failingStagesAI(8, true)
	synth := NewSynthesizer(ai, "test-model", testLogger())
	idea := &model.Idea{ID: "i1", Content: "a b2b saas tool"}
	profile := Classify(idea.Content, nil)

	report := synth.Synthesize(context.Background(), idea, fullResponses(8), profile)
	if report.Completion.Method != model.ReportMethodFallback {
		t.Fatalf("method = %q, want fallback", report.Completion.Method)
	}
	if !report.Completion.Partial {
		t.Error("fallback report must be marked partial")
	}
	found := false
	for _, s := range report.Completion.FailedStages {
		if s == model.StageVCLead {
			found = true
		}
	}
	if !found {
		t.Errorf("vc_lead must appear in failed stages: %v", report.Completion.FailedStages)
	}
	// All 8 stages succeeded at 8, so the mean is 80.
	if report.OverallScore != 80 {
		t.Errorf("overall = %v, want mean-based 80", report.OverallScore)
	}
	if report.IdeaImprovements.Before != idea.Content {
		t.Errorf("before = %q, want original idea text", report.IdeaImprovements.Before)
	}
	if len(report.Strengths) == 0 {
		t.Error("fallback report must assemble strengths from stage payloads")
	}
	if len(report.Strengths) > fallbackListCap {
		t.Errorf("strengths list exceeds cap: %d", len(report.Strengths))
	}
}

func TestSynthesizeFallbackMeanSkipsFailedStages(t *testing.T) {
	ai := failingStagesAI(8, true)
	synth := NewSynthesizer(ai, "test-model", testLogger())
	idea := &model.Idea{ID: "i1", Content: "some generic idea"}
	profile := Classify(idea.Content, nil)

	responses := fullResponses(8)
	responses[model.StageLegal] = SpecFor(model.StageLegal).Fallback()
	responses[model.StageMetrics] = SpecFor(model.StageMetrics).Fallback()

	report := synth.Synthesize(context.Background(), idea, responses, profile)
	// Six real stages at 8: mean 8 ×10 = 80. Fallback 5s excluded.
	if report.OverallScore != 80 {
		t.Errorf("overall = %v, want 80 (fallback scores excluded)", report.OverallScore)
	}
	if len(report.Completion.CompletedStages) != 6 {
		t.Errorf("completed = %v", report.Completion.CompletedStages)
	}
}

func TestSplitStagesPartition(t *testing.T) {
	responses := fullResponses(7)
	responses[model.StageUVP] = SpecFor(model.StageUVP).Fallback()
	responses[model.StageLegal] = model.ProcessingPayload()
	delete(responses, model.StageMetrics)

	completed, failed := splitStages(responses)
	if len(completed)+len(failed) != len(model.AnalysisStages) {
		t.Fatalf("partition lost stages: %v + %v", completed, failed)
	}
	seen := make(map[model.StageID]bool)
	for _, s := range append(append([]model.StageID{}, completed...), failed...) {
		if seen[s] {
			t.Fatalf("stage %s in both sets", s)
		}
		seen[s] = true
	}
	if len(failed) != 3 {
		t.Errorf("failed = %v, want uvp, legal, metrics", failed)
	}
}
