package usecase

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"venture-idea-analyzer/internal/domain/model"
)

// StageSpec describes one analysis stage at the inference boundary: the
// system role sent with the request, the response fields that must come
// back, the per-stage timeout, and the deterministic payload substituted
// when the call fails.
type StageSpec struct {
	ID             model.StageID
	SystemRole     string
	Timeout        time.Duration
	RequiredFields []string
	Fallback       func() model.StagePayload
}

// stageSpecs is keyed by stage id; model.AnalysisStages gives the order.
// Timeouts vary with stage criticality: the stages the classifier and
// report lean on hardest get the longer budget.
var stageSpecs = map[model.StageID]StageSpec{
	model.StageProblem: {
		ID: model.StageProblem,
		SystemRole: "You are a startup analyst evaluating the problem a business idea addresses. " +
			"Respond with a JSON object: score (0-10), reasoning, pain_points (array of strings), " +
			"strengths, weaknesses, suggested_actions (arrays of strings).",
		Timeout:        45 * time.Second,
		RequiredFields: []string{"pain_points"},
		Fallback:       fallbackPayload("pain_points", []string{"not assessed"}),
	},
	model.StageMarket: {
		ID: model.StageMarket,
		SystemRole: "You are a market sizing analyst. Respond with a JSON object: score (0-10), " +
			"reasoning, tam, sam, som (strings describing market size), strengths, weaknesses, " +
			"suggested_actions (arrays of strings).",
		Timeout:        45 * time.Second,
		RequiredFields: []string{"tam", "sam", "som"},
		Fallback:       fallbackPayload("tam", "unknown", "sam", "unknown", "som", "unknown"),
	},
	model.StageCompetitive: {
		ID: model.StageCompetitive,
		SystemRole: "You are a competitive landscape analyst. Respond with a JSON object: score (0-10), " +
			"reasoning, competitors (array of strings), strengths, weaknesses, suggested_actions.",
		Timeout:        30 * time.Second,
		RequiredFields: []string{"competitors"},
		Fallback:       fallbackPayload("competitors", []string{}),
	},
	model.StageUVP: {
		ID: model.StageUVP,
		SystemRole: "You evaluate unique value propositions. Respond with a JSON object: score (0-10), " +
			"reasoning, value_proposition (string), strengths, weaknesses, suggested_actions.",
		Timeout:        30 * time.Second,
		RequiredFields: []string{"value_proposition"},
		Fallback:       fallbackPayload("value_proposition", "not assessed"),
	},
	model.StageBusinessModel: {
		ID: model.StageBusinessModel,
		SystemRole: "You evaluate business models. Respond with a JSON object: score (0-10), reasoning, " +
			"revenue_streams (array of strings), strengths, weaknesses, suggested_actions.",
		Timeout:        45 * time.Second,
		RequiredFields: []string{"revenue_streams"},
		Fallback:       fallbackPayload("revenue_streams", []string{"not assessed"}),
	},
	model.StageValidation: {
		ID: model.StageValidation,
		SystemRole: "You design early validation plans. Respond with a JSON object: score (0-10), " +
			"reasoning, experiments (array of strings), strengths, weaknesses, suggested_actions.",
		Timeout:        30 * time.Second,
		RequiredFields: []string{"experiments"},
		Fallback:       fallbackPayload("experiments", []string{"not assessed"}),
	},
	model.StageLegal: {
		ID: model.StageLegal,
		SystemRole: "You flag legal and regulatory exposure. Respond with a JSON object: score (0-10), " +
			"reasoning, risks (array of strings), strengths, weaknesses, suggested_actions.",
		Timeout:        15 * time.Second,
		RequiredFields: []string{"risks"},
		Fallback:       fallbackPayload("risks", []string{"not assessed"}),
	},
	model.StageMetrics: {
		ID: model.StageMetrics,
		SystemRole: "You define success metrics for early-stage ventures. Respond with a JSON object: " +
			"score (0-10), reasoning, kpis (array of strings), strengths, weaknesses, suggested_actions.",
		Timeout:        15 * time.Second,
		RequiredFields: []string{"kpis"},
		Fallback:       fallbackPayload("kpis", []string{"not assessed"}),
	},
}

// SpecFor returns the spec for a stage id. Callers pass ids from
// model.AnalysisStages, so a miss is a programming error.
func SpecFor(id model.StageID) StageSpec {
	spec, ok := stageSpecs[id]
	if !ok {
		panic(fmt.Sprintf("no spec for stage %q", id))
	}
	return spec
}

// fallbackPayload builds the deterministic substitute for a failed stage:
// the default score, a short apologetic rationale, and placeholders for
// the stage-specific required fields.
func fallbackPayload(kv ...any) func() model.StagePayload {
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i].(string)] = kv[i+1]
	}
	return func() model.StagePayload {
		cp := make(map[string]any, len(fields))
		for k, v := range fields {
			cp[k] = v
		}
		return model.StagePayload{
			Score:     model.FallbackScore,
			Rationale: "We could not complete this part of the analysis; a neutral default was applied.",
			Fields:    cp,
			Fallback:  true,
		}
	}
}

// BuildStageContext assembles the user message for a stage: the raw idea
// plus every prior stage's payload that is present. Failed stages
// contribute their fallback payload, so the context never misses a key,
// only possibly carries low-confidence values. Stage order is fixed for
// determinism.
func BuildStageContext(ideaText string, prior map[model.StageID]model.StagePayload) string {
	var b strings.Builder
	b.WriteString("Idea:\n")
	b.WriteString(ideaText)
	if len(prior) == 0 {
		return b.String()
	}
	b.WriteString("\n\nEarlier analysis:\n")
	for _, s := range model.AnalysisStages {
		p, ok := prior[s]
		if !ok || p.Processing() {
			continue
		}
		enc, err := json.Marshal(summarizePayload(p))
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", s, enc)
	}
	return b.String()
}

// summarizePayload keeps the context compact: score, rationale and the
// stage-specific fields. json.Marshal emits map keys sorted, so the
// serialized context is deterministic for identical inputs.
func summarizePayload(p model.StagePayload) map[string]any {
	out := map[string]any{
		"score":     p.Score,
		"rationale": p.Rationale,
	}
	for k, v := range p.Fields {
		out[k] = v
	}
	return out
}
