package usecase

import (
	"sort"
	"strings"

	"venture-idea-analyzer/internal/domain/model"
)

// Business categories assigned by the classifier. Each carries a weight
// profile over the eight analysis stages that determines how category
// scores roll up into the overall score.
const (
	CategorySocialImpact = "Social Impact"
	CategoryHealthcare   = "Healthcare"
	CategoryB2BSaaS      = "B2B SaaS"
	CategoryMarketplace  = "Marketplace"
	CategoryConsumerApp  = "Consumer App"
	CategoryGeneral      = "General"
)

type categoryRule struct {
	category string
	match    func(raw string, partial map[model.StageID]model.StagePayload) bool
	weights  map[model.StageID]float64
}

// categoryRules is an ordered table; the first matching rule wins, so
// an idea touching several categories classifies the same way every
// time. Every weight map sums to exactly 1.00.
var categoryRules = []categoryRule{
	{
		category: CategorySocialImpact,
		match: keywordRule("nonprofit", "non-profit", "social impact", "charity", "donation",
			"community", "underserved", "sustainab", "climate", "environment"),
		weights: map[model.StageID]float64{
			model.StageProblem:       0.25,
			model.StageMarket:        0.10,
			model.StageCompetitive:   0.05,
			model.StageUVP:           0.15,
			model.StageBusinessModel: 0.10,
			model.StageValidation:    0.15,
			model.StageLegal:         0.10,
			model.StageMetrics:       0.10,
		},
	},
	{
		category: CategoryHealthcare,
		match: keywordRule("health", "medical", "patient", "clinic", "therapy",
			"telemedicine", "diagnos", "pharma", "wellness"),
		weights: map[model.StageID]float64{
			model.StageProblem:       0.15,
			model.StageMarket:        0.10,
			model.StageCompetitive:   0.05,
			model.StageUVP:           0.10,
			model.StageBusinessModel: 0.10,
			model.StageValidation:    0.15,
			model.StageLegal:         0.25,
			model.StageMetrics:       0.10,
		},
	},
	{
		category: CategoryB2BSaaS,
		match: keywordRule("b2b", "saas", "enterprise", "workflow", "crm", "erp",
			"api for", "for businesses", "for companies", "for teams"),
		weights: map[model.StageID]float64{
			model.StageProblem:       0.10,
			model.StageMarket:        0.15,
			model.StageCompetitive:   0.15,
			model.StageUVP:           0.15,
			model.StageBusinessModel: 0.20,
			model.StageValidation:    0.10,
			model.StageLegal:         0.05,
			model.StageMetrics:       0.10,
		},
	},
	{
		category: CategoryMarketplace,
		match: keywordRule("marketplace", "two-sided", "connecting", "connects", "matching",
			"buyers and sellers", "peer-to-peer", "p2p", "gig"),
		weights: map[model.StageID]float64{
			model.StageProblem:       0.10,
			model.StageMarket:        0.20,
			model.StageCompetitive:   0.15,
			model.StageUVP:           0.10,
			model.StageBusinessModel: 0.15,
			model.StageValidation:    0.15,
			model.StageLegal:         0.05,
			model.StageMetrics:       0.10,
		},
	},
	{
		category: CategoryConsumerApp,
		match: keywordRule("mobile app", "consumer", "social network", "ios", "android",
			"subscription app", "game", "fitness app"),
		weights: map[model.StageID]float64{
			model.StageProblem:       0.15,
			model.StageMarket:        0.15,
			model.StageCompetitive:   0.15,
			model.StageUVP:           0.20,
			model.StageBusinessModel: 0.10,
			model.StageValidation:    0.10,
			model.StageLegal:         0.05,
			model.StageMetrics:       0.10,
		},
	},
}

var defaultWeights = map[model.StageID]float64{
	model.StageProblem:       0.15,
	model.StageMarket:        0.15,
	model.StageCompetitive:   0.10,
	model.StageUVP:           0.15,
	model.StageBusinessModel: 0.15,
	model.StageValidation:    0.10,
	model.StageLegal:         0.05,
	model.StageMetrics:       0.15,
}

// Classify assigns a business category from the raw idea text and any
// partial stage output available at call time. It is a pure function:
// same inputs, same category. Callers pin the returned profile on the
// job and reuse it, never re-classify mid-run.
func Classify(raw string, partial map[model.StageID]model.StagePayload) model.WeightProfile {
	for _, rule := range categoryRules {
		if rule.match(raw, partial) {
			return model.WeightProfile{Category: rule.category, Weights: rule.weights}
		}
	}
	return model.WeightProfile{Category: CategoryGeneral, Weights: defaultWeights}
}

// keywordRule matches when any keyword appears in the idea text or in
// the rationale and string fields of the problem, business model or
// legal payloads, which carry the most category signal. Fields are
// visited in sorted key order and segments are newline-separated, so a
// multi-word keyword can only match inside a single value, never across
// the seam of two.
func keywordRule(keywords ...string) func(string, map[model.StageID]model.StagePayload) bool {
	return func(raw string, partial map[model.StageID]model.StagePayload) bool {
		var b strings.Builder
		b.WriteString(strings.ToLower(raw))
		for _, s := range []model.StageID{model.StageProblem, model.StageBusinessModel, model.StageLegal} {
			p, ok := partial[s]
			if !ok || p.Processing() {
				continue
			}
			b.WriteString("\n")
			b.WriteString(strings.ToLower(p.Rationale))
			keys := make([]string, 0, len(p.Fields))
			for k := range p.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if str, ok := p.Fields[k].(string); ok {
					b.WriteString("\n")
					b.WriteString(strings.ToLower(str))
				}
			}
		}
		haystack := b.String()
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				return true
			}
		}
		return false
	}
}
