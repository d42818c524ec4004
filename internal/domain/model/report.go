package model

import "math"

// WeightProfile is the per-category scoring profile selected by the
// classifier. Weights cover the 8 analysis stages and sum to 1; the
// synthesis stage itself always has weight 0.
type WeightProfile struct {
	Category string
	Weights  map[StageID]float64
}

// Synthesis completion methods.
const (
	ReportMethodFull           = "full"
	ReportMethodFallback       = "fallback"
	ReportMethodPartialTimeout = "partial_timeout"
)

// CompletionMeta records how the report came to be.
type CompletionMeta struct {
	Partial         bool      `json:"partial"`
	CompletedStages []StageID `json:"completed_stages"`
	FailedStages    []StageID `json:"failed_stages"`
	Method          string    `json:"method"`
}

// IdeaImprovements is a structured before/after rewrite of the idea.
type IdeaImprovements struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// FinalReport is the synthesis output embedded in the job record.
//
// On the full path OverallScore == round(Σ WeightedScores), where
// WeightedScores[s] = CategoryScores[s] * weight[s] * 10 so the overall
// lands in [0,100]. The fallback path instead uses the unweighted mean
// of available stage scores scaled ×10.
type FinalReport struct {
	OverallScore     float64             `json:"overall_score"`
	BusinessCategory string              `json:"business_category"`
	WeightedScores   map[StageID]float64 `json:"weighted_scores"`
	CategoryScores   map[StageID]float64 `json:"category_scores"`
	Strengths        []string            `json:"strengths"`
	Weaknesses       []string            `json:"weaknesses"`
	SuggestedActions []string            `json:"suggested_actions"`
	IdeaImprovements IdeaImprovements    `json:"idea_improvements"`
	Completion       CompletionMeta      `json:"completion"`
}

// WeightedOverall computes the overall score from raw stage scores and a
// weight profile, scaled to [0,100] and rounded to the nearest integer.
func WeightedOverall(scores map[StageID]float64, profile WeightProfile) (float64, map[StageID]float64) {
	weighted := make(map[StageID]float64, len(scores))
	sum := 0.0
	for _, s := range AnalysisStages {
		w := profile.Weights[s]
		ws := scores[s] * w * 10
		weighted[s] = ws
		sum += ws
	}
	return math.Round(sum), weighted
}

// MeanOverall is the fallback aggregation: the unweighted mean of the
// given scores scaled ×10 and rounded.
func MeanOverall(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return math.Round(sum / float64(len(scores)) * 10)
}
