package model

import "time"

// StageID identifies one analysis stage of the pipeline.
type StageID string

const (
	StageProblem       StageID = "problem"
	StageMarket        StageID = "market"
	StageCompetitive   StageID = "competitive"
	StageUVP           StageID = "uvp"
	StageBusinessModel StageID = "business_model"
	StageValidation    StageID = "validation"
	StageLegal         StageID = "legal"
	StageMetrics       StageID = "metrics"

	// StageVCLead is the synthesis stage. It is never part of the analysis
	// sequence and always carries weight 0 in a weight profile.
	StageVCLead StageID = "vc_lead"
)

// AnalysisStages is the fixed execution order of the 8 analysis stages.
// Later stages read earlier stages' outputs, so the order matters.
var AnalysisStages = []StageID{
	StageProblem,
	StageMarket,
	StageCompetitive,
	StageUVP,
	StageBusinessModel,
	StageValidation,
	StageLegal,
	StageMetrics,
}

// IsAnalysisStage reports whether id is one of the 8 analysis stages.
func IsAnalysisStage(id StageID) bool {
	for _, s := range AnalysisStages {
		if s == id {
			return true
		}
	}
	return false
}

const (
	// StagePayloadProcessing marks a response-map entry as "currently
	// executing". It is a cooperative marker only; the authoritative
	// duplicate-execution guard is the stage lease.
	StagePayloadProcessing = "processing"

	// FallbackScore is substituted when a stage's inference call fails.
	// Downstream aggregation must never see a stage without a score.
	FallbackScore = 5.0
)

// StagePayload is the structured result of one stage, as stored in the
// job's response map. Score is in [0,10].
type StagePayload struct {
	Status      string         `json:"status,omitempty"`
	Score       float64        `json:"score"`
	Rationale   string         `json:"rationale"`
	Strengths   []string       `json:"strengths,omitempty"`
	Weaknesses  []string       `json:"weaknesses,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Fallback    bool           `json:"fallback,omitempty"`
}

// Processing reports whether this entry is the provisional sentinel
// written before a stage starts, not a real result.
func (p StagePayload) Processing() bool { return p.Status == StagePayloadProcessing }

// ProcessingPayload builds the sentinel entry for a stage about to run.
func ProcessingPayload() StagePayload {
	return StagePayload{Status: StagePayloadProcessing}
}

// StageResult is the append-style audit record of one stage execution,
// keyed by (JobID, StageID).
type StageResult struct {
	ID            string
	JobID         string
	StageID       StageID
	InputSnapshot string
	Payload       StagePayload
	CreatedAt     time.Time
}
