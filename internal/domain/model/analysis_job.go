package model

import "time"

type AnalysisJobStatus string

const (
	JobStatusPending             AnalysisJobStatus = "pending"
	JobStatusProcessing          AnalysisJobStatus = "processing"
	JobStatusCompleted           AnalysisJobStatus = "completed"
	JobStatusCompletedWithErrors AnalysisJobStatus = "completed_with_errors"
	JobStatusFailed              AnalysisJobStatus = "failed"
)

// Terminal reports whether no further stage work may happen on a job
// in this status.
func (s AnalysisJobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed:
		return true
	}
	return false
}

// AnalysisJob is the durable record of one pipeline run.
//
// Invariants:
//   - Status == completed implies FinalReport != nil with a numeric
//     OverallScore.
//   - Status == failed implies no further stage writes occur.
//
// Responses maps stage id to that stage's latest payload (the sentinel
// entry included); insertion order is irrelevant. Readers must tolerate
// interim partial state: a status flag may land before stage data or
// vice versa.
type AnalysisJob struct {
	ID           string
	IdeaID       string
	Status       AnalysisJobStatus
	Responses    map[StageID]StagePayload
	FinalReport  *FinalReport
	OverallScore *float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NextStage returns the first analysis stage, in fixed order, that has no
// entry in the response map, or "" when all 8 are present. The sentinel
// counts as present: a stage being worked on is not schedulable again.
func (j *AnalysisJob) NextStage() StageID {
	for _, s := range AnalysisStages {
		if _, ok := j.Responses[s]; !ok {
			return s
		}
	}
	return ""
}

// CompletedStageCount counts stages with a real (non-sentinel) payload.
func (j *AnalysisJob) CompletedStageCount() int {
	n := 0
	for _, s := range AnalysisStages {
		if p, ok := j.Responses[s]; ok && !p.Processing() {
			n++
		}
	}
	return n
}

// JobSnapshot is what FetchWithStages returns: the job plus its source
// idea and the audit trail of stage executions.
type JobSnapshot struct {
	Job     *AnalysisJob
	Idea    *Idea
	Results []*StageResult
}
