package repository

import (
	"context"

	"venture-idea-analyzer/internal/domain/model"
)

// AnalysisJobRepository is the Job Store boundary.
//
// Stage payload writes are keyed upserts (one row per job+stage), not
// read-modify-write of a whole map, so concurrent writers for different
// stages cannot clobber each other. Job lookup is by primary id, then by
// the idea id it was created from; there is deliberately no "most recent
// job" fallback; an unmatched key is ErrNotFound.
type AnalysisJobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.AnalysisJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.AnalysisJob, error)
	FindByIdeaID(ctx context.Context, tx Tx, ideaID string) (*model.AnalysisJob, error)

	// MergeStagePayload upserts one stage's entry in the response map,
	// leaving other stages' entries untouched. Idempotent by stage id.
	MergeStagePayload(ctx context.Context, tx Tx, jobID string, stage model.StageID, payload model.StagePayload) error

	// AppendStageResult records the audit row for one stage execution.
	AppendStageResult(ctx context.Context, tx Tx, res *model.StageResult) (string, error)

	SetStatus(ctx context.Context, tx Tx, jobID string, status model.AnalysisJobStatus) error

	// SetFinalReport persists the report, the overall score and the
	// terminal status in a single transaction.
	SetFinalReport(ctx context.Context, tx Tx, jobID string, report *model.FinalReport, status model.AnalysisJobStatus) error

	// FetchWithStages resolves key as a job id first, then as an idea id,
	// and returns the job with its idea and stage audit trail.
	FetchWithStages(ctx context.Context, tx Tx, key string) (*model.JobSnapshot, error)

	// ClaimNextPending atomically fetches the oldest claimable job and
	// marks it processing, so no other worker picks it up. Processing
	// jobs that have gone without a write for too long count as
	// claimable again; nothing may stay wedged behind a dead driver.
	ClaimNextPending(ctx context.Context) (*model.AnalysisJob, error)
}
