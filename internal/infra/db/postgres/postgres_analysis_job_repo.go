// File: internal/infra/db/postgres/postgres_analysis_job_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"venture-idea-analyzer/internal/domain"
	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/repository"
)

var _ repository.AnalysisJobRepository = (*AnalysisJobRepo)(nil)

// AnalysisJobRepo persists jobs across three tables: analysis_jobs for
// the job row, job_stage_payloads for the response map (one row per
// job+stage, written by keyed upsert) and stage_results for the
// append-only audit trail.
type AnalysisJobRepo struct {
	pool       *pgxpool.Pool
	tm         repository.TransactionManager
	ideas      repository.IdeaRepository
	staleAfter time.Duration
}

// defaultStaleAfter must exceed the longest stage execution including
// retries, or an actively running job could be claimed twice. Every
// stage write touches the job's updated_at, so a live run never goes
// this long without a touch.
const defaultStaleAfter = 3 * time.Minute

func NewAnalysisJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager, ideas repository.IdeaRepository, staleAfter time.Duration) *AnalysisJobRepo {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &AnalysisJobRepo{pool: pool, tm: tm, ideas: ideas, staleAfter: staleAfter}
}

func (r *AnalysisJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.AnalysisJob) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	const q = `
INSERT INTO analysis_jobs (id, idea_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5);`

	if _, err := execSQL(ctx, r.pool, tx, q, job.ID, job.IdeaID, string(job.Status), job.CreatedAt, job.UpdatedAt); err != nil {
		return fmt.Errorf("create analysis job: %w", err)
	}
	return nil
}

func (r *AnalysisJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.AnalysisJob, error) {
	const q = `
SELECT id, idea_id, status, final_report, overall_score, created_at, updated_at
FROM analysis_jobs WHERE id = $1;`
	return r.scanJob(ctx, tx, q, id)
}

func (r *AnalysisJobRepo) FindByIdeaID(ctx context.Context, tx repository.Tx, ideaID string) (*model.AnalysisJob, error) {
	const q = `
SELECT id, idea_id, status, final_report, overall_score, created_at, updated_at
FROM analysis_jobs WHERE idea_id = $1;`
	return r.scanJob(ctx, tx, q, ideaID)
}

func (r *AnalysisJobRepo) scanJob(ctx context.Context, tx repository.Tx, q, arg string) (*model.AnalysisJob, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}

	var job model.AnalysisJob
	var status string
	var report []byte
	if err := row.Scan(&job.ID, &job.IdeaID, &status, &report, &job.OverallScore, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, translateScan(err)
	}
	job.Status = model.AnalysisJobStatus(status)
	if len(report) > 0 {
		var fr model.FinalReport
		if err := json.Unmarshal(report, &fr); err != nil {
			return nil, fmt.Errorf("decode final report: %w", err)
		}
		job.FinalReport = &fr
	}
	if err := r.loadResponses(ctx, tx, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *AnalysisJobRepo) loadResponses(ctx context.Context, tx repository.Tx, job *model.AnalysisJob) error {
	const q = `SELECT stage, payload FROM job_stage_payloads WHERE job_id = $1;`
	rows, err := pickRows(ctx, r.pool, tx, q, job.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	job.Responses = make(map[model.StageID]model.StagePayload, len(model.AnalysisStages))
	for rows.Next() {
		var stage string
		var raw []byte
		if err := rows.Scan(&stage, &raw); err != nil {
			return domain.ErrReadDatabaseRow
		}
		var p model.StagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode stage payload %s: %w", stage, err)
		}
		job.Responses[model.StageID(stage)] = p
	}
	return rows.Err()
}

// MergeStagePayload writes one stage's entry without touching the rest
// of the response map. Two writers for different stages of the same job
// never conflict.
func (r *AnalysisJobRepo) MergeStagePayload(ctx context.Context, tx repository.Tx, jobID string, stage model.StageID, payload model.StagePayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode stage payload: %w", err)
	}

	const q = `
INSERT INTO job_stage_payloads (job_id, stage, payload, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (job_id, stage) DO UPDATE SET
  payload = EXCLUDED.payload,
  updated_at = EXCLUDED.updated_at;`
	if _, err := execSQL(ctx, r.pool, tx, q, jobID, string(stage), raw); err != nil {
		return fmt.Errorf("merge stage payload: %w", err)
	}

	const touch = `UPDATE analysis_jobs SET updated_at = NOW() WHERE id = $1;`
	if _, err := execSQL(ctx, r.pool, tx, touch, jobID); err != nil {
		return fmt.Errorf("touch job: %w", err)
	}
	return nil
}

func (r *AnalysisJobRepo) AppendStageResult(ctx context.Context, tx repository.Tx, res *model.StageResult) (string, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}
	raw, err := json.Marshal(res.Payload)
	if err != nil {
		return "", fmt.Errorf("encode stage result payload: %w", err)
	}

	const q = `
INSERT INTO stage_results (id, job_id, stage, input_snapshot, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6);`
	if _, err := execSQL(ctx, r.pool, tx, q, res.ID, res.JobID, string(res.StageID), res.InputSnapshot, raw, res.CreatedAt); err != nil {
		return "", fmt.Errorf("append stage result: %w", err)
	}
	return res.ID, nil
}

func (r *AnalysisJobRepo) SetStatus(ctx context.Context, tx repository.Tx, jobID string, status model.AnalysisJobStatus) error {
	const q = `UPDATE analysis_jobs SET status = $2, updated_at = NOW() WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, jobID, string(status))
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetFinalReport lands the report, overall score and terminal status in
// one transaction so a reader never sees a completed job without its
// report.
func (r *AnalysisJobRepo) SetFinalReport(ctx context.Context, tx repository.Tx, jobID string, report *model.FinalReport, status model.AnalysisJobStatus) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode final report: %w", err)
	}

	const q = `
UPDATE analysis_jobs
SET final_report = $2, overall_score = $3, status = $4, updated_at = NOW()
WHERE id = $1;`

	write := func(ctx context.Context, tx repository.Tx) error {
		tag, err := execSQL(ctx, r.pool, tx, q, jobID, raw, report.OverallScore, string(status))
		if err != nil {
			return fmt.Errorf("set final report: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	}
	if tx != nil {
		return write(ctx, tx)
	}
	return r.tm.WithTx(ctx, pgx.TxOptions{}, write)
}

// FetchWithStages resolves key as a job id first, then as an idea id.
// No other fallback exists: an unmatched key is ErrNotFound, never
// "some recent job".
func (r *AnalysisJobRepo) FetchWithStages(ctx context.Context, tx repository.Tx, key string) (*model.JobSnapshot, error) {
	job, err := r.FindByID(ctx, tx, key)
	if errors.Is(err, domain.ErrNotFound) {
		job, err = r.FindByIdeaID(ctx, tx, key)
	}
	if err != nil {
		return nil, err
	}

	idea, err := r.ideas.FindByID(ctx, tx, job.IdeaID)
	if err != nil {
		return nil, fmt.Errorf("load idea %s: %w", job.IdeaID, err)
	}

	results, err := r.loadResults(ctx, tx, job.ID)
	if err != nil {
		return nil, err
	}
	return &model.JobSnapshot{Job: job, Idea: idea, Results: results}, nil
}

func (r *AnalysisJobRepo) loadResults(ctx context.Context, tx repository.Tx, jobID string) ([]*model.StageResult, error) {
	const q = `
SELECT id, job_id, stage, input_snapshot, payload, created_at
FROM stage_results WHERE job_id = $1 ORDER BY created_at;`
	rows, err := pickRows(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.StageResult
	for rows.Next() {
		var res model.StageResult
		var stage string
		var raw []byte
		if err := rows.Scan(&res.ID, &res.JobID, &stage, &res.InputSnapshot, &raw, &res.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		res.StageID = model.StageID(stage)
		if err := json.Unmarshal(raw, &res.Payload); err != nil {
			return nil, fmt.Errorf("decode stage result payload: %w", err)
		}
		out = append(out, &res)
	}
	return out, rows.Err()
}

// ClaimNextPending atomically picks the oldest claimable job and flips
// it to processing. A job is claimable when pending, or when it has sat
// in processing with no write for longer than staleAfter; the latter
// reclaims jobs orphaned by a worker crash or an abandoned polling run.
// SKIP LOCKED keeps concurrent workers from blocking on each other's
// claim; job ids are ULIDs, so ORDER BY id is creation order.
func (r *AnalysisJobRepo) ClaimNextPending(ctx context.Context) (*model.AnalysisJob, error) {
	var job *model.AnalysisJob
	cutoff := time.Now().Add(-r.staleAfter)

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const q = `
SELECT id FROM analysis_jobs
WHERE status = 'pending'
   OR (status = 'processing' AND updated_at < $1)
ORDER BY id
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, q, cutoff)
		if err != nil {
			return err
		}
		var id string
		if err := row.Scan(&id); err != nil {
			return translateScan(err)
		}
		if err := r.SetStatus(ctx, tx, id, model.JobStatusProcessing); err != nil {
			return err
		}
		claimed, err := r.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		job = claimed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}
