package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"venture-idea-analyzer/internal/domain"
	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/repository"
	"venture-idea-analyzer/internal/infra/metrics"
)

// StageLocker is a short-lived mutual-exclusion lease keyed per job and
// stage. It keeps concurrent pollers from running the same stage twice;
// the "processing" marker in the response map is only a visible hint.
type StageLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// StepOutcome reports what one Advance call did and where the job
// stands afterwards.
type StepOutcome struct {
	Job     *model.AnalysisJob
	Idea    *model.Idea
	Results []*model.StageResult

	NextStage      model.StageID // empty once all stages have entries
	Ran            model.StageID // stage executed by this call, if any
	Synthesized    bool
	AlreadyRunning bool
}

// StepDriver advances a job one stage per call. It backs the polling
// endpoint: each progress request with trigger_next set moves the job
// forward by at most one stage, or runs synthesis when all stages are
// done.
type StepDriver struct {
	jobs     repository.AnalysisJobRepository
	exec     *StageExecutor
	synth    *Synthesizer
	locks    StageLocker
	leaseTTL time.Duration
	log      *zerolog.Logger
}

func NewStepDriver(jobs repository.AnalysisJobRepository, exec *StageExecutor, synth *Synthesizer, locks StageLocker, leaseTTL time.Duration, log *zerolog.Logger) *StepDriver {
	return &StepDriver{jobs: jobs, exec: exec, synth: synth, locks: locks, leaseTTL: leaseTTL, log: log}
}

func stageLeaseKey(jobID string, stage model.StageID) string {
	return fmt.Sprintf("stage-lease:%s:%s", jobID, stage)
}

// Advance loads the job by id (or idea id) and moves it forward one
// step. Terminal jobs are returned as-is; a stage already running on
// another request is reported, not re-run.
func (d *StepDriver) Advance(ctx context.Context, key string) (*StepOutcome, error) {
	snap, err := d.jobs.FetchWithStages(ctx, nil, key)
	if err != nil {
		return nil, err
	}
	out := &StepOutcome{Job: snap.Job, Idea: snap.Idea, Results: snap.Results}
	if snap.Job.Status.Terminal() {
		return out, nil
	}

	// A persisted processing marker is not trusted on its own: a driver
	// that crashed between writing the marker and writing the result
	// would leave it behind forever. The lease decides; if it is free,
	// the marker is stale and the stage runs again.
	next := nextSchedulable(snap.Job)
	if next != "" {
		return d.runStage(ctx, out, next)
	}
	return d.runSynthesis(ctx, out)
}

func (d *StepDriver) runStage(ctx context.Context, out *StepOutcome, stage model.StageID) (*StepOutcome, error) {
	job := out.Job
	token, err := d.locks.TryLock(ctx, stageLeaseKey(job.ID, stage), d.leaseTTL)
	if errors.Is(err, domain.ErrStageAlreadyRunning) {
		out.NextStage = stage
		out.AlreadyRunning = true
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquire stage lease: %w", err)
	}
	defer func() {
		if uerr := d.locks.Unlock(context.WithoutCancel(ctx), stageLeaseKey(job.ID, stage), token); uerr != nil {
			d.log.Warn().Err(uerr).Str("job_id", job.ID).Str("stage", string(stage)).Msg("stage lease release failed")
		}
	}()

	if job.Status == model.JobStatusPending {
		if err := d.jobs.SetStatus(ctx, nil, job.ID, model.JobStatusProcessing); err != nil {
			d.log.Error().Err(err).Str("job_id", job.ID).Msg("set job status failed")
		} else {
			job.Status = model.JobStatusProcessing
		}
	}

	// Visible marker for other readers; the lease above is the actual
	// guard against double execution.
	if err := d.jobs.MergeStagePayload(ctx, nil, job.ID, stage, model.ProcessingPayload()); err != nil {
		d.log.Error().Err(err).Str("job_id", job.ID).Str("stage", string(stage)).Msg("merge processing marker failed")
	}

	payload := d.exec.Execute(ctx, job.ID, stage, out.Idea.Content, job.Responses)
	if job.Responses == nil {
		job.Responses = make(map[model.StageID]model.StagePayload, len(model.AnalysisStages))
	}
	job.Responses[stage] = payload

	out.Ran = stage
	out.NextStage = nextSchedulable(job)
	return out, nil
}

func (d *StepDriver) runSynthesis(ctx context.Context, out *StepOutcome) (*StepOutcome, error) {
	job := out.Job
	token, err := d.locks.TryLock(ctx, stageLeaseKey(job.ID, model.StageVCLead), d.leaseTTL)
	if errors.Is(err, domain.ErrStageAlreadyRunning) {
		out.AlreadyRunning = true
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquire synthesis lease: %w", err)
	}
	defer func() {
		if uerr := d.locks.Unlock(context.WithoutCancel(ctx), stageLeaseKey(job.ID, model.StageVCLead), token); uerr != nil {
			d.log.Warn().Err(uerr).Str("job_id", job.ID).Msg("synthesis lease release failed")
		}
	}()

	completed, _ := splitStages(job.Responses)
	if len(completed) == 0 {
		if serr := d.jobs.SetStatus(ctx, nil, job.ID, model.JobStatusFailed); serr != nil {
			d.log.Error().Err(serr).Str("job_id", job.ID).Msg("set job status failed")
		}
		job.Status = model.JobStatusFailed
		metrics.IncJobFinished(string(model.JobStatusFailed))
		return out, domain.ErrAllStagesFailed
	}

	profile := Classify(out.Idea.Content, job.Responses)
	report := d.synth.Synthesize(ctx, out.Idea, job.Responses, profile)
	status := terminalStatus(report)
	if err := d.jobs.SetFinalReport(ctx, nil, job.ID, report, status); err != nil {
		return nil, err
	}
	job.FinalReport = report
	job.Status = status
	job.OverallScore = &report.OverallScore
	metrics.IncJobFinished(string(status))
	out.Synthesized = true
	return out, nil
}

// nextSchedulable returns the first stage that is either missing or
// still carries the processing marker. Unlike NextStage on the model,
// it surfaces sentinel-bearing stages so the lease can decide whether
// they are genuinely in flight or leftovers of a dead run.
func nextSchedulable(job *model.AnalysisJob) model.StageID {
	for _, stage := range model.AnalysisStages {
		p, ok := job.Responses[stage]
		if !ok || p.Processing() {
			return stage
		}
	}
	return ""
}
