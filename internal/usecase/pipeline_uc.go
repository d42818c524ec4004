package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"venture-idea-analyzer/internal/domain"
	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/repository"
	"venture-idea-analyzer/internal/infra/logging"
	"venture-idea-analyzer/internal/infra/metrics"
)

var _ PipelineUseCase = (*pipelineUC)(nil)

// PipelineUseCase runs a job's full analysis in one pass: every stage
// in order, then synthesis. It is the background-worker entry point;
// the polling path goes through StepDriver instead.
type PipelineUseCase interface {
	Run(ctx context.Context, job *model.AnalysisJob, idea *model.Idea) (*model.FinalReport, error)
}

type pipelineUC struct {
	jobs     repository.AnalysisJobRepository
	exec     *StageExecutor
	synth    *Synthesizer
	locks    StageLocker
	leaseTTL time.Duration
	budget   time.Duration
	log      *zerolog.Logger

	// swappable in tests
	now   func() time.Time
	sleep func(time.Duration)
}

func NewPipelineUseCase(jobs repository.AnalysisJobRepository, exec *StageExecutor, synth *Synthesizer, locks StageLocker, leaseTTL time.Duration, budget time.Duration, log *zerolog.Logger) *pipelineUC {
	return &pipelineUC{
		jobs: jobs, exec: exec, synth: synth,
		locks: locks, leaseTTL: leaseTTL,
		budget: budget, log: log,
		now: time.Now, sleep: time.Sleep,
	}
}

// Lease-wait cadence when a polling client holds a stage's lease. The
// total wait outlives the default lease TTL, so a crashed holder's
// lease expires and the loop reacquires before giving up.
const (
	leaseWaitInterval = 2 * time.Second
	leaseWaitAttempts = 45
)

// Run executes every remaining stage in the fixed order, classifies the
// idea once enough signal exists, synthesizes, and persists the final
// report. Stages never abort the run: failures become fallback payloads.
// The only error paths are every stage failing and a final-report write
// failing.
func (uc *pipelineUC) Run(ctx context.Context, job *model.AnalysisJob, idea *model.Idea) (*model.FinalReport, error) {
	log := logging.With(logging.WithJobID(ctx, job.ID), uc.log)
	defer logging.TraceDuration(log, "PipelineUC.Run")()

	start := uc.now()
	if job.Responses == nil {
		job.Responses = make(map[model.StageID]model.StagePayload, len(model.AnalysisStages))
	}

	var profile *model.WeightProfile
	last := model.AnalysisStages[len(model.AnalysisStages)-1]
	for _, stage := range model.AnalysisStages {
		if p, ok := job.Responses[stage]; ok && !p.Processing() {
			continue // resumed job; stage already materialized
		}
		job.Responses[stage] = uc.runStageGuarded(ctx, job, idea, stage, log)

		// The legal stage is the last one the classifier draws signal
		// from; pin the profile here so later stages and the report
		// all see the same category.
		if stage == model.StageLegal && profile == nil {
			p := Classify(idea.Content, job.Responses)
			profile = &p
			log.Info().Str("category", p.Category).Msg("job classified")
		}

		// The budget gates work still ahead of the run; once the final
		// stage has materialized, synthesis proceeds regardless.
		if stage != last && uc.now().Sub(start) > uc.budget {
			log.Warn().Str("stage", string(stage)).Dur("budget", uc.budget).Msg("global budget exceeded; finishing with partial report")
			return uc.finishPartialTimeout(ctx, job, idea)
		}
	}

	completed, _ := splitStages(job.Responses)
	if len(completed) == 0 {
		if err := uc.jobs.SetStatus(ctx, nil, job.ID, model.JobStatusFailed); err != nil {
			log.Error().Err(err).Msg("set job status failed")
		}
		metrics.IncJobFinished(string(model.JobStatusFailed))
		return nil, domain.ErrAllStagesFailed
	}

	if profile == nil {
		p := Classify(idea.Content, job.Responses)
		profile = &p
	}
	return uc.synthesizeAndStore(ctx, job, idea, *profile, log)
}

// synthesizeAndStore runs synthesis under the vc_lead lease. If a
// polling driver synthesized first, its persisted report wins.
func (uc *pipelineUC) synthesizeAndStore(ctx context.Context, job *model.AnalysisJob, idea *model.Idea, profile model.WeightProfile, log *zerolog.Logger) (*model.FinalReport, error) {
	key := stageLeaseKey(job.ID, model.StageVCLead)
	token, acquired := "", false
	for attempt := 0; attempt < leaseWaitAttempts; attempt++ {
		tok, err := uc.locks.TryLock(ctx, key, uc.leaseTTL)
		if err == nil {
			token, acquired = tok, true
			break
		}
		if !errors.Is(err, domain.ErrStageAlreadyRunning) {
			log.Warn().Err(err).Msg("synthesis lease unavailable; running unguarded")
			break
		}
		uc.sleep(leaseWaitInterval)
		if fresh, ferr := uc.jobs.FindByID(ctx, nil, job.ID); ferr == nil && fresh.FinalReport != nil {
			return fresh.FinalReport, nil
		}
	}
	if acquired {
		defer func() {
			if uerr := uc.locks.Unlock(context.WithoutCancel(ctx), key, token); uerr != nil {
				log.Warn().Err(uerr).Msg("synthesis lease release failed")
			}
		}()
	}

	report := uc.synth.Synthesize(ctx, idea, job.Responses, profile)
	status := terminalStatus(report)
	if err := uc.jobs.SetFinalReport(ctx, nil, job.ID, report, status); err != nil {
		return nil, err
	}
	metrics.IncJobFinished(string(status))
	return report, nil
}

// runStageGuarded executes one stage under the same lease the polling
// path takes, so a trigger_next request racing the worker never runs
// the same stage twice. When a poller holds the lease, the worker waits
// for its result instead of duplicating the call.
func (uc *pipelineUC) runStageGuarded(ctx context.Context, job *model.AnalysisJob, idea *model.Idea, stage model.StageID, log *zerolog.Logger) model.StagePayload {
	key := stageLeaseKey(job.ID, stage)
	for attempt := 0; attempt < leaseWaitAttempts; attempt++ {
		token, err := uc.locks.TryLock(ctx, key, uc.leaseTTL)
		if err == nil {
			payload := uc.exec.Execute(ctx, job.ID, stage, idea.Content, job.Responses)
			if uerr := uc.locks.Unlock(context.WithoutCancel(ctx), key, token); uerr != nil {
				log.Warn().Err(uerr).Str("stage", string(stage)).Msg("stage lease release failed")
			}
			return payload
		}
		if !errors.Is(err, domain.ErrStageAlreadyRunning) {
			// Lease backend trouble. Running unguarded beats stalling
			// every claimed job behind an unreachable Redis.
			log.Warn().Err(err).Str("stage", string(stage)).Msg("stage lease unavailable; running unguarded")
			break
		}
		uc.sleep(leaseWaitInterval)
		fresh, ferr := uc.jobs.FindByID(ctx, nil, job.ID)
		if ferr != nil {
			continue
		}
		if p, ok := fresh.Responses[stage]; ok && !p.Processing() {
			return p // the lease holder finished the stage
		}
	}
	return uc.exec.Execute(ctx, job.ID, stage, idea.Content, job.Responses)
}

// finishPartialTimeout closes the job once the global budget runs out.
// Remaining stages are recorded as failed and the overall score is the
// mean of what did complete; synthesis is skipped entirely.
func (uc *pipelineUC) finishPartialTimeout(ctx context.Context, job *model.AnalysisJob, idea *model.Idea) (*model.FinalReport, error) {
	completed, failed := splitStages(job.Responses)
	succeeded := make([]float64, 0, len(completed))
	for _, stage := range completed {
		succeeded = append(succeeded, job.Responses[stage].Score)
	}
	profile := Classify(idea.Content, job.Responses)

	report := &model.FinalReport{
		OverallScore:     model.MeanOverall(succeeded),
		BusinessCategory: profile.Category,
		CategoryScores:   categoryScores(job.Responses),
		IdeaImprovements: model.IdeaImprovements{Before: idea.Content},
		Completion: model.CompletionMeta{
			Partial:         true,
			CompletedStages: completed,
			FailedStages:    append(append([]model.StageID{}, failed...), model.StageVCLead),
			Method:          model.ReportMethodPartialTimeout,
		},
	}
	if err := uc.jobs.SetFinalReport(ctx, nil, job.ID, report, model.JobStatusCompletedWithErrors); err != nil {
		return nil, err
	}
	metrics.IncJobFinished(string(model.JobStatusCompletedWithErrors))
	return report, nil
}

// terminalStatus distinguishes a clean completion from one where any
// stage (or the synthesis itself) fell back.
func terminalStatus(report *model.FinalReport) model.AnalysisJobStatus {
	if report.Completion.Partial || len(report.Completion.FailedStages) > 0 {
		return model.JobStatusCompletedWithErrors
	}
	return model.JobStatusCompleted
}
