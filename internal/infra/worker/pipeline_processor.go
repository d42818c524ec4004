package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"venture-idea-analyzer/internal/domain"
	"venture-idea-analyzer/internal/domain/ports/repository"
	"venture-idea-analyzer/internal/infra/metrics"
	"venture-idea-analyzer/internal/usecase"
)

// PipelineProcessor drains pending analysis jobs in the background. It
// is fully decoupled from the polling endpoint: a job submitted and
// never polled still runs to completion.
type PipelineProcessor struct {
	jobs         repository.AnalysisJobRepository
	pipeline     usecase.PipelineUseCase
	pollInterval time.Duration
	log          *zerolog.Logger
}

func NewPipelineProcessor(
	jobs repository.AnalysisJobRepository,
	pipeline usecase.PipelineUseCase,
	pollInterval time.Duration,
	log *zerolog.Logger,
) *PipelineProcessor {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &PipelineProcessor{jobs: jobs, pipeline: pipeline, pollInterval: pollInterval, log: log}
}

// Start polls for claimable jobs and hands each one to the pool.
// Run it in a goroutine; it returns when ctx is cancelled.
func (p *PipelineProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Dur("poll_interval", p.pollInterval).Msg("pipeline processor started")
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("pipeline processor stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				p.processOne(ctx)
				return nil
			})
		}
	}
}

func (p *PipelineProcessor) processOne(ctx context.Context) {
	job, err := p.jobs.ClaimNextPending(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Msg("claim pending job failed")
		}
		return
	}

	// The claim returns the bare job; the pipeline also needs the idea
	// text and any stages a polling client already ran.
	snap, err := p.jobs.FetchWithStages(ctx, nil, job.ID)
	if err != nil {
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("load claimed job failed")
		return
	}

	metrics.JobStarted()
	defer metrics.JobFinished()

	p.log.Info().Str("job_id", job.ID).Msg("processing analysis job")
	start := time.Now()
	_, err = p.pipeline.Run(ctx, snap.Job, snap.Idea)
	if err != nil {
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("analysis job failed")
		return
	}
	p.log.Info().Str("job_id", job.ID).Dur("duration", time.Since(start)).Msg("analysis job finished")
}
