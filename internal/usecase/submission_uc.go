package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"venture-idea-analyzer/internal/domain"
	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/repository"
)

const minIdeaLength = 10

var _ SubmissionUseCase = (*submissionUC)(nil)

// SubmissionUseCase accepts a raw idea, persists it with a pending job,
// and kicks off the first analysis step.
type SubmissionUseCase interface {
	Submit(ctx context.Context, content string, metadata map[string]string) (*model.AnalysisJob, error)
}

type submissionUC struct {
	ideas repository.IdeaRepository
	jobs  repository.AnalysisJobRepository
	step  *StepDriver
	log   *zerolog.Logger
}

func NewSubmissionUseCase(ideas repository.IdeaRepository, jobs repository.AnalysisJobRepository, step *StepDriver, log *zerolog.Logger) *submissionUC {
	return &submissionUC{ideas: ideas, jobs: jobs, step: step, log: log}
}

// Submit validates the idea text, creates the idea and its pending job,
// and advances the first stage inline. Validation happens before any
// record exists, so a rejected idea leaves no trace.
func (uc *submissionUC) Submit(ctx context.Context, content string, metadata map[string]string) (*model.AnalysisJob, error) {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) < minIdeaLength {
		return nil, domain.ErrIdeaTooShort
	}

	idea := &model.Idea{
		ID:       uuid.NewString(),
		Content:  content,
		Metadata: metadata,
	}
	if err := uc.ideas.Save(ctx, nil, idea); err != nil {
		return nil, fmt.Errorf("save idea: %w", err)
	}

	// ULIDs sort by creation time, which keeps oldest-pending-first
	// claims a plain ORDER BY id.
	job := &model.AnalysisJob{
		ID:        ulid.Make().String(),
		IdeaID:    idea.ID,
		Status:    model.JobStatusPending,
		Responses: make(map[model.StageID]model.StagePayload, len(model.AnalysisStages)),
	}
	if err := uc.jobs.Create(ctx, nil, job); err != nil {
		// Orphaned idea row is harmless; the job is what the client
		// polls on, so this failure must surface.
		return nil, fmt.Errorf("create analysis job: %w", err)
	}
	uc.log.Info().Str("job_id", job.ID).Str("idea_id", idea.ID).Msg("idea submitted")

	if out, err := uc.step.Advance(ctx, job.ID); err != nil {
		uc.log.Warn().Err(err).Str("job_id", job.ID).Msg("first analysis step failed; job remains pending")
	} else {
		job = out.Job
	}
	return job, nil
}
