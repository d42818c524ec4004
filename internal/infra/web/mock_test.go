package web

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"venture-idea-analyzer/internal/config"
	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/repository"
	"venture-idea-analyzer/internal/usecase"
)

// --- Mocks for handler tests ---

type fakeSubmission struct {
	SubmitFunc func(ctx context.Context, content string, metadata map[string]string) (*model.AnalysisJob, error)

	calls int
}

func (f *fakeSubmission) Submit(ctx context.Context, content string, metadata map[string]string) (*model.AnalysisJob, error) {
	f.calls++
	return f.SubmitFunc(ctx, content, metadata)
}

type fakeStep struct {
	AdvanceFunc func(ctx context.Context, key string) (*usecase.StepOutcome, error)

	calls int
}

func (f *fakeStep) Advance(ctx context.Context, key string) (*usecase.StepOutcome, error) {
	f.calls++
	return f.AdvanceFunc(ctx, key)
}

type fakeJobs struct {
	FetchFunc func(ctx context.Context, tx repository.Tx, key string) (*model.JobSnapshot, error)
}

func (f *fakeJobs) FetchWithStages(ctx context.Context, tx repository.Tx, key string) (*model.JobSnapshot, error) {
	return f.FetchFunc(ctx, tx, key)
}

type fakeLimiter struct {
	allowed bool
	err     error
	lastKey string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.lastKey = key
	return f.allowed, f.err
}

func newTestServer(sub *fakeSubmission, step *fakeStep, jobs *fakeJobs, limiter *fakeLimiter) *Server {
	log := zerolog.Nop()
	cfg := config.ServerConfig{
		Port:             0,
		SubmitRateLimit:  10,
		SubmitRateWindow: time.Minute,
	}
	if limiter == nil {
		limiter = &fakeLimiter{allowed: true}
	}
	return NewServer(sub, step, jobs, limiter, cfg, &log)
}

func pendingJob() *model.AnalysisJob {
	return &model.AnalysisJob{
		ID:        "01JOBAAAAAAAAAAAAAAAAAAAAA",
		IdeaID:    "idea-1",
		Status:    model.JobStatusPending,
		Responses: map[model.StageID]model.StagePayload{},
	}
}

func completedJob() *model.AnalysisJob {
	responses := make(map[model.StageID]model.StagePayload, len(model.AnalysisStages))
	scores := make(map[model.StageID]float64, len(model.AnalysisStages))
	for _, s := range model.AnalysisStages {
		responses[s] = model.StagePayload{Score: 8, Rationale: "ok"}
		scores[s] = 8
	}
	overall := 80.0
	return &model.AnalysisJob{
		ID:        "01JOBBBBBBBBBBBBBBBBBBBBBB",
		IdeaID:    "idea-2",
		Status:    model.JobStatusCompleted,
		Responses: responses,
		FinalReport: &model.FinalReport{
			OverallScore:     overall,
			BusinessCategory: "General",
			CategoryScores:   scores,
			Strengths:        []string{"clear problem"},
			Weaknesses:       []string{"crowded market"},
		},
		OverallScore: &overall,
	}
}
