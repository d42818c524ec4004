package main

import (
	"context"
	"sync"
	"time"

	"venture-idea-analyzer/internal/domain"
	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/repository"
)

// In-memory repositories so the demo runs the full pipeline without
// Postgres or Redis.

type memIdeaRepo struct {
	mu    sync.Mutex
	ideas map[string]*model.Idea
}

func newMemIdeaRepo() *memIdeaRepo { return &memIdeaRepo{ideas: map[string]*model.Idea{}} }

func (r *memIdeaRepo) Save(_ context.Context, _ repository.Tx, idea *model.Idea) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *idea
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.ideas[idea.ID] = &cp
	return nil
}

func (r *memIdeaRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Idea, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idea, ok := r.ideas[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *idea
	return &cp, nil
}

type memJobRepo struct {
	mu      sync.Mutex
	jobs    map[string]*model.AnalysisJob
	results []*model.StageResult
	ideas   *memIdeaRepo
	seq     int
}

func newMemJobRepo(ideas *memIdeaRepo) *memJobRepo {
	return &memJobRepo{jobs: map[string]*model.AnalysisJob{}, ideas: ideas}
}

func copyJob(j *model.AnalysisJob) *model.AnalysisJob {
	cp := *j
	cp.Responses = make(map[model.StageID]model.StagePayload, len(j.Responses))
	for k, v := range j.Responses {
		cp.Responses[k] = v
	}
	return &cp
}

func (r *memJobRepo) Create(_ context.Context, _ repository.Tx, job *model.AnalysisJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.jobs[job.ID] = copyJob(job)
	return nil
}

func (r *memJobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyJob(job), nil
}

func (r *memJobRepo) FindByIdeaID(_ context.Context, _ repository.Tx, ideaID string) (*model.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.IdeaID == ideaID {
			return copyJob(job), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memJobRepo) MergeStagePayload(_ context.Context, _ repository.Tx, jobID string, stage model.StageID, payload model.StagePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Responses == nil {
		job.Responses = map[model.StageID]model.StagePayload{}
	}
	job.Responses[stage] = payload
	job.UpdatedAt = time.Now()
	return nil
}

func (r *memJobRepo) AppendStageResult(_ context.Context, _ repository.Tx, res *model.StageResult) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	cp := *res
	cp.ID = res.JobID + "-" + string(res.StageID)
	cp.CreatedAt = time.Now()
	r.results = append(r.results, &cp)
	return cp.ID, nil
}

func (r *memJobRepo) SetStatus(_ context.Context, _ repository.Tx, jobID string, status model.AnalysisJobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = status
	job.UpdatedAt = time.Now()
	return nil
}

func (r *memJobRepo) SetFinalReport(_ context.Context, _ repository.Tx, jobID string, report *model.FinalReport, status model.AnalysisJobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.FinalReport = report
	job.Status = status
	job.OverallScore = &report.OverallScore
	job.UpdatedAt = time.Now()
	return nil
}

func (r *memJobRepo) FetchWithStages(ctx context.Context, tx repository.Tx, key string) (*model.JobSnapshot, error) {
	job, err := r.FindByID(ctx, tx, key)
	if err != nil {
		job, err = r.FindByIdeaID(ctx, tx, key)
		if err != nil {
			return nil, err
		}
	}
	idea, err := r.ideas.FindByID(ctx, tx, job.IdeaID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	results := make([]*model.StageResult, 0, len(r.results))
	for _, res := range r.results {
		if res.JobID == job.ID {
			results = append(results, res)
		}
	}
	r.mu.Unlock()
	return &model.JobSnapshot{Job: job, Idea: idea, Results: results}, nil
}

func (r *memJobRepo) ClaimNextPending(context.Context) (*model.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *model.AnalysisJob
	for _, job := range r.jobs {
		if job.Status != model.JobStatusPending {
			continue
		}
		if oldest == nil || job.ID < oldest.ID {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	oldest.Status = model.JobStatusProcessing
	return copyJob(oldest), nil
}

// memLocker is a process-local stage lease.
type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]string{}} }

func (l *memLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrStageAlreadyRunning
	}
	token := key + "-token"
	l.held[key] = token
	return token, nil
}

func (l *memLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}
