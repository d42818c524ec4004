package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"venture-idea-analyzer/internal/domain"
	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/adapter"
	"venture-idea-analyzer/internal/domain/ports/repository"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// --- in-memory repositories ---

type memIdeaRepo struct {
	mu    sync.Mutex
	ideas map[string]*model.Idea
}

func newMemIdeaRepo() *memIdeaRepo {
	return &memIdeaRepo{ideas: make(map[string]*model.Idea)}
}

func (r *memIdeaRepo) Save(_ context.Context, _ repository.Tx, idea *model.Idea) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *idea
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

	createErr error
	mergeErr  error
}

func newMemJobRepo(ideas *memIdeaRepo) *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.AnalysisJob), ideas: ideas}
}

func copyJob(job *model.AnalysisJob) *model.AnalysisJob {
	cp := *job
	cp.Responses = make(map[model.StageID]model.StagePayload, len(job.Responses))
	for k, v := range job.Responses {
		cp.Responses[k] = v
	}
	return &cp
}

func (r *memJobRepo) Create(_ context.Context, _ repository.Tx, job *model.AnalysisJob) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
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
	if r.mergeErr != nil {
		return r.mergeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Responses == nil {
		job.Responses = make(map[model.StageID]model.StagePayload)
	}
	job.Responses[stage] = payload
	job.UpdatedAt = time.Now()
	return nil
}

func (r *memJobRepo) AppendStageResult(_ context.Context, _ repository.Tx, res *model.StageResult) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *res
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
	job.OverallScore = &report.OverallScore
	job.Status = status
	job.UpdatedAt = time.Now()
	return nil
}

func (r *memJobRepo) FetchWithStages(ctx context.Context, tx repository.Tx, key string) (*model.JobSnapshot, error) {
	job, err := r.FindByID(ctx, tx, key)
	if err != nil {
		job, err = r.FindByIdeaID(ctx, tx, key)
		if err != nil {
			return nil, domain.ErrNotFound
		}
	}
	idea, err := r.ideas.FindByID(ctx, tx, job.IdeaID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var results []*model.StageResult
	for _, res := range r.results {
		if res.JobID == job.ID {
			cp := *res
			results = append(results, &cp)
		}
	}
	return &model.JobSnapshot{Job: job, Idea: idea, Results: results}, nil
}

func (r *memJobRepo) ClaimNextPending(_ context.Context) (*model.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.AnalysisJob
	for _, job := range r.jobs {
		if job.Status != model.JobStatusPending {
			continue
		}
		if best == nil || job.ID < best.ID {
			best = job
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	best.Status = model.JobStatusProcessing
	return copyJob(best), nil
}

// --- fake AI adapter ---

// fakeAI routes each chat call through chatFn with the stage derived
// from the system role, and records call order.
type fakeAI struct {
	mu     sync.Mutex
	chatFn func(stage model.StageID, messages []adapter.Message) (string, error)
	calls  []model.StageID
}

func (f *fakeAI) ListModels(context.Context) ([]string, error) { return []string{"test-model"}, nil }

func (f *fakeAI) GetModelInfo(name string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: name}, nil
}

func (f *fakeAI) CountTokens(_ context.Context, _ string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(m.Content) / 4
	}
	return n, nil
}

func (f *fakeAI) Chat(ctx context.Context, _ string, messages []adapter.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stage := stageFromSystem(messages[0].Content)
	f.mu.Lock()
	f.calls = append(f.calls, stage)
	f.mu.Unlock()
	return f.chatFn(stage, messages)
}

func (f *fakeAI) ChatWithUsage(ctx context.Context, modelName string, messages []adapter.Message) (string, adapter.Usage, error) {
	text, err := f.Chat(ctx, modelName, messages)
	return text, adapter.Usage{}, err
}

func (f *fakeAI) callCount(stage model.StageID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.calls {
		if s == stage {
			n++
		}
	}
	return n
}

// stageFromSystem recovers the stage from distinctive snippets of each
// system role.
func stageFromSystem(system string) model.StageID {
	switch {
	case strings.Contains(system, "investment memo"):
		return model.StageVCLead
	case strings.Contains(system, "pain_points"):
		return model.StageProblem
	case strings.Contains(system, "market sizing"):
		return model.StageMarket
	case strings.Contains(system, "competitors"):
		return model.StageCompetitive
	case strings.Contains(system, "value_proposition"):
		return model.StageUVP
	case strings.Contains(system, "revenue_streams"):
		return model.StageBusinessModel
	case strings.Contains(system, "experiments"):
		return model.StageValidation
	case strings.Contains(system, "regulatory"):
		return model.StageLegal
	case strings.Contains(system, "kpis"):
		return model.StageMetrics
	}
	return ""
}

// stageJSON builds a well-formed wire response for a stage.
func stageJSON(stage model.StageID, score float64) string {
	fields := map[model.StageID]string{
		model.StageProblem:       `"pain_points": ["manual work", "slow feedback"]`,
		model.StageMarket:        `"tam": "$10B", "sam": "$1B", "som": "$50M"`,
		model.StageCompetitive:   `"competitors": ["incumbent a", "incumbent b"]`,
		model.StageUVP:           `"value_proposition": "faster and cheaper"`,
		model.StageBusinessModel: `"revenue_streams": ["subscriptions"]`,
		model.StageValidation:    `"experiments": ["landing page test"]`,
		model.StageLegal:         `"risks": ["data privacy"]`,
		model.StageMetrics:       `"kpis": ["weekly active users"]`,
	}
	return fmt.Sprintf(`{"score": %.1f, "reasoning": "solid %s analysis", %s,
		"strengths": ["s1-%s", "s2-%s", "s3-%s"],
		"weaknesses": ["w1-%s"],
		"suggested_actions": ["a1-%s"]}`,
		score, stage, fields[stage], stage, stage, stage, stage, stage)
}

func synthesisJSON() string {
	return `{"strengths": ["clear pain point"], "weaknesses": ["crowded market"],
		"suggested_actions": ["run a pilot"],
		"idea_improvements": {"before": "original idea", "after": "sharper idea"}}`
}

func allSucceedAI(score float64) *fakeAI {
	f := &fakeAI{}
	f.chatFn = func(stage model.StageID, _ []adapter.Message) (string, error) {
		if stage == model.StageVCLead {
			return synthesisJSON(), nil
		}
		return stageJSON(stage, score), nil
	}
	return f
}

func failingStagesAI(score float64, failSynthesis bool, failing ...model.StageID) *fakeAI {
	bad := make(map[model.StageID]bool, len(failing))
	for _, s := range failing {
		bad[s] = true
	}
	f := &fakeAI{}
	f.chatFn = func(stage model.StageID, _ []adapter.Message) (string, error) {
		if stage == model.StageVCLead {
			if failSynthesis {
				return "", fmt.Errorf("synthesis unavailable")
			}
			return synthesisJSON(), nil
		}
		if bad[stage] {
			return "", fmt.Errorf("stage %s unavailable", stage)
		}
		return stageJSON(stage, score), nil
	}
	return f
}

// --- fake stage locker ---

type memLocker struct {
	mu      sync.Mutex
	held    map[string]string
	seen    []string // lease keys in acquisition order
	lockErr error    // injected backend failure
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (l *memLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lockErr != nil {
		return "", l.lockErr
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrStageAlreadyRunning
	}
	token := fmt.Sprintf("tok-%s", key)
	l.held[key] = token
	l.seen = append(l.seen, key)
	return token, nil
}

func (l *memLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return domain.ErrNotFound
	}
	delete(l.held, key)
	return nil
}

// --- helpers ---

func newTestExecutor(jobs repository.AnalysisJobRepository, ai adapter.AIServiceAdapter) *StageExecutor {
	exec := NewStageExecutor(jobs, ai, "test-model", testLogger())
	exec.sleep = func(time.Duration) {}
	return exec
}

func seedJob(t interface{ Fatalf(string, ...any) }, ideas *memIdeaRepo, jobs *memJobRepo, content string) (*model.Idea, *model.AnalysisJob) {
	idea := &model.Idea{ID: "idea-1", Content: content}
	if err := ideas.Save(context.Background(), nil, idea); err != nil {
		t.Fatalf("save idea: %v", err)
	}
	job := &model.AnalysisJob{
		ID:        "job-1",
		IdeaID:    idea.ID,
		Status:    model.JobStatusPending,
		Responses: make(map[model.StageID]model.StagePayload),
	}
	if err := jobs.Create(context.Background(), nil, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return idea, job
}
