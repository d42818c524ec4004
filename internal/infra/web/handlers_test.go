package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"venture-idea-analyzer/internal/domain"
	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/repository"
	"venture-idea-analyzer/internal/usecase"
)

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
	}
	return v
}

func TestSubmitCreatesJob(t *testing.T) {
	job := pendingJob()
	sub := &fakeSubmission{
		SubmitFunc: func(_ context.Context, content string, metadata map[string]string) (*model.AnalysisJob, error) {
			if content != "an app that matches dog walkers with owners" {
				t.Errorf("content = %q", content)
			}
			if metadata["source"] != "web" {
				t.Errorf("metadata = %v", metadata)
			}
			return job, nil
		},
	}
	s := newTestServer(sub, &fakeStep{}, &fakeJobs{}, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/ideas",
		`{"content":"an app that matches dog walkers with owners","metadata":{"source":"web"}}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/ideas/progress?id="+job.ID {
		t.Errorf("location = %q", loc)
	}
	resp := decodeJSON[submitResponse](t, rec)
	if resp.JobID != job.ID || resp.IdeaID != job.IdeaID {
		t.Errorf("response = %+v", resp)
	}
	if resp.State != string(usecase.StateLoading) {
		t.Errorf("state = %q, want loading", resp.State)
	}
}

func TestSubmitRejectsShortIdea(t *testing.T) {
	sub := &fakeSubmission{
		SubmitFunc: func(context.Context, string, map[string]string) (*model.AnalysisJob, error) {
			return nil, domain.ErrIdeaTooShort
		},
	}
	s := newTestServer(sub, &fakeStep{}, &fakeJobs{}, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/ideas", `{"content":"too short"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if rec.Header().Get("Location") != "" {
		t.Error("rejected submission must not carry a Location header")
	}
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	sub := &fakeSubmission{
		SubmitFunc: func(context.Context, string, map[string]string) (*model.AnalysisJob, error) {
			t.Fatal("submit must not be reached on malformed input")
			return nil, nil
		},
	}
	s := newTestServer(sub, &fakeStep{}, &fakeJobs{}, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/ideas", `{"content": `)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	sub := &fakeSubmission{
		SubmitFunc: func(context.Context, string, map[string]string) (*model.AnalysisJob, error) {
			t.Fatal("submit must not run once the limiter says no")
			return nil, nil
		},
	}
	limiter := &fakeLimiter{allowed: false}
	s := newTestServer(sub, &fakeStep{}, &fakeJobs{}, limiter)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/ideas", `{"content":"a perfectly valid startup idea"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if !strings.HasPrefix(limiter.lastKey, "rate_limit:submit:") {
		t.Errorf("limiter key = %q", limiter.lastKey)
	}
}

func TestSubmitFailsOpenOnLimiterError(t *testing.T) {
	job := pendingJob()
	sub := &fakeSubmission{
		SubmitFunc: func(context.Context, string, map[string]string) (*model.AnalysisJob, error) {
			return job, nil
		},
	}
	limiter := &fakeLimiter{err: context.DeadlineExceeded}
	s := newTestServer(sub, &fakeStep{}, &fakeJobs{}, limiter)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/ideas", `{"content":"a perfectly valid startup idea"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 when the limiter is down", rec.Code)
	}
}

func TestProgressRequiresID(t *testing.T) {
	s := newTestServer(&fakeSubmission{}, &fakeStep{}, &fakeJobs{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/ideas/progress", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProgressUnknownKeyIs404(t *testing.T) {
	jobs := &fakeJobs{
		FetchFunc: func(context.Context, repository.Tx, string) (*model.JobSnapshot, error) {
			return nil, domain.ErrNotFound
		},
	}
	s := newTestServer(&fakeSubmission{}, &fakeStep{}, jobs, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/ideas/progress?id=nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestProgressWithoutTriggerIsReadOnly(t *testing.T) {
	job := pendingJob()
	job.Status = model.JobStatusProcessing
	job.Responses[model.StageProblem] = model.StagePayload{Score: 7, Rationale: "real pain"}
	job.Responses[model.StageMarket] = model.ProcessingPayload()

	step := &fakeStep{
		AdvanceFunc: func(context.Context, string) (*usecase.StepOutcome, error) {
			t.Fatal("advance must not run without trigger_next")
			return nil, nil
		},
	}
	jobs := &fakeJobs{
		FetchFunc: func(_ context.Context, _ repository.Tx, key string) (*model.JobSnapshot, error) {
			if key != job.ID {
				t.Errorf("key = %q", key)
			}
			return &model.JobSnapshot{Job: job, Idea: &model.Idea{ID: job.IdeaID}}, nil
		},
	}
	s := newTestServer(&fakeSubmission{}, step, jobs, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/ideas/progress?id="+job.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON[progressResponse](t, rec)
	if resp.State != string(usecase.StatePartial) {
		t.Errorf("state = %q, want partial", resp.State)
	}
	if len(resp.Stages) != len(model.AnalysisStages) {
		t.Fatalf("stages = %d entries", len(resp.Stages))
	}
	byStage := map[model.StageID]stageView{}
	for _, v := range resp.Stages {
		byStage[v.Stage] = v
	}
	if v := byStage[model.StageProblem]; v.Status != "done" || v.Score == nil || *v.Score != 7 {
		t.Errorf("problem view = %+v", v)
	}
	if v := byStage[model.StageMarket]; v.Status != "processing" || v.Score != nil {
		t.Errorf("market view = %+v", v)
	}
	if v := byStage[model.StageLegal]; v.Status != "pending" {
		t.Errorf("legal view = %+v", v)
	}
	if resp.Report != nil {
		t.Error("non-terminal job must not expose a report")
	}
	if resp.PollAfterMs <= 0 {
		t.Errorf("poll_after_ms = %d", resp.PollAfterMs)
	}
}

func TestProgressTriggerAdvances(t *testing.T) {
	job := pendingJob()
	step := &fakeStep{
		AdvanceFunc: func(_ context.Context, key string) (*usecase.StepOutcome, error) {
			job.Status = model.JobStatusProcessing
			job.Responses[model.StageProblem] = model.StagePayload{Score: 6, Rationale: "ok"}
			return &usecase.StepOutcome{
				Job:       job,
				Idea:      &model.Idea{ID: job.IdeaID},
				Ran:       model.StageProblem,
				NextStage: model.StageMarket,
			}, nil
		},
	}
	s := newTestServer(&fakeSubmission{}, step, &fakeJobs{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/ideas/progress?id="+job.ID+"&trigger_next=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if step.calls != 1 {
		t.Fatalf("advance calls = %d", step.calls)
	}
	resp := decodeJSON[progressResponse](t, rec)
	if resp.State != string(usecase.StatePartial) {
		t.Errorf("state = %q", resp.State)
	}
}

func TestProgressFallbackStageView(t *testing.T) {
	job := pendingJob()
	job.Status = model.JobStatusProcessing
	job.Responses[model.StageProblem] = model.StagePayload{Score: model.FallbackScore, Fallback: true}
	jobs := &fakeJobs{
		FetchFunc: func(context.Context, repository.Tx, string) (*model.JobSnapshot, error) {
			return &model.JobSnapshot{Job: job, Idea: &model.Idea{ID: job.IdeaID}}, nil
		},
	}
	s := newTestServer(&fakeSubmission{}, &fakeStep{}, jobs, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/ideas/progress?id="+job.ID, "")
	resp := decodeJSON[progressResponse](t, rec)
	for _, v := range resp.Stages {
		if v.Stage != model.StageProblem {
			continue
		}
		if v.Status != "fallback" || !v.Fallback || v.Score == nil || *v.Score != model.FallbackScore {
			t.Errorf("fallback view = %+v", v)
		}
	}
}

func TestProgressCompletedJobCarriesReport(t *testing.T) {
	job := completedJob()
	jobs := &fakeJobs{
		FetchFunc: func(context.Context, repository.Tx, string) (*model.JobSnapshot, error) {
			return &model.JobSnapshot{Job: job, Idea: &model.Idea{ID: job.IdeaID}}, nil
		},
	}
	s := newTestServer(&fakeSubmission{}, &fakeStep{}, jobs, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/ideas/progress?id="+job.ID, "")
	resp := decodeJSON[progressResponse](t, rec)
	if resp.State != string(usecase.StateComplete) {
		t.Errorf("state = %q, want complete", resp.State)
	}
	if resp.Progress != 100 {
		t.Errorf("progress = %d", resp.Progress)
	}
	if resp.Report == nil || resp.Report.OverallScore != 80 {
		t.Errorf("report = %+v", resp.Report)
	}
}

func TestProgressAllStagesFailed(t *testing.T) {
	job := pendingJob()
	job.Status = model.JobStatusFailed
	step := &fakeStep{
		AdvanceFunc: func(context.Context, string) (*usecase.StepOutcome, error) {
			return &usecase.StepOutcome{Job: job, Idea: &model.Idea{ID: job.IdeaID}}, domain.ErrAllStagesFailed
		},
	}
	s := newTestServer(&fakeSubmission{}, step, &fakeJobs{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/ideas/progress?id="+job.ID+"&trigger_next=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with failed state", rec.Code)
	}
	resp := decodeJSON[progressResponse](t, rec)
	if resp.State != string(usecase.StateFailed) {
		t.Errorf("state = %q, want failed", resp.State)
	}
	if resp.Progress != 100 {
		t.Errorf("progress = %d", resp.Progress)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeSubmission{}, &fakeStep{}, &fakeJobs{}, nil)
	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
