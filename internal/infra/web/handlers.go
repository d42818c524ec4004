// File: internal/infra/web/handlers.go
package web

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"venture-idea-analyzer/internal/domain"
	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/infra/logging"
	red "venture-idea-analyzer/internal/infra/redis"
	"venture-idea-analyzer/internal/usecase"
)

type submitRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type submitResponse struct {
	JobID       string `json:"job_id"`
	IdeaID      string `json:"idea_id"`
	Status      string `json:"status"`
	State       string `json:"state"`
	Progress    int    `json:"progress"`
	ProgressURL string `json:"progress_url"`
}

type stageView struct {
	Stage    model.StageID `json:"stage"`
	Status   string        `json:"status"` // pending|processing|done|fallback
	Score    *float64      `json:"score,omitempty"`
	Fallback bool          `json:"fallback,omitempty"`
}

type progressResponse struct {
	JobID          string             `json:"job_id"`
	IdeaID         string             `json:"idea_id"`
	Status         string             `json:"status"`
	State          string             `json:"state"`
	Progress       int                `json:"progress"`
	PollAfterMs    int64              `json:"poll_after_ms,omitempty"`
	OfferPartial   bool               `json:"offer_partial,omitempty"`
	GiveUp         bool               `json:"give_up,omitempty"`
	AlreadyRunning bool               `json:"already_running,omitempty"`
	NextStage      model.StageID      `json:"next_stage,omitempty"`
	Stages         []stageView        `json:"stages"`
	Report         *model.FinalReport `json:"report,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// clientAddr extracts the caller's address for rate limiting. The first
// X-Forwarded-For hop wins when a proxy sits in front.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logging.With(ctx, s.log)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	addr := clientAddr(r)
	allowed, err := s.limiter.Allow(ctx, red.SubmitKey(addr), s.cfg.SubmitRateLimit, s.cfg.SubmitRateWindow)
	if err != nil {
		// A limiter outage must not take submissions down with it.
		l.Warn().Err(err).Msg("rate limiter unavailable")
	} else if !allowed {
		writeError(w, http.StatusTooManyRequests, domain.ErrRateLimited.Error())
		return
	}

	job, err := s.submitUC.Submit(ctx, req.Content, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIdeaTooShort):
			writeError(w, http.StatusBadRequest, domain.ErrIdeaTooShort.Error())
		default:
			l.Error().Err(err).Msg("submission failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	progressURL := "/api/v1/ideas/progress?id=" + job.ID
	w.Header().Set("Location", progressURL)
	writeJSON(w, http.StatusCreated, submitResponse{
		JobID:       job.ID,
		IdeaID:      job.IdeaID,
		Status:      string(job.Status),
		State:       string(usecase.Verdict(job)),
		Progress:    usecase.Progress(job),
		ProgressURL: progressURL,
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logging.With(ctx, s.log)

	key := r.URL.Query().Get("id")
	if key == "" {
		writeError(w, http.StatusBadRequest, "id query parameter is required")
		return
	}
	trigger := r.URL.Query().Get("trigger_next")

	var (
		job       *model.AnalysisJob
		report    *model.FinalReport
		already   bool
		nextStage model.StageID
	)
	if trigger == "1" || trigger == "true" {
		out, err := s.step.Advance(ctx, key)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "no job or idea matches the given id")
			return
		case errors.Is(err, domain.ErrAllStagesFailed) && out != nil:
			// The job just transitioned to failed; report that state
			// instead of a server error.
			job = out.Job
		case err != nil:
			l.Error().Err(err).Str("key", key).Msg("step advance failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		default:
			job = out.Job
			already = out.AlreadyRunning
			nextStage = out.NextStage
		}
	} else {
		snap, err := s.jobs.FetchWithStages(ctx, nil, key)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "no job or idea matches the given id")
			return
		case err != nil:
			l.Error().Err(err).Str("key", key).Msg("progress fetch failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		job = snap.Job
		nextStage = job.NextStage()
	}

	a := s.trackerFor(job.ID).Observe(job, time.Now())
	if job.Status.Terminal() {
		s.dropTracker(job.ID)
		report = job.FinalReport
	}

	writeJSON(w, http.StatusOK, progressResponse{
		JobID:          job.ID,
		IdeaID:         job.IdeaID,
		Status:         string(job.Status),
		State:          string(a.State),
		Progress:       a.Progress,
		PollAfterMs:    a.PollAfter.Milliseconds(),
		OfferPartial:   a.OfferPartial,
		GiveUp:         a.GiveUp,
		AlreadyRunning: already,
		NextStage:      nextStage,
		Stages:         stageViews(job),
		Report:         report,
	})
}

func stageViews(job *model.AnalysisJob) []stageView {
	views := make([]stageView, 0, len(model.AnalysisStages))
	for _, stage := range model.AnalysisStages {
		v := stageView{Stage: stage, Status: "pending"}
		if p, ok := job.Responses[stage]; ok {
			switch {
			case p.Processing():
				v.Status = "processing"
			case p.Fallback:
				v.Status = "fallback"
				v.Fallback = true
				score := p.Score
				v.Score = &score
			default:
				v.Status = "done"
				score := p.Score
				v.Score = &score
			}
		}
		views = append(views, v)
	}
	return views
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
