// File: internal/infra/web/server.go
package web

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"venture-idea-analyzer/internal/config"
	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/repository"
	"venture-idea-analyzer/internal/usecase"
)

// StepAdvancer moves a job forward by at most one stage per call.
type StepAdvancer interface {
	Advance(ctx context.Context, key string) (*usecase.StepOutcome, error)
}

var _ StepAdvancer = (*usecase.StepDriver)(nil)

// JobReader is the read side of the progress endpoint.
type JobReader interface {
	FetchWithStages(ctx context.Context, tx repository.Tx, key string) (*model.JobSnapshot, error)
}

// Limiter gates idea submissions per client.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Server struct {
	submitUC usecase.SubmissionUseCase
	step     StepAdvancer
	jobs     JobReader
	limiter  Limiter
	cfg      config.ServerConfig
	log      *zerolog.Logger

	httpSrv *http.Server

	// Poll trackers keyed by job id so repeated progress requests share
	// backoff and stall history.
	mu       sync.Mutex
	trackers map[string]*usecase.Tracker
}

func NewServer(
	submitUC usecase.SubmissionUseCase,
	step StepAdvancer,
	jobs JobReader,
	limiter Limiter,
	cfg config.ServerConfig,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		submitUC: submitUC,
		step:     step,
		jobs:     jobs,
		limiter:  limiter,
		cfg:      cfg,
		log:      logger,
		trackers: make(map[string]*usecase.Tracker),
	}
}

// Router builds the HTTP surface. Kept separate from Start so tests can
// drive it with httptest.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.traceID)
	r.Use(s.recoverer)
	r.Use(s.requestLog)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ideas", s.handleSubmit)
		r.Get("/ideas/progress", s.handleProgress)
	})
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) trackerFor(jobID string) *usecase.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[jobID]
	if !ok {
		t = usecase.NewTracker(time.Now())
		s.trackers[jobID] = t
	}
	return t
}

func (s *Server) dropTracker(jobID string) {
	s.mu.Lock()
	delete(s.trackers, jobID)
	s.mu.Unlock()
}
