// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"venture-idea-analyzer/internal/config"
	"venture-idea-analyzer/internal/domain/ports/adapter"
	aiAdapters "venture-idea-analyzer/internal/infra/adapters/ai"
	pg "venture-idea-analyzer/internal/infra/db/postgres"
	"venture-idea-analyzer/internal/infra/logging"
	"venture-idea-analyzer/internal/infra/metrics"
	red "venture-idea-analyzer/internal/infra/redis"
	"venture-idea-analyzer/internal/infra/web"
	"venture-idea-analyzer/internal/infra/worker"
	"venture-idea-analyzer/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop AI adapter, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	pg.StartPoolStatsReporter(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	stageLocker := red.NewLocker(redisClient)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	ideaRepo := pg.NewCachedIdeaRepo(pg.NewIdeaRepo(pool), redisClient, cfg.Redis.TTL)
	jobRepo := pg.NewAnalysisJobRepo(pool, tm, ideaRepo, cfg.Pipeline.StaleReclaim)

	// ---- AI adapter ----
	ai, err := buildAIAdapter(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai adapter")
	}

	// ---- Use cases ----
	exec := usecase.NewStageExecutor(jobRepo, ai, cfg.AI.DefaultModel, logger)
	synth := usecase.NewSynthesizer(ai, cfg.AI.DefaultModel, logger)
	step := usecase.NewStepDriver(jobRepo, exec, synth, stageLocker, cfg.Pipeline.LeaseTTL, logger)
	pipeline := usecase.NewPipelineUseCase(jobRepo, exec, synth, stageLocker, cfg.Pipeline.LeaseTTL, cfg.Pipeline.GlobalBudget, logger)
	submitUC := usecase.NewSubmissionUseCase(ideaRepo, jobRepo, step, logger)

	// ---- Background workers ----
	pipePool := worker.NewPool(cfg.Pipeline.Workers, logger)
	pipePool.Start(ctx)
	processor := worker.NewPipelineProcessor(jobRepo, pipeline, cfg.Pipeline.PollInterval, logger)
	go processor.Start(ctx, pipePool)

	// ---- HTTP server ----
	srv := web.NewServer(submitUC, step, jobRepo, rateLimiter, cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
	pipePool.Stop()
}

// buildAIAdapter assembles the provider stack: every configured vendor
// behind one model-routed adapter, metered and concurrency-limited. Dev
// mode swaps in the deterministic noop adapter so the whole pipeline
// runs without keys.
func buildAIAdapter(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	if cfg.Runtime.Dev {
		logger.Info().Msg("AI adapter: noop (dev)")
		return aiAdapters.NewNoopAIAdapter(), nil
	}

	byProvider := map[string]adapter.AIServiceAdapter{}
	defaultProvider := ""

	if cfg.AI.OpenAIKey != "" {
		a, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel)
		if err != nil {
			return nil, err
		}
		byProvider["openai"] = aiAdapters.NewMeteredAI(a, "openai")
		defaultProvider = "openai"
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("AI adapter: OpenAI enabled")
	}
	if cfg.AI.GeminiKey != "" {
		a, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel)
		if err != nil {
			return nil, err
		}
		byProvider["gemini"] = aiAdapters.NewMeteredAI(a, "gemini")
		if defaultProvider == "" {
			defaultProvider = "gemini"
		}
		logger.Info().Str("base", cfg.AI.GeminiURL).Msg("AI adapter: Gemini enabled")
	}
	if cfg.AI.CompatURL != "" {
		a, err := aiAdapters.NewCompatAdapter(cfg.AI.CompatKey, cfg.AI.DefaultModel, cfg.AI.CompatURL)
		if err != nil {
			return nil, err
		}
		byProvider["compat"] = aiAdapters.NewMeteredAI(a, "compat")
		if defaultProvider == "" {
			defaultProvider = "compat"
		}
		logger.Info().Str("base", cfg.AI.CompatURL).Msg("AI adapter: OpenAI-compatible gateway enabled")
	}
	if len(byProvider) == 0 {
		return nil, errNoProvider
	}

	multi := aiAdapters.NewMultiAIAdapter(defaultProvider, byProvider, nil)
	return aiAdapters.NewLimitedAI(multi, cfg.AI.ConcurrentLimit), nil
}

var errNoProvider = errors.New("no AI provider configured: set ai.openai_key, ai.gemini_key or ai.compat_url")
