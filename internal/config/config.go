// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port             int           `yaml:"port"`
	SubmitRateLimit  int           `yaml:"submit_rate_limit"` // submissions per window per client
	SubmitRateWindow time.Duration `yaml:"submit_rate_window"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	CompatURL       string `yaml:"compat_url"` // OpenAI-compatible gateway, e.g. a self-hosted vLLM
	CompatKey       string `yaml:"compat_key"`
	DefaultModel    string `yaml:"default_model"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent AI calls
}

type PipelineConfig struct {
	GlobalBudget time.Duration `yaml:"global_budget"` // wall-clock budget for a full run
	StageTimeout time.Duration `yaml:"stage_timeout"` // default per-stage inference timeout
	Workers      int           `yaml:"workers"`       // background processor pool size
	PollInterval time.Duration `yaml:"poll_interval"` // pending-job claim cadence
	LeaseTTL     time.Duration `yaml:"lease_ttl"`     // stage lease expiry
	StaleReclaim time.Duration `yaml:"stale_reclaim"` // reclaim processing jobs idle longer than this
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Pipeline PipelineConfig `yaml:"pipeline"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.SubmitRateLimit <= 0 {
		cfg.Server.SubmitRateLimit = 10
	}
	if cfg.Server.SubmitRateWindow <= 0 {
		cfg.Server.SubmitRateWindow = time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.Pipeline.GlobalBudget <= 0 {
		cfg.Pipeline.GlobalBudget = 60 * time.Second
	}
	if cfg.Pipeline.StageTimeout <= 0 {
		cfg.Pipeline.StageTimeout = 30 * time.Second
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.PollInterval <= 0 {
		cfg.Pipeline.PollInterval = 500 * time.Millisecond
	}
	if cfg.Pipeline.LeaseTTL <= 0 {
		// must outlive the slowest stage call or a concurrent driver could
		// start the same stage mid-flight
		cfg.Pipeline.LeaseTTL = cfg.Pipeline.StageTimeout + 15*time.Second
	}
	if cfg.Pipeline.StaleReclaim <= 0 {
		// must exceed the longest quiet gap of a healthy run, which is
		// one stage call with retries
		cfg.Pipeline.StaleReclaim = 3 * time.Minute
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
