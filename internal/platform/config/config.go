// Package config loads immutable process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the startup-time configuration snapshot. It is read once in main
// and never mutated; per-tenant settings come from the tenant store instead.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// LLM provider. Model identifiers are opaque strings; the provider is any
	// OpenAI-compatible chat-completions endpoint.
	LLMBaseURL       string        `env:"LLM_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	LLMModel         string        `env:"LLM_MODEL" envDefault:"openai/gpt-4o-mini"`
	LLMVerifierModel string        `env:"LLM_VERIFIER_MODEL" envDefault:"anthropic/claude-3.5-sonnet"`
	LLMSeed          int           `env:"LLM_SEED" envDefault:"42"`
	LLMRateLimitRPS  int           `env:"LLM_RATE_LIMIT_RPS" envDefault:"5"`
	PerCallTimeout   time.Duration `env:"PER_CALL_TIMEOUT" envDefault:"60s"`

	// Pipeline.
	RunTimeout           time.Duration `env:"RUN_TIMEOUT" envDefault:"10m"`
	WorkerConcurrency    int           `env:"WORKER_CONCURRENCY" envDefault:"20"`
	BatchSize            int           `env:"BATCH_SIZE" envDefault:"8"`
	FetchWindow          time.Duration `env:"FETCH_WINDOW" envDefault:"1h"`
	FetchPageSize        int           `env:"FETCH_PAGE_SIZE" envDefault:"1000"`
	FetchSafetyLimit     int           `env:"FETCH_SAFETY_LIMIT" envDefault:"100000"`
	DedupWindow          time.Duration `env:"DEDUP_WINDOW" envDefault:"168h"`
	AcceptMinConfidence  int           `env:"ACCEPT_MIN_CONFIDENCE" envDefault:"70"`
	SmartMinConfidence   int           `env:"SMART_MIN_CONFIDENCE" envDefault:"90"`
	RunErrorsCap         int           `env:"RUN_ERRORS_CAP" envDefault:"20"`
	PerMessageCostUSD    string        `env:"PER_MESSAGE_COST_ESTIMATE_USD" envDefault:"0.01"`
	DefaultMonthlyCapUSD string        `env:"DEFAULT_MONTHLY_CAP_USD" envDefault:"10"`

	// Scheduler (cron expressions, UTC).
	PipelineCron         string        `env:"PIPELINE_CRON" envDefault:"0 * * * *"`
	RetryCron            string        `env:"RETRY_CRON" envDefault:"*/30 * * * *"`
	RetryGrace           time.Duration `env:"RETRY_GRACE" envDefault:"15m"`
	MaxConcurrentTenants int           `env:"MAX_CONCURRENT_TENANTS" envDefault:"4"`
	GuardAcquireTimeout  time.Duration `env:"GUARD_ACQUIRE_TIMEOUT" envDefault:"5s"`

	// Database pool.
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// Load parses configuration from the environment, reading an optional .env
// file first.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	return cfg, nil
}
