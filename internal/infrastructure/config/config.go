package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the trackgate service
type Config struct {
	// HTTP Server - using TRACKGATE_ prefix to avoid collisions
	HTTPPort  string `env:"TRACKGATE_HTTP_PORT" envDefault:"8093"`
	LogLevel  string `env:"TRACKGATE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"TRACKGATE_LOG_FORMAT" envDefault:"json"` // json or console

	// Service-to-service authentication. Empty disables the check.
	APIKey string `env:"TRACKGATE_API_KEY"`

	RequestTimeout  time.Duration `env:"TRACKGATE_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"TRACKGATE_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Shared backends. An empty RedisURL selects the in-process rate
	// limiter and idempotency store; an empty DatabaseURL disables the
	// analytical query actions and keeps audit entries in memory.
	RedisURL    string `env:"TRACKGATE_REDIS_URL"`
	DatabaseURL string `env:"TRACKGATE_DATABASE_URL"`

	// Idempotency
	IdempotencyTTL        time.Duration `env:"TRACKGATE_IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencyMaxEntries int           `env:"TRACKGATE_IDEMPOTENCY_MAX_ENTRIES" envDefault:"100000"`

	// Rate limiting defaults; per-class and per-tenant overrides load
	// from the YAML file when the path is set.
	RateLimitDefault       int           `env:"TRACKGATE_RATE_LIMIT" envDefault:"100"`
	RateLimitWindow        time.Duration `env:"TRACKGATE_RATE_LIMIT_WINDOW" envDefault:"60s"`
	RateLimitOverridesPath string        `env:"TRACKGATE_RATE_LIMIT_OVERRIDES"`

	// Query template catalogue. Built-in templates are always loaded;
	// the file adds or replaces templates by name.
	TemplateCataloguePath string `env:"TRACKGATE_TEMPLATE_CATALOGUE"`

	// Metrics collector rolling window per action
	MetricsWindowSize int `env:"TRACKGATE_METRICS_WINDOW" envDefault:"1024"`

	// Jira adapter
	JiraBaseURL  string        `env:"JIRA_BASE_URL"`
	JiraEmail    string        `env:"JIRA_EMAIL"`
	JiraAPIToken string        `env:"JIRA_API_TOKEN"`
	JiraTimeout  time.Duration `env:"JIRA_HTTP_TIMEOUT" envDefault:"15s"`

	// GitHub adapter
	GitHubToken   string        `env:"GITHUB_TOKEN"`
	GitHubBaseURL string        `env:"GITHUB_BASE_URL"` // set for GitHub Enterprise
	GitHubTimeout time.Duration `env:"GITHUB_HTTP_TIMEOUT" envDefault:"15s"`

	// Asana adapter
	AsanaBaseURL string        `env:"ASANA_BASE_URL" envDefault:"https://app.asana.com/api/1.0"`
	AsanaToken   string        `env:"ASANA_TOKEN"`
	AsanaTimeout time.Duration `env:"ASANA_HTTP_TIMEOUT" envDefault:"15s"`

	// Linear adapter
	LinearBaseURL string        `env:"LINEAR_BASE_URL" envDefault:"https://api.linear.app/graphql"`
	LinearToken   string        `env:"LINEAR_API_KEY"`
	LinearTimeout time.Duration `env:"LINEAR_HTTP_TIMEOUT" envDefault:"15s"`

	// Retry Configuration shared by the REST adapters
	AdapterRetryMaxAttempts   int     `env:"ADAPTER_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	AdapterRetryInitialDelay  int     `env:"ADAPTER_RETRY_INITIAL_DELAY" envDefault:"250"`
	AdapterRetryMaxDelay      int     `env:"ADAPTER_RETRY_MAX_DELAY" envDefault:"5000"`
	AdapterRetryBackoffFactor float64 `env:"ADAPTER_RETRY_BACKOFF_FACTOR" envDefault:"1.5"`

	// Circuit breaker per platform adapter
	BreakerEnabled          bool          `env:"ADAPTER_BREAKER_ENABLED" envDefault:"true"`
	BreakerFailureThreshold int           `env:"ADAPTER_BREAKER_FAILURE_THRESHOLD" envDefault:"10"`
	BreakerSuccessThreshold int           `env:"ADAPTER_BREAKER_SUCCESS_THRESHOLD" envDefault:"3"`
	BreakerTimeout          time.Duration `env:"ADAPTER_BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerMaxHalfOpenCalls int           `env:"ADAPTER_BREAKER_MAX_HALF_OPEN" envDefault:"5"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(os.Getenv("TRACKGATE_LOG_LEVEL")) == "" {
		if global := strings.TrimSpace(os.Getenv("LOG_LEVEL")); global != "" {
			cfg.LogLevel = global
		}
	}
	if strings.TrimSpace(os.Getenv("TRACKGATE_LOG_FORMAT")) == "" {
		if global := strings.TrimSpace(os.Getenv("LOG_FORMAT")); global != "" {
			cfg.LogFormat = global
		}
	}

	if cfg.RateLimitDefault <= 0 {
		return nil, fmt.Errorf("TRACKGATE_RATE_LIMIT must be positive, got %d", cfg.RateLimitDefault)
	}
	if cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("TRACKGATE_RATE_LIMIT_WINDOW must be positive")
	}
	if cfg.IdempotencyTTL <= 0 {
		return nil, fmt.Errorf("TRACKGATE_IDEMPOTENCY_TTL must be positive")
	}
	if cfg.JiraBaseURL != "" && cfg.JiraAPIToken == "" {
		return nil, fmt.Errorf("JIRA_API_TOKEN is required when JIRA_BASE_URL is set")
	}
	return cfg, nil
}
