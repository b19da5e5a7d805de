package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"trackgate/internal/domain/audit"
	"trackgate/internal/domain/collector"
	"trackgate/internal/domain/connector"
	"trackgate/internal/domain/idempotency"
	"trackgate/internal/domain/invoke"
	"trackgate/internal/domain/query"
	"trackgate/internal/domain/ratelimit"
	"trackgate/internal/infrastructure/adapters/adapterretry"
	"trackgate/internal/infrastructure/adapters/asana"
	"trackgate/internal/infrastructure/adapters/breaker"
	"trackgate/internal/infrastructure/adapters/githubadapter"
	"trackgate/internal/infrastructure/adapters/jira"
	"trackgate/internal/infrastructure/adapters/linear"
	"trackgate/internal/infrastructure/config"
	"trackgate/internal/infrastructure/database"
	"trackgate/internal/infrastructure/redisclient"
	"trackgate/internal/interfaces/httpserver"
	"trackgate/internal/interfaces/httpserver/routes"
)

type Application struct {
	httpServer *httpserver.HTTPServer
}

func newApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	retryCfg := adapterretry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.AdapterRetryMaxAttempts
	retryCfg.InitialDelay = time.Duration(cfg.AdapterRetryInitialDelay) * time.Millisecond
	retryCfg.MaxDelay = time.Duration(cfg.AdapterRetryMaxDelay) * time.Millisecond
	retryCfg.BackoffFactor = cfg.AdapterRetryBackoffFactor

	var adapters []connector.Adapter
	if cfg.JiraBaseURL != "" {
		adapters = append(adapters, jira.New(jira.Config{
			BaseURL:  cfg.JiraBaseURL,
			Email:    cfg.JiraEmail,
			APIToken: cfg.JiraAPIToken,
			Timeout:  cfg.JiraTimeout,
			Retry:    retryCfg,
		}))
		log.Info().Msg("Jira adapter registered")
	}
	if cfg.GitHubToken != "" {
		githubAdapter, err := githubadapter.New(githubadapter.Config{
			Token:   cfg.GitHubToken,
			BaseURL: cfg.GitHubBaseURL,
			Timeout: cfg.GitHubTimeout,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, githubAdapter)
		log.Info().Msg("GitHub adapter registered")
	}
	if cfg.AsanaToken != "" {
		adapters = append(adapters, asana.New(asana.Config{
			BaseURL: cfg.AsanaBaseURL,
			Token:   cfg.AsanaToken,
			Timeout: cfg.AsanaTimeout,
			Retry:   retryCfg,
		}))
		log.Info().Msg("Asana adapter registered")
	}
	if cfg.LinearToken != "" {
		adapters = append(adapters, linear.New(linear.Config{
			BaseURL: cfg.LinearBaseURL,
			APIKey:  cfg.LinearToken,
			Timeout: cfg.LinearTimeout,
		}))
		log.Info().Msg("Linear adapter registered")
	}

	// Every adapter sits behind its own circuit breaker so one dead
	// platform cannot drag down calls to the others.
	breakerCfg := breaker.Config{
		Enabled:          cfg.BreakerEnabled,
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		MaxHalfOpenCalls: cfg.BreakerMaxHalfOpenCalls,
	}
	for i, adapter := range adapters {
		adapters[i] = breaker.Wrap(adapter, breakerCfg)
	}
	registry := connector.NewRegistry(adapters...)

	limitCfg := ratelimit.Config{
		Default: ratelimit.Policy{Limit: cfg.RateLimitDefault, Window: cfg.RateLimitWindow},
	}
	if cfg.RateLimitOverridesPath != "" {
		if err := limitCfg.LoadOverrides(cfg.RateLimitOverridesPath); err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.RateLimitOverridesPath).Msg("Rate limit overrides loaded")
	}

	// Shared backends when redis is configured, in-process otherwise.
	var (
		idemStore idempotency.Store
		limiter   ratelimit.Limiter
	)
	if cfg.RedisURL != "" {
		client, err := redisclient.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		idemStore = idempotency.NewRedisStore(client, cfg.IdempotencyTTL)
		limiter = ratelimit.NewRedisLimiter(client, limitCfg)
	} else {
		memStore, err := idempotency.NewMemoryStore(cfg.IdempotencyMaxEntries, cfg.IdempotencyTTL)
		if err != nil {
			return nil, err
		}
		idemStore = memStore
		limiter = ratelimit.NewMemoryLimiter(limitCfg)
		log.Info().Msg("Using in-process idempotency store and rate limiter")
	}

	catalogue := query.DefaultCatalogue()
	if cfg.TemplateCataloguePath != "" {
		if err := catalogue.LoadFile(cfg.TemplateCataloguePath); err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.TemplateCataloguePath).Msg("Query template catalogue loaded")
	}

	// The mirror database backs both the audit log and analytical queries.
	var (
		auditor    audit.Recorder
		queryChain invoke.QueryRunner
	)
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		auditor = database.NewAuditRecorder(db)
		queryChain = query.NewService(query.NewEngine(catalogue), database.NewQueryExecutor(db))
		log.Info().Msg("Database connection established")
	} else {
		auditor = audit.NewMemoryRecorder()
		log.Warn().Msg("No database configured; audit entries stay in memory and query actions are disabled")
	}

	pipeline := invoke.NewPipeline(
		invoke.DefaultCatalog(catalogue),
		idemStore,
		limiter,
		registry,
		queryChain,
		auditor,
		collector.New(cfg.MetricsWindowSize),
	)

	server := httpserver.NewHTTPServer(cfg, routes.NewInvokeRoute(pipeline))
	return &Application{httpServer: server}, nil
}

func (app *Application) Start(ctx context.Context) error {
	return app.httpServer.Run(ctx)
}
