// Package app wires configuration into a running code service. The server
// and the CLI share it.
package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/axiom/ucws/internal/codegen"
	"github.com/axiom/ucws/internal/config"
	"github.com/axiom/ucws/internal/database"
	"github.com/axiom/ucws/internal/eventbus"
	"github.com/axiom/ucws/internal/llm"
	"github.com/axiom/ucws/internal/metrics"
	"github.com/axiom/ucws/internal/orchestration"
	"github.com/axiom/ucws/internal/provenance"
	"github.com/axiom/ucws/internal/selfmod"
	"github.com/axiom/ucws/internal/storage"
	"github.com/axiom/ucws/internal/syntax"
	"github.com/axiom/ucws/internal/tasks"
	"github.com/axiom/ucws/internal/telemetry"
	"github.com/axiom/ucws/internal/usage"
)

// Version is reported by health checks and traces
const Version = "0.1.0"

// App holds the wired service and the connections it owns
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	Service  *codegen.Service
	Gateway  llm.Gateway
	Tasks    tasks.Store
	Usage    *usage.Service
	Signer   *provenance.Signer
	Bus      *eventbus.Bus
	Postgres *database.Postgres
	Redis    *database.Redis
	Temporal client.Client
	Jobs     *orchestration.Jobs

	// Ollama is set when the ollama provider is selected, for health checks
	Ollama *llm.OllamaGateway

	closers []func(ctx context.Context) error
}

// Options tunes which optional backends New connects to
type Options struct {
	// SkipTemporal leaves job orchestration disabled
	SkipTemporal bool
	// SkipEvents leaves NATS disabled
	SkipEvents bool
	// Fake replaces the provider when LLM_PROVIDER=fake
	Fake *llm.FakeGateway
}

// New connects every configured backend and builds the code service.
// Required backends (the selected task store, the LLM provider) fail New;
// optional ones (NATS, Temporal, tracing) are logged and skipped.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.Get()}
	app, err := a.connect(ctx, opts)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) connect(ctx context.Context, opts Options) (*App, error) {
	cfg, logger := a.Config, a.Logger
	var err error

	shutdownTracer, err := telemetry.InitTracer(ctx, "ucws", telemetry.Options{
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		SampleRatio: cfg.OTelSampleRatio,
		Version:     Version,
	})
	if err != nil {
		logger.Error("failed to initialize telemetry", zap.Error(err))
	} else {
		a.closers = append(a.closers, shutdownTracer)
	}

	if cfg.DatabaseURL != "" {
		if cfg.RunMigrations {
			if err := database.RunMigrations(cfg.DatabaseURL, logger); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		a.Postgres, err = database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { a.Postgres.Close(); return nil })
		logger.Info("connected to postgres")
	}

	if cfg.RedisURL != "" {
		a.Redis, err = database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return a.Redis.Close() })
		logger.Info("connected to redis")
	}

	switch cfg.TaskStore {
	case "postgres":
		a.Tasks = tasks.NewPostgresStore(a.Postgres)
	case "redis":
		a.Tasks = tasks.NewRedisStore(a.Redis, cfg.TaskTTL)
	case "memory":
		a.Tasks = tasks.NewMemoryStore()
	}

	if a.Postgres != nil {
		a.Usage = usage.NewService(usage.NewPostgresRepository(a.Postgres), logger)
	} else {
		a.Usage = usage.NewService(usage.NewMemoryRepository(), logger)
	}

	if !opts.SkipEvents && cfg.NATSURL != "" {
		bus, err := eventbus.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", zap.Error(err))
		} else {
			a.Bus = bus
			a.closers = append(a.closers, func(context.Context) error { bus.Close(); return nil })
		}
	}

	tracer := otel.Tracer("github.com/axiom/ucws")
	if cfg.LLM.Provider != "none" {
		a.Gateway, err = llm.Build(ctx, llm.BuildOptions{
			Provider:         cfg.LLM.Provider,
			OllamaURL:        cfg.LLM.OllamaURL,
			GeminiAPIKey:     cfg.LLM.GeminiAPIKey,
			DefaultModel:     cfg.LLM.DefaultModel,
			Timeout:          cfg.LLM.Timeout,
			Retries:          cfg.LLM.Retries,
			RetryBase:        cfg.LLM.RetryBase,
			RatePerSecond:    cfg.LLM.RatePerSecond,
			Burst:            cfg.LLM.Burst,
			BreakerThreshold: cfg.LLM.BreakerThreshold,
			BreakerTimeout:   cfg.LLM.BreakerTimeout,
			Logger:           logger,
			Metrics:          a.Metrics,
			Tracer:           tracer,
			Usage:            a.Usage,
			Fake:             opts.Fake,
		})
		if err != nil {
			return nil, fmt.Errorf("build llm gateway: %w", err)
		}
		if cfg.LLM.Provider == "ollama" {
			a.Ollama = llm.NewOllamaGateway(cfg.LLM.OllamaURL, cfg.LLM.DefaultModel)
		}
	} else {
		logger.Warn("no LLM provider configured; code requests will fail with ERROR_LLM_PROVIDER_MISSING")
	}

	a.Signer = provenance.NewSigner(cfg.SigningKey, cfg.SigningKeyID)

	writer, err := storage.NewLocalWriter(cfg.OutputRoot, logger)
	if err != nil {
		return nil, fmt.Errorf("output root: %w", err)
	}
	editor, err := selfmod.NewEditor(cfg.SelfModRoot, logger)
	if err != nil {
		return nil, fmt.Errorf("self-modification root: %w", err)
	}

	svcOpts := codegen.Options{
		Gateway:           a.Gateway,
		SelfMod:           editor,
		Writer:            writer,
		Syntax:            syntax.NewPythonChecker(),
		Stamper:           a.Signer,
		Metrics:           a.Metrics,
		Tracer:            tracer,
		Logger:            logger,
		DefaultModel:      cfg.LLM.DefaultModel,
		TaskModels:        cfg.LLM.TaskModels,
		DetailConcurrency: cfg.DetailConcurrency,
	}
	if a.Tasks != nil {
		svcOpts.Tasks = tasks.NewRecorder(a.Tasks, logger)
	}
	if a.Bus != nil {
		svcOpts.Events = a.Bus
	}
	a.Service = codegen.New(svcOpts)

	if !opts.SkipTemporal && cfg.TemporalAddress != "" {
		c, err := orchestration.Dial(cfg.TemporalAddress, cfg.TemporalNamespace)
		if err != nil {
			logger.Error("failed to connect to temporal", zap.Error(err))
		} else {
			a.Temporal = c
			a.Jobs = orchestration.NewJobs(c, cfg.TemporalTaskQueue, logger)
			a.closers = append(a.closers, func(context.Context) error { c.Close(); return nil })
			logger.Info("connected to temporal", zap.String("address", cfg.TemporalAddress))
		}
	}

	return a, nil
}

// Close releases connections in reverse order of creation
func (a *App) Close(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
