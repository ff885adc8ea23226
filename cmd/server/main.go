package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	_ "github.com/axiom/ucws/docs" // Swagger docs
	"github.com/axiom/ucws/internal/app"
	"github.com/axiom/ucws/internal/config"
	"github.com/axiom/ucws/internal/handlers"
	"github.com/axiom/ucws/internal/middleware"
	"github.com/axiom/ucws/internal/orchestration"
)

// @title UCWS API
// @version 0.1.0
// @description Unified Code Writing System: LLM-driven Python code generation and modification.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	ctx := context.Background()

	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	logger, err := zapConfig.Build()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zapConfig.Level.SetLevel(level.Level())
	}

	logger.Info("UCWS starting...",
		zap.String("version", app.Version),
		zap.String("environment", cfg.Environment),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("task_store", cfg.TaskStore),
	)

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal("failed to initialize service", zap.Error(err))
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("failed to close resources", zap.Error(err))
		}
	}()

	// Temporal worker runs code jobs in this process
	var w worker.Worker
	if a.Temporal != nil {
		w = orchestration.NewWorker(a.Temporal, cfg.TemporalTaskQueue, a.Service)
		if err := w.Start(); err != nil {
			logger.Error("failed to start temporal worker", zap.Error(err))
			w = nil
		} else {
			logger.Info("temporal worker started", zap.String("task_queue", cfg.TemporalTaskQueue))
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.Metrics(a.Metrics))

	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := handlers.NewHealthHandler(app.Version, healthDeps(a))
	router.GET("/health", healthHandler.Health)
	router.GET("/health/deep", healthHandler.DeepHealth)

	// A nil *Jobs must reach the handler as a nil interface
	var jobs handlers.JobRunner
	if a.Jobs != nil {
		jobs = a.Jobs
	}
	codeHandler := handlers.NewCodeHandler(a.Service, cfg.RequestTimeout, logger)
	jobHandler := handlers.NewJobHandler(jobs, logger)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret, logger))
	{
		code := v1.Group("/code")
		code.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(cfg.RateLimitPerMinute, max(1, cfg.RateLimitPerMinute/6))))
		{
			code.POST("/generate", codeHandler.Generate)
			code.POST("/modify", codeHandler.Modify)
			code.POST("/jobs", jobHandler.Start)
			code.GET("/jobs/:id", jobHandler.Status)
			code.POST("/jobs/:id/cancel", jobHandler.Cancel)
		}

		if a.Tasks != nil {
			taskHandler := handlers.NewTaskHandler(a.Tasks, a.Usage, logger)
			v1.GET("/tasks", taskHandler.List)
			v1.GET("/tasks/:id", taskHandler.Get)
			v1.GET("/usage", taskHandler.Usage)
		}
	}

	// Synchronous hierarchical generation can run for minutes
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if w != nil {
		w.Stop()
	}

	logger.Info("server exited gracefully")
}

// healthDeps lists the backends the deep health check probes. Unused
// backends are reported as not configured.
func healthDeps(a *app.App) map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{
		"database": nil,
		"redis":    nil,
		"nats":     nil,
		"temporal": nil,
		"llm":      nil,
	}
	if a.Postgres != nil {
		deps["database"] = a.Postgres
	}
	if a.Redis != nil {
		deps["redis"] = a.Redis
	}
	if a.Bus != nil {
		bus := a.Bus
		deps["nats"] = handlers.PingFunc(func(context.Context) error {
			if !bus.Connected() {
				return errors.New("disconnected")
			}
			return nil
		})
	}
	if a.Temporal != nil {
		tc := a.Temporal
		deps["temporal"] = handlers.PingFunc(func(ctx context.Context) error {
			_, err := tc.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		})
	}
	if a.Ollama != nil {
		deps["llm"] = a.Ollama
	}
	return deps
}
