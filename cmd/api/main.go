package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/evidens-whatsapp-bot/cmd/mainconfig"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/api/router"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/evidens-whatsapp-bot/internal/config"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/http/handlers"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/inbound"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting evidens whatsapp bot API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	db, err := bootstrap.OpenDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	metricsHandler, intakeMetrics := setupMetrics()
	st := bootstrap.BuildStore(db, logger)

	llm, err := bootstrap.BuildCompletionClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to configure completion provider", "error", err)
		os.Exit(1)
	}
	orchestrator, err := bootstrap.BuildOrchestrator(cfg, bootstrap.IntakeDeps{
		Store:      st,
		Completion: llm,
		Redis:      redisClient,
		AWS:        awsCfg,
		Metrics:    intakeMetrics,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to build intake orchestrator", "error", err)
		os.Exit(1)
	}

	pipeline, err := bootstrap.BuildPipeline(cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build inbound pipeline", "error", err)
		os.Exit(1)
	}
	var worker *inbound.Worker
	if bootstrap.InProcess(cfg) {
		worker = pipeline.NewWorker(orchestrator, inbound.WithWorkerCount(cfg.WorkerCount))
		worker.Start(ctx)
		logger.Info("inline intake workers started", "count", cfg.WorkerCount)
	}

	routerCfg := &router.Config{
		Logger: logger,
		Webhook: handlers.NewZAPIWebhookHandler(handlers.ZAPIWebhookConfig{
			Queue:   pipeline.Publisher,
			Dedupe:  bootstrap.BuildDeduper(db),
			Jobs:    pipeline.Jobs,
			Secret:  cfg.ZAPIWebhookSecret,
			Metrics: intakeMetrics,
			Logger:  logger,
		}),
		Simulator:        handlers.NewSimulatorHandler(orchestrator, st, logger),
		Jobs:             handlers.NewJobsHandler(pipeline.Jobs, logger),
		MetricsHandler:   metricsHandler,
		WebhookRateLimit: cfg.WebhookRateLimit,
		WebhookRateBurst: cfg.WebhookRateBurst,
	}
	if db != nil {
		loc, err := time.LoadLocation(cfg.ClinicTimezone)
		if err != nil {
			logger.Warn("unknown clinic timezone, admin metrics use UTC", "timezone", cfg.ClinicTimezone, "error", err)
			loc = time.UTC
		}
		routerCfg.Admin = handlers.NewAdminHandler(db.SQL, st, loc, cfg.OperatorHandle, logger)
	} else {
		logger.Warn("admin projections disabled without a database")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	if worker != nil {
		waitForWorker(shutdownCtx, worker, logger)
	}
	logger.Info("server stopped")
}

// setupMetrics registers the intake metrics on a dedicated registry.
func setupMetrics() (http.Handler, *metrics.IntakeMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewIntakeMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

func waitForWorker(ctx context.Context, worker *inbound.Worker, logger *logging.Logger) {
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline intake workers stopped")
	case <-ctx.Done():
		logger.Error("inline intake worker shutdown timed out", "error", ctx.Err())
	}
}
