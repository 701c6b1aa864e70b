package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/evidens-whatsapp-bot/cmd/mainconfig"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/evidens-whatsapp-bot/internal/config"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/inbound"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if bootstrap.InProcess(cfg) {
		logger.Error("intake worker needs INTAKE_QUEUE_URL; the in-memory queue only runs inside the API")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
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

	llm, err := bootstrap.BuildCompletionClient(ctx, cfg, awsConfig, logger)
	if err != nil {
		logger.Error("failed to configure completion provider", "error", err)
		os.Exit(1)
	}
	orchestrator, err := bootstrap.BuildOrchestrator(cfg, bootstrap.IntakeDeps{
		Store:      bootstrap.BuildStore(db, logger),
		Completion: llm,
		Redis:      redisClient,
		AWS:        awsConfig,
		Metrics:    metrics.NewIntakeMetrics(prometheus.NewRegistry()),
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to build intake orchestrator", "error", err)
		os.Exit(1)
	}

	pipeline, err := bootstrap.BuildPipeline(cfg, awsConfig, logger)
	if err != nil {
		logger.Error("failed to build inbound pipeline", "error", err)
		os.Exit(1)
	}
	worker := pipeline.NewWorker(orchestrator, inbound.WithWorkerCount(cfg.WorkerCount))
	worker.Start(ctx)
	logger.Info("intake worker started", "count", cfg.WorkerCount)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down intake worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("intake worker stopped")
	case <-doneCtx.Done():
		logger.Error("intake worker shutdown timed out", "error", doneCtx.Err())
	}
}
