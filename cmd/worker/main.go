package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/hugh/ia-marketing/internal/app"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/provider"
	"github.com/hugh/ia-marketing/internal/tasks"
	"github.com/hugh/ia-marketing/pkg/config"
	"github.com/hugh/ia-marketing/pkg/queue"
	"github.com/hugh/ia-marketing/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting ia-marketing worker")

	if !cfg.Provider.Enabled() {
		logger.Error("PROVIDER_BASE_URL is required to dispatch video jobs")
		os.Exit(1)
	}
	if err := util.ValidateCronExpr(cfg.Worker.ReconcileCron); err != nil {
		logger.Error("invalid WORKER_RECONCILE_CRON", "error", err)
		os.Exit(1)
	}

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	services, err := app.NewServices(db, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	handler := tasks.NewHandler(services.Videos, provider.NewClient(cfg.Provider, logger), services.Ledger, logger)
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency)

	scheduler := queue.NewScheduler(&cfg.Redis)
	entryID, err := scheduler.Register(cfg.Worker.ReconcileCron, tasks.NewReconcileTask(), asynq.Queue(queue.QueueLow))
	if err != nil {
		logger.Error("failed to schedule ledger reconciliation", "error", err)
		os.Exit(1)
	}
	logger.Info("ledger reconciliation scheduled", "cron", cfg.Worker.ReconcileCron, "entry_id", entryID)

	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	if err := srv.Start(mux); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	logger.Info("worker started, waiting for tasks...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")
	scheduler.Shutdown()
	srv.Shutdown()

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
