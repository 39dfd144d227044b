package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"opticai_backend/internal/insights"
	"opticai_backend/internal/scheduler"
	"opticai_backend/platform/config"
	"opticai_backend/platform/db"
	"opticai_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting insight worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	insightsModule := insights.NewModule(pool, cfg, log)

	worker, err := scheduler.NewWorker(cfg, insightsModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("insight worker stopped")
}
