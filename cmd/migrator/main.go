package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"opticai_backend/internal/migration"
	"opticai_backend/migrations"
	"opticai_backend/platform/config"
	"opticai_backend/platform/db"
	"opticai_backend/platform/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logger.New("production").Error("failed to load config", "error", err)
		return 1
	}

	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(ctx, cfg, migrations.FS); err != nil {
		log.Error("failed to run database migrations", "error", err)
		return 1
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer pool.Close()

	engine, err := migration.New(pool, cfg, cfg, log)
	if err != nil {
		log.Error("failed to initialize migration engine", "error", err)
		return 1
	}

	if len(os.Args) > 1 && os.Args[1] == "cleanup" {
		log.Info("starting cleanup", "company_id", cfg.MigrationCompanyID, "keep_clients", cfg.KeepClients)
		if err := engine.Cleanup(ctx); err != nil {
			log.Error("cleanup failed", "error", err)
			return 1
		}
		log.Info("cleanup complete")
		return 0
	}

	log.Info("starting migration",
		"dir", cfg.LegacyCSVDir,
		"company_id", cfg.MigrationCompanyID,
		"parallel", cfg.MigrationParallel,
		"perf", cfg.MigrationPerf,
	)
	if err := engine.Run(ctx); err != nil {
		log.Error("migration failed", "error", err)
		return 1
	}
	return 0
}
