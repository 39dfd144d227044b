package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opticai_backend/internal/assistant"
	"opticai_backend/internal/assistant/memory"
	apphttp "opticai_backend/internal/http"
	"opticai_backend/internal/http/router"
	"opticai_backend/internal/insights"
	"opticai_backend/internal/scheduler"
	"opticai_backend/migrations"
	"opticai_backend/platform/config"
	"opticai_backend/platform/db"
	"opticai_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	store := initMemoryStore(cfg, log)

	insightsScheduler, closeScheduler := initInsightsScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	if !cfg.IsAIEnabled() {
		log.Warn("AI_API_KEY not configured; assistant responses will fail")
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	assistantModule := assistant.NewModule(pool, cfg, store, insightsScheduler, log)
	insightsModule := insights.NewModule(pool, cfg, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: pool,
		Modules: []apphttp.Module{
			assistantModule,
			insightsModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initInsightsScheduler connects the asynq client used to queue insight
// regeneration after assistant writes. Without Redis the assistant still
// works; stale insights are simply not refreshed in the background.
func initInsightsScheduler(cfg config.SchedulerConfig, log *logger.Logger) (scheduler.InsightsScheduler, func()) {
	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Warn("insights scheduler disabled", "error", err)
		return nil, nil
	}
	log.Info("insights scheduler connected", "queue", cfg.GetAsynqQueueName())
	return client, func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close insights scheduler", "error", err)
		}
	}
}

// initMemoryStore picks the conversation memory backend: Redis when
// configured, in-process otherwise.
func initMemoryStore(cfg config.MemoryConfig, log *logger.Logger) memory.Store {
	if cfg.UseRedisMemory() {
		store, err := memory.NewRedis(cfg.GetRedisURL(), cfg.GetMemoryTTL())
		if err != nil {
			log.Warn("redis memory unavailable, falling back to in-process store", "error", err)
			return memory.NewInMemory(cfg.GetMemoryTTL())
		}
		log.Info("conversation memory backed by redis")
		return store
	}
	return memory.NewInMemory(cfg.GetMemoryTTL())
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%s: %w", name, lastErr)
}
