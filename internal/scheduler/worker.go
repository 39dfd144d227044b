package scheduler

import (
	"context"
	"fmt"

	"opticai_backend/internal/insights/service"
	"opticai_backend/internal/tenancy"
	"opticai_backend/platform/config"
	"opticai_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	insights *service.Service
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, svc *service.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		insights: svc,
		log:      log,
	}

	mux.HandleFunc(TaskInsightsGenerate, w.handleInsightsGenerate)
	mux.HandleFunc(TaskInsightsGeneratePart, w.handleInsightsGeneratePart)

	return w, nil
}

func (w *Worker) handleInsightsGenerate(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseInsightsGeneratePayload(task)
	if err != nil {
		return err
	}

	scope := tenancy.Scope{CompanyID: payload.CompanyID, ClinicID: payload.ClinicID}
	if err := w.insights.GenerateAll(ctx, payload.ClientID, scope); err != nil {
		w.log.Error("insights generation failed", "client_id", payload.ClientID, "error", err)
		return err
	}
	return nil
}

func (w *Worker) handleInsightsGeneratePart(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseInsightsGeneratePartPayload(task)
	if err != nil {
		return err
	}

	scope := tenancy.Scope{CompanyID: payload.CompanyID, ClinicID: payload.ClinicID}
	if err := w.insights.GeneratePart(ctx, payload.ClientID, payload.Part, scope); err != nil {
		w.log.Error("insights part generation failed", "client_id", payload.ClientID, "part", payload.Part, "error", err)
		return err
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
