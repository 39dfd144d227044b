// Package assistant provides the AI assistant domain module: a staff-facing
// chat agent with a fixed tool catalogue over the clinical records.
package assistant

import (
	apptrepo "opticai_backend/internal/appointments/repository"
	"opticai_backend/internal/assistant/agent"
	"opticai_backend/internal/assistant/handler"
	"opticai_backend/internal/assistant/memory"
	clientrepo "opticai_backend/internal/clients/repository"
	examrepo "opticai_backend/internal/exams/repository"
	apphttp "opticai_backend/internal/http"
	logrepo "opticai_backend/internal/medicallogs/repository"
	"opticai_backend/internal/scheduler"
	"opticai_backend/platform/config"
	"opticai_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the assistant domain module
type Module struct {
	handler *handler.Handler
}

// NewModule creates a new assistant module with all dependencies wired.
// The memory store and insights scheduler are injected by the composition
// root so it can choose between the in-process store and Redis, and run
// without a task queue when none is configured.
func NewModule(pool *pgxpool.Pool, cfg config.AIConfig, store memory.Store, insights scheduler.InsightsScheduler, log *logger.Logger) *Module {
	clients := clientrepo.New(pool)
	appointments := apptrepo.New(pool)
	exams := examrepo.New(pool)
	medicalLogs := logrepo.New(pool)

	assistant := agent.New(cfg, store, clients, appointments, exams, medicalLogs, insights, log)
	h := handler.New(assistant, clients, log)

	return &Module{handler: h}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "assistant"
}

// RegisterRoutes registers the module's routes under /api/v1/ai
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ai := ctx.Protected.Group("/ai")
	m.handler.RegisterRoutes(ai)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
