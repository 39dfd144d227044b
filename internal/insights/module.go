// Package insights provides the client insight generation domain module.
package insights

import (
	clientrepo "opticai_backend/internal/clients/repository"
	apphttp "opticai_backend/internal/http"
	"opticai_backend/internal/insights/handler"
	"opticai_backend/internal/insights/repository"
	"opticai_backend/internal/insights/service"
	"opticai_backend/platform/ai/openaichat"
	"opticai_backend/platform/config"
	"opticai_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the insights domain module
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new insights module with all dependencies wired
func NewModule(pool *pgxpool.Pool, cfg config.AIConfig, log *logger.Logger) *Module {
	clients := clientrepo.New(pool)
	repo := repository.New(pool)
	llm := openaichat.NewModel(openaichat.Config{
		APIKey:            cfg.GetAIAPIKey(),
		BaseURL:           cfg.GetAIBaseURL(),
		Model:             cfg.GetAIModel(),
		Timeout:           cfg.GetAITimeout(),
		RequestsPerMinute: cfg.GetAIRequestsPerMinute(),
	})

	svc := service.New(clients, repo, llm, log)
	h := handler.New(svc, clients)

	return &Module{handler: h, service: svc}
}

// Service exposes the insight generator for the background worker.
func (m *Module) Service() *service.Service {
	return m.service
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "insights"
}

// RegisterRoutes registers the module's routes under /api/v1/ai
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ai := ctx.Protected.Group("/ai")
	m.handler.RegisterRoutes(ai)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
