// Package agent binds the domain tool catalogue to an LLM with a
// ReAct-style loop. It exposes a blocking chat surface and a streaming one
// that reports tool lifecycle events to the UI.
package agent

import (
	"context"
	"fmt"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/google/uuid"

	apptrepo "opticai_backend/internal/appointments/repository"
	"opticai_backend/internal/assistant/memory"
	"opticai_backend/internal/assistant/tools"
	clientrepo "opticai_backend/internal/clients/repository"
	"opticai_backend/internal/clients/resolver"
	examrepo "opticai_backend/internal/exams/repository"
	logrepo "opticai_backend/internal/medicallogs/repository"
	"opticai_backend/internal/scheduler"
	"opticai_backend/internal/tenancy"
	"opticai_backend/platform/ai/openaichat"
	"opticai_backend/platform/apperr"
	"opticai_backend/platform/config"
	"opticai_backend/platform/logger"
)

const appName = "opticai_assistant"

// Assistant runs staff chat requests against the tool catalogue.
type Assistant struct {
	model          *openaichat.Model
	sessionService session.Service
	memory         memory.Store

	clients      *clientrepo.Repository
	appointments *apptrepo.Repository
	exams        *examrepo.Repository
	medicalLogs  *logrepo.Repository
	resolver     *resolver.Resolver
	insights     scheduler.InsightsScheduler

	log *logger.Logger
}

// New builds the assistant over the shared repositories.
func New(
	cfg config.AIConfig,
	store memory.Store,
	clients *clientrepo.Repository,
	appointments *apptrepo.Repository,
	exams *examrepo.Repository,
	medicalLogs *logrepo.Repository,
	insights scheduler.InsightsScheduler,
	log *logger.Logger,
) *Assistant {
	return &Assistant{
		model: openaichat.NewModel(openaichat.Config{
			APIKey:            cfg.GetAIAPIKey(),
			BaseURL:           cfg.GetAIBaseURL(),
			Model:             cfg.GetAIModel(),
			Timeout:           cfg.GetAITimeout(),
			RequestsPerMinute: cfg.GetAIRequestsPerMinute(),
		}),
		sessionService: session.InMemoryService(),
		memory:         store,
		clients:        clients,
		appointments:   appointments,
		exams:          exams,
		medicalLogs:    medicalLogs,
		resolver:       resolver.New(clients),
		insights:       insights,
		log:            log,
	}
}

// ChatRequest is one staff chat turn.
type ChatRequest struct {
	Message             string        `json:"message" binding:"required"`
	ConversationHistory []memory.Turn `json:"conversationHistory"`
	ChatID              string        `json:"chat_id"`
}

// ChatResponse is the blocking surface's reply.
type ChatResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (a *Assistant) deps(caller tenancy.Caller, scope tenancy.Scope) *tools.Deps {
	return &tools.Deps{
		Caller:       caller,
		Scope:        scope,
		Clients:      a.clients,
		Appointments: a.appointments,
		Exams:        a.exams,
		MedicalLogs:  a.medicalLogs,
		Resolver:     a.resolver,
		Insights:     a.insights,
		Log:          a.log,
	}
}

// ExecuteAction runs one whitelisted write without involving the model.
func (a *Assistant) ExecuteAction(ctx context.Context, caller tenancy.Caller, scope tenancy.Scope, action string, data map[string]any) (string, error) {
	return tools.ExecuteAction(ctx, a.deps(caller, scope), action, data)
}

// newRunner binds a per-request tool set to a fresh ADK agent. Tools carry
// the caller identity, so runners are never shared between requests.
func (a *Assistant) newRunner(caller tenancy.Caller, scope tenancy.Scope) (*runner.Runner, error) {
	toolSet, err := tools.Build(a.deps(caller, scope))
	if err != nil {
		return nil, fmt.Errorf("failed to build tools: %w", err)
	}

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "OpticAIAssistant",
		Model:       a.model,
		Description: "Hebrew-speaking assistant for ophthalmology clinic staff: manages clients, appointments, optical exams and medical logs through domain tools.",
		Instruction: getSystemPrompt(),
		Tools:       toolSet,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: a.sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	return r, nil
}

// prepareTurn seeds memory from the UI history when this chat is new,
// records the user turn, and returns the memory key plus the history that
// preceded this message.
func (a *Assistant) prepareTurn(ctx context.Context, caller tenancy.Caller, req ChatRequest) (string, []memory.Turn, error) {
	chatID := req.ChatID
	if chatID == "" {
		chatID = "default"
	}
	key := memory.Key(caller.UserID, chatID)

	if len(req.ConversationHistory) > 0 {
		if err := a.memory.Seed(ctx, key, req.ConversationHistory); err != nil {
			return "", nil, err
		}
	}
	history, err := a.memory.Get(ctx, key)
	if err != nil {
		return "", nil, err
	}
	if err := a.memory.Append(ctx, key, memory.Turn{Role: "user", Content: req.Message}); err != nil {
		return "", nil, err
	}
	return key, history, nil
}

func (a *Assistant) openSession(ctx context.Context, caller tenancy.Caller) (string, string, func(), error) {
	userID := fmt.Sprintf("user-%d", caller.UserID)
	sessionID := uuid.New().String()

	_, err := a.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to create session: %w", err)
	}

	cleanup := func() {
		deleteReq := &session.DeleteRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		}
		if err := a.sessionService.Delete(context.Background(), deleteReq); err != nil {
			a.log.LLMError("delete session", err)
		}
	}
	return userID, sessionID, cleanup, nil
}

// Chat is the blocking invocation surface.
func (a *Assistant) Chat(ctx context.Context, caller tenancy.Caller, scope tenancy.Scope, req ChatRequest) (*ChatResponse, error) {
	r, err := a.newRunner(caller, scope)
	if err != nil {
		return nil, apperr.LLM(err.Error())
	}

	key, history, err := a.prepareTurn(ctx, caller, req)
	if err != nil {
		return nil, apperr.Internal("conversation memory unavailable")
	}

	userID, sessionID, cleanup, err := a.openSession(ctx, caller)
	if err != nil {
		return nil, apperr.LLM(err.Error())
	}
	defer cleanup()

	userMessage := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: buildUserMessage(history, req.Message)}},
	}

	var output string
	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}
	for event, err := range r.Run(ctx, userID, sessionID, userMessage, runConfig) {
		if err != nil {
			a.log.LLMError("chat run", err)
			return nil, apperr.LLM("assistant run failed")
		}
		if event.Content == nil {
			continue
		}
		for _, part := range event.Content.Parts {
			output += part.Text
		}
	}

	if output == "" {
		return nil, apperr.LLM("assistant produced no reply")
	}

	// Memory is appended only on success.
	if err := a.memory.Append(ctx, key, memory.Turn{Role: "assistant", Content: output}); err != nil {
		a.log.LLMError("append assistant turn", err)
	}

	return &ChatResponse{Success: true, Message: output}, nil
}
