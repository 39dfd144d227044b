// Package handler exposes the assistant's HTTP surface under /ai.
package handler

import (
	"encoding/json"
	"net/http"

	"opticai_backend/internal/assistant/agent"
	"opticai_backend/internal/tenancy"
	"opticai_backend/platform/httpkit"
	"opticai_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const msgInvalidRequest = "invalid request"

// Handler handles HTTP requests for the AI assistant.
type Handler struct {
	assistant *agent.Assistant
	clinics   tenancy.ClinicLookup
	log       *logger.Logger
}

// New creates a new assistant handler.
func New(a *agent.Assistant, clinics tenancy.ClinicLookup, log *logger.Logger) *Handler {
	return &Handler{assistant: a, clinics: clinics, log: log}
}

// RegisterRoutes registers the chat and action routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/chat", h.Chat)
	rg.POST("/chat/stream", h.ChatStream)
	rg.POST("/execute-action", h.ExecuteAction)
}

// callerScope extracts identity and resolves the tenant scope, writing the
// HTTP error itself when the caller is out of scope.
func (h *Handler) callerScope(c *gin.Context, requestedClinic *int64) (tenancy.Caller, tenancy.Scope, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return tenancy.Caller{}, tenancy.Scope{}, false
	}

	caller := tenancy.Caller{
		UserID:    identity.UserID(),
		CompanyID: identity.CompanyID(),
		ClinicID:  identity.ClinicID(),
		RoleLevel: identity.RoleLevel(),
	}

	scope, err := tenancy.Resolve(c.Request.Context(), caller, requestedClinic, h.clinics)
	if err != nil {
		// Typed errors carry their own status: clinic_context_required is
		// 400, access_denied is 403.
		httpkit.HandleError(c, err)
		return tenancy.Caller{}, tenancy.Scope{}, false
	}
	return caller, scope, true
}

// Chat handles POST /ai/chat (blocking surface).
func (h *Handler) Chat(c *gin.Context) {
	var req agent.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	caller, scope, ok := h.callerScope(c, nil)
	if !ok {
		return
	}

	resp, err := h.assistant.Chat(c.Request.Context(), caller, scope, req)
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ChatStream handles POST /ai/chat/stream (SSE surface). Frames are
// line-delimited "data: {json}\n\n" payloads.
func (h *Handler) ChatStream(c *gin.Context) {
	var req agent.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	caller, scope, ok := h.callerScope(c, nil)
	if !ok {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	emit := func(frame agent.StreamFrame) error {
		payload, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if _, err := c.Writer.WriteString("data: " + string(payload) + "\n\n"); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	if err := h.assistant.ChatStream(c.Request.Context(), caller, scope, req, emit); err != nil {
		// Headers are already sent; report the failure in-band.
		h.log.LLMError("chat stream", err)
		payload, _ := json.Marshal(gin.H{"error": "assistant run failed", "done": true})
		c.Writer.WriteString("data: " + string(payload) + "\n\n")
		c.Writer.Flush()
	}
}

type executeActionRequest struct {
	Action string         `json:"action" binding:"required"`
	Data   map[string]any `json:"data" binding:"required"`
}

// ExecuteAction handles POST /ai/execute-action: the UI's quick-action
// buttons, bypassing the model.
func (h *Handler) ExecuteAction(c *gin.Context) {
	var req executeActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	caller, scope, ok := h.callerScope(c, nil)
	if !ok {
		return
	}

	raw, err := h.assistant.ExecuteAction(c.Request.Context(), caller, scope, req.Action, req.Data)
	if httpkit.HandleError(c, err) {
		return
	}

	// The envelope is already JSON; hand it through untouched.
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(raw))
}
