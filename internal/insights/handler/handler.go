// Package handler exposes the insight generation endpoints under /ai.
package handler

import (
	"net/http"
	"strconv"

	"opticai_backend/internal/insights/service"
	"opticai_backend/internal/tenancy"
	"opticai_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for insight generation.
type Handler struct {
	svc     *service.Service
	clinics tenancy.ClinicLookup
}

// New creates a new insights handler.
func New(svc *service.Service, clinics tenancy.ClinicLookup) *Handler {
	return &Handler{svc: svc, clinics: clinics}
}

// RegisterRoutes registers the insight routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/generate-all-states/:client_id", h.GenerateAll)
	rg.POST("/generate-part-state/:client_id/:part", h.GeneratePart)
}

func (h *Handler) scope(c *gin.Context) (tenancy.Scope, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return tenancy.Scope{}, false
	}
	caller := tenancy.Caller{
		UserID:    identity.UserID(),
		CompanyID: identity.CompanyID(),
		ClinicID:  identity.ClinicID(),
		RoleLevel: identity.RoleLevel(),
	}
	scope, err := tenancy.Resolve(c.Request.Context(), caller, nil, h.clinics)
	if err != nil {
		httpkit.HandleError(c, err)
		return tenancy.Scope{}, false
	}
	return scope, true
}

func clientIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("client_id"), 10, 64)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid client_id", nil)
		return 0, false
	}
	return id, true
}

// GenerateAll handles POST /ai/generate-all-states/:client_id.
func (h *Handler) GenerateAll(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	clientID, ok := clientIDParam(c)
	if !ok {
		return
	}

	if err := h.svc.GenerateAll(c.Request.Context(), clientID, scope); httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GeneratePart handles POST /ai/generate-part-state/:client_id/:part.
func (h *Handler) GeneratePart(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	clientID, ok := clientIDParam(c)
	if !ok {
		return
	}

	if err := h.svc.GeneratePart(c.Request.Context(), clientID, c.Param("part"), scope); httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
