package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"opticai_backend/platform/httpkit"
	"opticai_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

type stubClinics struct{}

func (stubClinics) ClinicCompanyID(context.Context, int64) (int64, bool) { return 0, false }

// seedIdentity sets the context keys the auth middleware would populate.
func seedIdentity(userID int64, companyID, clinicID *int64, role int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, userID)
		if companyID != nil {
			c.Set(httpkit.ContextCompanyIDKey, *companyID)
		}
		if clinicID != nil {
			c.Set(httpkit.ContextClinicIDKey, *clinicID)
		}
		c.Set(httpkit.ContextRoleLevelKey, role)
		c.Next()
	}
}

func postChat(t *testing.T, identity gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := New(nil, stubClinics{}, logger.New("test"))

	r := gin.New()
	r.Use(identity)
	r.POST("/ai/chat", h.Chat)

	req := httptest.NewRequest(http.MethodPost, "/ai/chat", strings.NewReader(`{"message":"שלום"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// A non-CEO caller without a clinic has no tenant context for the chat
// surface; that is a 400, not a 403.
func TestChatClinicContextRequiredIs400(t *testing.T) {
	company := int64(1)
	w := postChat(t, seedIdentity(2, &company, nil, 2))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing clinic context, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "clinic_context_required") {
		t.Fatalf("expected clinic_context_required error, got %s", w.Body.String())
	}
}

func TestChatWithoutCompanyIs403(t *testing.T) {
	w := postChat(t, seedIdentity(2, nil, nil, 2))

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a caller without a company, got %d: %s", w.Code, w.Body.String())
	}
}
