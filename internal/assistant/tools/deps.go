// Package tools implements the assistant's domain tool catalogue: Client,
// Appointment, Exam and MedicalLog, each a single entry point dispatching
// on an action verb and returning the uniform envelope.
package tools

import (
	"context"
	"fmt"
	"time"

	apptrepo "opticai_backend/internal/appointments/repository"
	clientrepo "opticai_backend/internal/clients/repository"
	"opticai_backend/internal/clients/resolver"
	examrepo "opticai_backend/internal/exams/repository"
	logrepo "opticai_backend/internal/medicallogs/repository"
	"opticai_backend/internal/scheduler"
	"opticai_backend/internal/tenancy"
	"opticai_backend/platform/logger"

	"google.golang.org/adk/tool"
)

// Deps carries the per-request context every tool body needs. A Deps is
// built once per chat request and bound into that request's tool set, so
// concurrent requests never share caller identity.
type Deps struct {
	Caller tenancy.Caller
	Scope  tenancy.Scope

	Clients      *clientrepo.Repository
	Appointments *apptrepo.Repository
	Exams        *examrepo.Repository
	MedicalLogs  *logrepo.Repository
	Resolver     *resolver.Resolver

	// Insights, when configured, receives a background regeneration task
	// after each write that invalidates an ai state.
	Insights scheduler.InsightsScheduler

	Log *logger.Logger
}

// bumpAndInvalidate advances the owning client's updated date, clears the
// domain's ai state, and queues a best-effort background insight refresh.
func (d *Deps) bumpAndInvalidate(ctx context.Context, clientID int64, domain string) error {
	if err := d.Clients.BumpUpdated(ctx, clientID, domain); err != nil {
		return err
	}

	if d.Insights != nil {
		payload := scheduler.InsightsGeneratePayload{
			ClientID:  clientID,
			CompanyID: d.Scope.CompanyID,
			ClinicID:  d.Scope.ClinicID,
		}
		if err := d.Insights.EnqueueInsightsGenerate(ctx, payload); err != nil {
			d.Log.Warn("insight refresh enqueue failed", "client_id", clientID, "error", err)
		}
	}
	return nil
}

const clientNotFoundHebrew = "מטופל %d לא נמצא"

func clientNotFound(clientID int64) string {
	return fmt.Sprintf(clientNotFoundHebrew, clientID)
}

const isoDate = "2006-01-02"

func formatDate(t time.Time) string {
	return t.Format(isoDate)
}

// Build creates the full tool catalogue for one request.
func Build(deps *Deps) ([]tool.Tool, error) {
	var tools []tool.Tool

	for _, create := range []func(*Deps) (tool.Tool, error){
		newClientTool,
		newAppointmentTool,
		newExamTool,
		newMedicalLogTool,
	} {
		t, err := create(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to build tool: %w", err)
		}
		tools = append(tools, t)
	}
	return tools, nil
}
