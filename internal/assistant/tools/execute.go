package tools

import (
	"context"

	"opticai_backend/internal/assistant/envelope"
)

// ExecuteAction runs one whitelisted write directly, outside the agent
// loop. The UI uses it for its quick-action buttons; the invariants are
// the bulk verbs' with a batch of one.
func ExecuteAction(ctx context.Context, deps *Deps, action string, data map[string]any) (string, error) {
	switch action {
	case "create_appointment":
		deps.Log.ToolCall("AppointmentTool", "create", deps.Caller.UserID)
		return deps.createAppointments(ctx, data)
	case "create_medical_log":
		deps.Log.ToolCall("MedicalLogTool", "create", deps.Caller.UserID)
		return deps.createMedicalLogs(ctx, data)
	default:
		return envelope.Error("unknown action \"" + action + "\"; supported actions: create_appointment, create_medical_log"), nil
	}
}
