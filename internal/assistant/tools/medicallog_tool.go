package tools

import (
	"context"
	"fmt"
	"time"

	"opticai_backend/internal/assistant/envelope"
	"opticai_backend/internal/assistant/toolargs"
	logrepo "opticai_backend/internal/medicallogs/repository"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
)

var medicalLogSpec = toolargs.Spec{
	Verbs: []string{"list", "get", "get_by_client", "create", "update"},
	ShorthandParam: map[string]string{
		"get":           "log_id",
		"get_by_client": "client_id",
		"list":          "client_id",
	},
}

func newMedicalLogTool(deps *Deps) (tool.Tool, error) {
	return functiontool.New(functiontool.Config{
		Name: "MedicalLogTool",
		Description: "Manage free-text medical log entries. Actions: list (by client_id), get (by " +
			"log_id), get_by_client (all entries for one client), create, update. " +
			"create/update accept a single record or a list under 'logs'.",
	}, func(_ tool.Context, input map[string]any) (string, error) {
		ctx := context.Background()
		action, args, err := toolargs.Parse(input, medicalLogSpec)
		if err != nil {
			return envelope.Error(err.Error()), nil
		}
		deps.Log.ToolCall("MedicalLogTool", action, deps.Caller.UserID)

		switch action {
		case "list", "get_by_client":
			return deps.listMedicalLogs(ctx, args)
		case "get":
			return deps.getMedicalLog(ctx, args)
		case "create":
			return deps.createMedicalLogs(ctx, args)
		case "update":
			return deps.updateMedicalLogs(ctx, args)
		default:
			return envelope.Error(medicalLogSpec.UnknownVerbError(action)), nil
		}
	})
}

func (d *Deps) listMedicalLogs(ctx context.Context, args toolargs.Args) (string, error) {
	clientID, err := toolargs.Int(args["client_id"])
	if err != nil {
		return envelope.Error("client_id: " + err.Error()), nil
	}
	limit := 20
	if n, err := toolargs.OptionalInt(args, "limit"); err == nil && n != nil {
		limit = int(*n)
	}

	logs, err := d.MedicalLogs.ListByClient(ctx, clientID, d.Scope, limit)
	if err != nil {
		d.Log.DatabaseError("list medical logs", err)
		return envelope.Error("failed to list medical logs"), nil
	}
	return envelope.Success(logs, "", nil), nil
}

func (d *Deps) getMedicalLog(ctx context.Context, args toolargs.Args) (string, error) {
	id, err := toolargs.Int(args["log_id"])
	if err != nil {
		return envelope.Error("log_id: " + err.Error()), nil
	}
	l, err := d.MedicalLogs.GetByID(ctx, id, d.Scope)
	if err != nil {
		return envelope.Error(fmt.Sprintf("medical log %d not found", id)), nil
	}
	return envelope.Success(l, "", nil), nil
}

func (d *Deps) createMedicalLogs(ctx context.Context, args toolargs.Args) (string, error) {
	records, err := toolargs.Records(args, "logs")
	if err != nil {
		return envelope.Error(err.Error()), nil
	}

	result := envelope.NewBulkResult()
	for i, record := range records {
		recArgs := toolargs.Args(record)

		clientID, recErr := toolargs.Int(recArgs["client_id"])
		if recErr != nil {
			result.AddFailure(i, "client_id: "+recErr.Error(), record)
			continue
		}
		client, recErr := d.Clients.GetByID(ctx, clientID, d.Scope)
		if recErr != nil {
			result.AddFailure(i, clientNotFound(clientID), record)
			continue
		}

		content, recErr := toolargs.String(recArgs, "log")
		if recErr != nil {
			// Some callers say "content" instead of "log".
			content, recErr = toolargs.String(recArgs, "content")
			if recErr != nil {
				result.AddFailure(i, "log content is required", record)
				continue
			}
		}

		logDate := time.Now()
		if dt, recErr := toolargs.OptionalDate(recArgs, "log_date"); recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		} else if dt != nil {
			logDate = *dt
		}

		userID := d.Caller.UserID
		id, recErr := d.MedicalLogs.Create(ctx, &logrepo.MedicalLog{
			ClientID: clientID,
			ClinicID: client.ClinicID,
			UserID:   &userID,
			LogDate:  logDate,
			Log:      content,
		})
		if recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		}
		if bumpErr := d.bumpAndInvalidate(ctx, clientID, "medical"); bumpErr != nil {
			d.Log.DatabaseError("bump client after medical log create", bumpErr)
		}
		result.AddSuccess(i, id, map[string]any{"log_date": formatDate(logDate)})
	}
	return result.Envelope("created"), nil
}

func (d *Deps) updateMedicalLogs(ctx context.Context, args toolargs.Args) (string, error) {
	records, err := toolargs.Records(args, "logs")
	if err != nil {
		return envelope.Error(err.Error()), nil
	}

	result := envelope.NewBulkResult()
	for i, record := range records {
		recArgs := toolargs.Args(record)
		id, recErr := toolargs.Int(recArgs["log_id"])
		if recErr != nil {
			result.AddFailure(i, "log_id: "+recErr.Error(), record)
			continue
		}

		existing, recErr := d.MedicalLogs.GetByID(ctx, id, d.Scope)
		if recErr != nil {
			result.AddFailure(i, fmt.Sprintf("medical log %d not found", id), record)
			continue
		}

		content, recErr := toolargs.String(recArgs, "log")
		if recErr != nil {
			content, recErr = toolargs.String(recArgs, "content")
			if recErr != nil {
				result.AddFailure(i, "log content is required", record)
				continue
			}
		}

		if recErr := d.MedicalLogs.Update(ctx, id, d.Scope, content); recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		}
		if bumpErr := d.bumpAndInvalidate(ctx, existing.ClientID, "medical"); bumpErr != nil {
			d.Log.DatabaseError("bump client after medical log update", bumpErr)
		}
		result.AddSuccess(i, id, nil)
	}
	return result.Envelope("updated"), nil
}
