package tools

import (
	"context"
	"errors"
	"fmt"

	apptrepo "opticai_backend/internal/appointments/repository"
	"opticai_backend/internal/assistant/envelope"
	"opticai_backend/internal/assistant/toolargs"
	clientrepo "opticai_backend/internal/clients/repository"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
)

var appointmentSpec = toolargs.Spec{
	Verbs: []string{"list", "search", "get", "create", "update", "check_conflicts"},
	ShorthandParam: map[string]string{
		"search": "search",
		"get":    "appointment_id",
		"list":   "limit",
	},
}

const defaultDurationMinutes = 30

func newAppointmentTool(deps *Deps) (tool.Tool, error) {
	return functiontool.New(functiontool.Config{
		Name: "AppointmentTool",
		Description: "Manage appointments. Actions: list (optional client_id/from_date/to_date/limit), " +
			"search (by client name via fuzzy lookup), get (by appointment_id), create, update, " +
			"check_conflicts (same date+time, optional user_id). " +
			"create/update accept a single record or a list under 'appointments'. " +
			"Dates are ISO-8601 or DD/MM/YYYY; time is 'HH:MM'.",
	}, func(_ tool.Context, input map[string]any) (string, error) {
		ctx := context.Background()
		action, args, err := toolargs.Parse(input, appointmentSpec)
		if err != nil {
			return envelope.Error(err.Error()), nil
		}
		deps.Log.ToolCall("AppointmentTool", action, deps.Caller.UserID)

		switch action {
		case "list":
			return deps.listAppointments(ctx, args)
		case "search":
			return deps.searchAppointments(ctx, args)
		case "get":
			return deps.getAppointment(ctx, args)
		case "create":
			return deps.createAppointments(ctx, args)
		case "update":
			return deps.updateAppointments(ctx, args)
		case "check_conflicts":
			return deps.checkConflicts(ctx, args)
		default:
			return envelope.Error(appointmentSpec.UnknownVerbError(action)), nil
		}
	})
}

func (d *Deps) listAppointments(ctx context.Context, args toolargs.Args) (string, error) {
	var filter apptrepo.ListFilter

	clientID, err := toolargs.OptionalInt(args, "client_id")
	if err != nil {
		return envelope.Error(err.Error()), nil
	}
	filter.ClientID = clientID

	if from, err := toolargs.OptionalDate(args, "from_date"); err != nil {
		return envelope.Error(err.Error()), nil
	} else {
		filter.FromDate = from
	}
	if to, err := toolargs.OptionalDate(args, "to_date"); err != nil {
		return envelope.Error(err.Error()), nil
	} else {
		filter.ToDate = to
	}
	if limit, err := toolargs.OptionalInt(args, "limit"); err == nil && limit != nil {
		filter.Limit = int(*limit)
	}

	items, err := d.Appointments.List(ctx, d.Scope, filter)
	if err != nil {
		d.Log.DatabaseError("list appointments", err)
		return envelope.Error("failed to list appointments"), nil
	}
	return envelope.Success(items, "", nil), nil
}

// resolveClientIDs turns a free-text client reference into candidate ids,
// preferring exact matches over fuzzy suggestions.
func (d *Deps) resolveClientIDs(ctx context.Context, query string) ([]int64, *string, error) {
	result, err := d.Resolver.Resolve(ctx, query, d.Scope)
	if err != nil {
		return nil, nil, err
	}
	if len(result.Exact) > 0 {
		ids := make([]int64, len(result.Exact))
		for i, c := range result.Exact {
			ids[i] = c.ID
		}
		return ids, nil, nil
	}
	if len(result.Suggestions) > 0 {
		ids := make([]int64, len(result.Suggestions))
		for i, s := range result.Suggestions {
			ids[i] = s.Client.ID
		}
		return ids, nil, nil
	}
	return nil, &result.Message, nil
}

func (d *Deps) searchAppointments(ctx context.Context, args toolargs.Args) (string, error) {
	query, err := toolargs.String(args, "search")
	if err != nil {
		return envelope.Error(err.Error()), nil
	}

	ids, noMatch, err := d.resolveClientIDs(ctx, query)
	if err != nil {
		d.Log.DatabaseError("appointment search", err)
		return envelope.Error("appointment search failed"), nil
	}
	if noMatch != nil {
		return envelope.Error(*noMatch), nil
	}

	items, err := d.Appointments.ListByClients(ctx, d.Scope, ids)
	if err != nil {
		d.Log.DatabaseError("appointment search", err)
		return envelope.Error("appointment search failed"), nil
	}
	return envelope.Success(items, "", nil), nil
}

func (d *Deps) getAppointment(ctx context.Context, args toolargs.Args) (string, error) {
	id, err := toolargs.Int(args["appointment_id"])
	if err != nil {
		return envelope.Error("appointment_id: " + err.Error()), nil
	}
	a, err := d.Appointments.GetByID(ctx, id, d.Scope)
	if err != nil {
		return envelope.Error(fmt.Sprintf("appointment %d not found", id)), nil
	}
	return envelope.Success(a, "", nil), nil
}

// appointmentClinic applies the creation tie-break: an explicit clinic_id
// must be inside scope; otherwise the caller's clinic; otherwise the
// client's. An appointment with no determinable clinic is rejected.
func (d *Deps) appointmentClinic(record toolargs.Args, client *clientrepo.Client) (int64, error) {
	explicit, err := toolargs.OptionalInt(record, "clinic_id")
	if err != nil {
		return 0, err
	}
	if explicit != nil {
		if d.Scope.ClinicID != nil && *d.Scope.ClinicID != *explicit {
			return 0, errors.New("clinic_id outside caller scope")
		}
		return *explicit, nil
	}
	if d.Scope.ClinicID != nil {
		return *d.Scope.ClinicID, nil
	}
	if client != nil {
		return client.ClinicID, nil
	}
	return 0, errors.New("clinic context required")
}

func (d *Deps) buildAppointment(ctx context.Context, record map[string]any) (*apptrepo.Appointment, error) {
	args := toolargs.Args(record)

	clientID, err := toolargs.Int(args["client_id"])
	if err != nil {
		return nil, fmt.Errorf("client_id: %w", err)
	}
	client, err := d.Clients.GetByID(ctx, clientID, d.Scope)
	if err != nil {
		return nil, errors.New(clientNotFound(clientID))
	}

	date, err := toolargs.Date(args["date"])
	if err != nil {
		return nil, err
	}
	timeStr, err := toolargs.String(args, "time")
	if err != nil {
		return nil, err
	}

	clinicID, err := d.appointmentClinic(args, client)
	if err != nil {
		return nil, err
	}

	duration := defaultDurationMinutes
	if n, err := toolargs.OptionalInt(args, "duration"); err == nil && n != nil {
		duration = int(*n)
	}

	userID := d.Caller.UserID
	if n, err := toolargs.OptionalInt(args, "user_id"); err == nil && n != nil {
		userID = *n
	}

	return &apptrepo.Appointment{
		ClientID: &clientID,
		ClinicID: clinicID,
		UserID:   &userID,
		Date:     date,
		Time:     timeStr,
		Duration: duration,
		ExamName: toolargs.OptionalString(args, "exam_name"),
		Note:     toolargs.OptionalString(args, "note"),
	}, nil
}

func (d *Deps) createAppointments(ctx context.Context, args toolargs.Args) (string, error) {
	records, err := toolargs.Records(args, "appointments")
	if err != nil {
		return envelope.Error(err.Error()), nil
	}

	result := envelope.NewBulkResult()
	for i, record := range records {
		a, recErr := d.buildAppointment(ctx, record)
		if recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		}
		id, recErr := d.Appointments.Create(ctx, a)
		if recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		}
		// Bump and invalidate in its own statement after the insert commits.
		if bumpErr := d.bumpAndInvalidate(ctx, *a.ClientID, "appointment"); bumpErr != nil {
			d.Log.DatabaseError("bump client after appointment create", bumpErr)
		}
		result.AddSuccess(i, id, map[string]any{
			"date": formatDate(a.Date),
			"time": a.Time,
		})
	}
	return result.Envelope("created"), nil
}

func (d *Deps) updateAppointments(ctx context.Context, args toolargs.Args) (string, error) {
	records, err := toolargs.Records(args, "appointments")
	if err != nil {
		return envelope.Error(err.Error()), nil
	}

	result := envelope.NewBulkResult()
	for i, record := range records {
		recArgs := toolargs.Args(record)
		id, recErr := toolargs.Int(recArgs["appointment_id"])
		if recErr != nil {
			result.AddFailure(i, "appointment_id: "+recErr.Error(), record)
			continue
		}

		existing, recErr := d.Appointments.GetByID(ctx, id, d.Scope)
		if recErr != nil {
			result.AddFailure(i, fmt.Sprintf("appointment %d not found", id), record)
			continue
		}

		if date, recErr := toolargs.OptionalDate(recArgs, "date"); recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		} else if date != nil {
			existing.Date = *date
		}
		if s := toolargs.OptionalString(recArgs, "time"); s != nil {
			existing.Time = *s
		}
		if n, recErr := toolargs.OptionalInt(recArgs, "duration"); recErr == nil && n != nil {
			existing.Duration = int(*n)
		}
		if s := toolargs.OptionalString(recArgs, "exam_name"); s != nil {
			existing.ExamName = s
		}
		if s := toolargs.OptionalString(recArgs, "note"); s != nil {
			existing.Note = s
		}

		if recErr := d.Appointments.Update(ctx, existing, d.Scope); recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		}
		if existing.ClientID != nil {
			if bumpErr := d.bumpAndInvalidate(ctx, *existing.ClientID, "appointment"); bumpErr != nil {
				d.Log.DatabaseError("bump client after appointment update", bumpErr)
			}
		}
		result.AddSuccess(i, id, map[string]any{
			"date": formatDate(existing.Date),
			"time": existing.Time,
		})
	}
	return result.Envelope("updated"), nil
}

func (d *Deps) checkConflicts(ctx context.Context, args toolargs.Args) (string, error) {
	date, err := toolargs.Date(args["date"])
	if err != nil {
		return envelope.Error(err.Error()), nil
	}
	timeStr, err := toolargs.String(args, "time")
	if err != nil {
		return envelope.Error(err.Error()), nil
	}
	userID, err := toolargs.OptionalInt(args, "user_id")
	if err != nil {
		return envelope.Error(err.Error()), nil
	}

	conflicts, err := d.Appointments.CheckConflicts(ctx, d.Scope, date, timeStr, userID)
	if err != nil {
		d.Log.DatabaseError("check conflicts", err)
		return envelope.Error("conflict check failed"), nil
	}

	message := fmt.Sprintf("%d conflicting appointments", len(conflicts))
	if len(conflicts) == 0 {
		message = "no conflicts"
	}
	return envelope.Success(conflicts, message, nil), nil
}
