package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"opticai_backend/internal/assistant/envelope"
	"opticai_backend/internal/assistant/toolargs"
	examrepo "opticai_backend/internal/exams/repository"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
)

var examSpec = toolargs.Spec{
	Verbs: []string{"list", "search", "get", "get_latest", "create", "update"},
	ShorthandParam: map[string]string{
		"search":     "search",
		"get":        "exam_id",
		"get_latest": "client_id",
		"list":       "client_id",
	},
}

func newExamTool(deps *Deps) (tool.Tool, error) {
	return functiontool.New(functiontool.Config{
		Name: "ExamTool",
		Description: "Manage optical exams. Actions: list (by client_id), search (by client name via " +
			"fuzzy lookup), get (by exam_id, includes exam_data), get_latest (most recent exam for a " +
			"client), create, update. exam_data maps component names (objective, subjective, " +
			"keratometer, ...) to field dicts. create/update accept a single record or a list under 'exams'.",
	}, func(_ tool.Context, input map[string]any) (string, error) {
		ctx := context.Background()
		action, args, err := toolargs.Parse(input, examSpec)
		if err != nil {
			return envelope.Error(err.Error()), nil
		}
		deps.Log.ToolCall("ExamTool", action, deps.Caller.UserID)

		switch action {
		case "list":
			return deps.listExams(ctx, args)
		case "search":
			return deps.searchExams(ctx, args)
		case "get":
			return deps.getExam(ctx, args)
		case "get_latest":
			return deps.getLatestExam(ctx, args)
		case "create":
			return deps.createExams(ctx, args)
		case "update":
			return deps.updateExams(ctx, args)
		default:
			return envelope.Error(examSpec.UnknownVerbError(action)), nil
		}
	})
}

func (d *Deps) listExams(ctx context.Context, args toolargs.Args) (string, error) {
	clientID, err := toolargs.Int(args["client_id"])
	if err != nil {
		return envelope.Error("client_id: " + err.Error()), nil
	}
	limit := 20
	if n, err := toolargs.OptionalInt(args, "limit"); err == nil && n != nil {
		limit = int(*n)
	}

	exams, err := d.Exams.ListByClient(ctx, clientID, d.Scope, limit)
	if err != nil {
		d.Log.DatabaseError("list exams", err)
		return envelope.Error("failed to list exams"), nil
	}
	return envelope.Success(exams, "", nil), nil
}

func (d *Deps) searchExams(ctx context.Context, args toolargs.Args) (string, error) {
	query, err := toolargs.String(args, "search")
	if err != nil {
		return envelope.Error(err.Error()), nil
	}

	ids, noMatch, err := d.resolveClientIDs(ctx, query)
	if err != nil {
		d.Log.DatabaseError("exam search", err)
		return envelope.Error("exam search failed"), nil
	}
	if noMatch != nil {
		return envelope.Error(*noMatch), nil
	}

	var all []examrepo.OpticalExam
	for _, clientID := range ids {
		exams, err := d.Exams.ListByClient(ctx, clientID, d.Scope, 20)
		if err != nil {
			d.Log.DatabaseError("exam search", err)
			return envelope.Error("exam search failed"), nil
		}
		all = append(all, exams...)
	}
	return envelope.Success(all, "", nil), nil
}

func (d *Deps) getExam(ctx context.Context, args toolargs.Args) (string, error) {
	id, err := toolargs.Int(args["exam_id"])
	if err != nil {
		return envelope.Error("exam_id: " + err.Error()), nil
	}
	exam, err := d.Exams.GetByID(ctx, id, d.Scope)
	if err != nil {
		return envelope.Error(fmt.Sprintf("exam %d not found", id)), nil
	}
	return envelope.Success(exam, "", nil), nil
}

func (d *Deps) getLatestExam(ctx context.Context, args toolargs.Args) (string, error) {
	clientID, err := toolargs.Int(args["client_id"])
	if err != nil {
		return envelope.Error("client_id: " + err.Error()), nil
	}
	exam, err := d.Exams.GetLatest(ctx, clientID, d.Scope)
	if err != nil {
		return envelope.Error(fmt.Sprintf("no exams found for client %d", clientID)), nil
	}
	return envelope.Success(exam, "", nil), nil
}

func examDataFromRecord(record map[string]any) (json.RawMessage, error) {
	raw, ok := record["exam_data"]
	if !ok || raw == nil {
		return nil, nil
	}
	switch t := raw.(type) {
	case string:
		if !json.Valid([]byte(t)) {
			return nil, fmt.Errorf("exam_data is not valid JSON")
		}
		return json.RawMessage(t), nil
	case map[string]any:
		out, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("exam_data: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("exam_data must be an object")
	}
}

func (d *Deps) createExams(ctx context.Context, args toolargs.Args) (string, error) {
	records, err := toolargs.Records(args, "exams")
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

		examDate := time.Now()
		if dt, recErr := toolargs.OptionalDate(recArgs, "exam_date"); recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		} else if dt != nil {
			examDate = *dt
		}

		data, recErr := examDataFromRecord(record)
		if recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		}

		examType := toolargs.OptionalString(recArgs, "exam_type")
		if examType == nil {
			examType = toolargs.OptionalString(recArgs, "type")
		}

		userID := d.Caller.UserID
		exam := &examrepo.OpticalExam{
			ClientID: clientID,
			ClinicID: client.ClinicID,
			UserID:   &userID,
			ExamDate: examDate,
			TestName: toolargs.OptionalString(recArgs, "test_name"),
			ExamType: examType,
			Dominant: toolargs.OptionalString(recArgs, "dominant_eye"),
		}

		id, recErr := d.Exams.CreateWithData(ctx, exam, data)
		if recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		}
		if bumpErr := d.bumpAndInvalidate(ctx, clientID, "exam"); bumpErr != nil {
			d.Log.DatabaseError("bump client after exam create", bumpErr)
		}
		result.AddSuccess(i, id, map[string]any{"exam_date": formatDate(examDate)})
	}
	return result.Envelope("created"), nil
}

func (d *Deps) updateExams(ctx context.Context, args toolargs.Args) (string, error) {
	records, err := toolargs.Records(args, "exams")
	if err != nil {
		return envelope.Error(err.Error()), nil
	}

	result := envelope.NewBulkResult()
	for i, record := range records {
		recArgs := toolargs.Args(record)
		id, recErr := toolargs.Int(recArgs["exam_id"])
		if recErr != nil {
			result.AddFailure(i, "exam_id: "+recErr.Error(), record)
			continue
		}

		existing, recErr := d.Exams.GetByID(ctx, id, d.Scope)
		if recErr != nil {
			result.AddFailure(i, fmt.Sprintf("exam %d not found", id), record)
			continue
		}

		data, recErr := examDataFromRecord(record)
		if recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		}
		if data == nil {
			result.AddFailure(i, "exam_data is required for update", record)
			continue
		}

		if recErr := d.Exams.UpdateData(ctx, id, d.Scope, data); recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		}
		if bumpErr := d.bumpAndInvalidate(ctx, existing.Exam.ClientID, "exam"); bumpErr != nil {
			d.Log.DatabaseError("bump client after exam update", bumpErr)
		}
		result.AddSuccess(i, id, nil)
	}
	return result.Envelope("updated"), nil
}
