package tools

import (
	"context"
	"fmt"
	"time"

	"opticai_backend/internal/assistant/envelope"
	"opticai_backend/internal/assistant/toolargs"
	clientrepo "opticai_backend/internal/clients/repository"
	"opticai_backend/internal/tenancy"
	"opticai_backend/platform/validator"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
)

var validate = validator.New()

var clientSpec = toolargs.Spec{
	Verbs: []string{"search", "get", "get_summary", "list_recent", "create", "update"},
	ShorthandParam: map[string]string{
		"search":      "search",
		"get":         "client_id",
		"get_summary": "client_id",
		"list_recent": "limit",
	},
}

func newClientTool(deps *Deps) (tool.Tool, error) {
	return functiontool.New(functiontool.Config{
		Name: "ClientTool",
		Description: "Manage clinic clients (patients). Actions: search (fuzzy name/phone/id lookup), " +
			"get (by client_id), get_summary (client with exam/order/appointment counts), " +
			"list_recent (latest updated clients, limit<=20), create, update. " +
			"create/update accept a single record or a list under 'clients'.",
	}, func(_ tool.Context, input map[string]any) (string, error) {
		ctx := context.Background()
		action, args, err := toolargs.Parse(input, clientSpec)
		if err != nil {
			return envelope.Error(err.Error()), nil
		}
		deps.Log.ToolCall("ClientTool", action, deps.Caller.UserID)

		switch action {
		case "search":
			return deps.searchClients(ctx, args)
		case "get":
			return deps.getClient(ctx, args)
		case "get_summary":
			return deps.getClientSummary(ctx, args)
		case "list_recent":
			return deps.listRecentClients(ctx, args)
		case "create":
			return deps.createClients(ctx, args)
		case "update":
			return deps.updateClients(ctx, args)
		default:
			return envelope.Error(clientSpec.UnknownVerbError(action)), nil
		}
	})
}

func (d *Deps) searchClients(ctx context.Context, args toolargs.Args) (string, error) {
	query, err := toolargs.String(args, "search")
	if err != nil {
		query = "" // the resolver reports the empty-query message itself
	}

	result, err := d.Resolver.Resolve(ctx, query, d.Scope)
	if err != nil {
		d.Log.DatabaseError("client search", err)
		return envelope.Error("client search failed"), nil
	}

	if len(result.Exact) > 0 {
		return envelope.Success(result.Exact, result.Message, nil), nil
	}
	if len(result.Suggestions) > 0 {
		return envelope.Success(map[string]any{
			"suggestions":  result.Suggestions,
			"did_you_mean": result.DidYouMean,
		}, result.Message, nil), nil
	}
	return envelope.Error(result.Message), nil
}

func (d *Deps) getClient(ctx context.Context, args toolargs.Args) (string, error) {
	id, err := toolargs.Int(args["client_id"])
	if err != nil {
		return envelope.Error("client_id: " + err.Error()), nil
	}
	client, err := d.Clients.GetByID(ctx, id, d.Scope)
	if err != nil {
		return envelope.Error(clientNotFound(id)), nil
	}
	return envelope.Success(client, "", nil), nil
}

func (d *Deps) getClientSummary(ctx context.Context, args toolargs.Args) (string, error) {
	id, err := toolargs.Int(args["client_id"])
	if err != nil {
		return envelope.Error("client_id: " + err.Error()), nil
	}
	summary, err := d.Clients.GetSummary(ctx, id, d.Scope)
	if err != nil {
		return envelope.Error(clientNotFound(id)), nil
	}
	return envelope.Success(summary, "", nil), nil
}

func (d *Deps) listRecentClients(ctx context.Context, args toolargs.Args) (string, error) {
	limit := 20
	if n, err := toolargs.OptionalInt(args, "limit"); err == nil && n != nil {
		limit = int(*n)
	}
	clients, err := d.Clients.ListRecent(ctx, d.Scope, limit)
	if err != nil {
		d.Log.DatabaseError("list recent clients", err)
		return envelope.Error("failed to list clients"), nil
	}
	return envelope.Success(clients, "", nil), nil
}

func (d *Deps) createClients(ctx context.Context, args toolargs.Args) (string, error) {
	records, err := toolargs.Records(args, "clients")
	if err != nil {
		return envelope.Error(err.Error()), nil
	}

	clinicID, err := tenancy.RequireWrite(d.Scope)
	if err != nil {
		return envelope.Error(err.Error()), nil
	}

	result := envelope.NewBulkResult()
	for i, record := range records {
		client, recErr := clientFromRecord(record, clinicID)
		if recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		}
		id, recErr := d.Clients.Create(ctx, client)
		if recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		}
		result.AddSuccess(i, id, map[string]any{"name": client.FullName()})
	}
	return result.Envelope("created"), nil
}

func clientFromRecord(record map[string]any, clinicID int64) (*clientrepo.Client, error) {
	args := toolargs.Args(record)

	first, err := toolargs.String(args, "first_name")
	if err != nil {
		return nil, err
	}
	last := ""
	if s := toolargs.OptionalString(args, "last_name"); s != nil {
		last = *s
	}

	var dob *time.Time
	if d, err := toolargs.OptionalDate(args, "date_of_birth"); err != nil {
		return nil, err
	} else {
		dob = d
	}

	email := toolargs.OptionalString(args, "email")
	if email != nil {
		if err := validate.Var(*email, "email"); err != nil {
			return nil, fmt.Errorf("email %q is not a valid address", *email)
		}
	}

	return &clientrepo.Client{
		ClinicID:    clinicID,
		FirstName:   first,
		LastName:    last,
		NationalID:  toolargs.OptionalString(args, "national_id"),
		Gender:      toolargs.OptionalString(args, "gender"),
		DateOfBirth: dob,
		PhoneMobile: toolargs.OptionalString(args, "phone_mobile"),
		PhoneHome:   toolargs.OptionalString(args, "phone_home"),
		Email:       email,
		Address:     toolargs.OptionalString(args, "address"),
		City:        toolargs.OptionalString(args, "city"),
		Notes:       toolargs.OptionalString(args, "notes"),
	}, nil
}

// updatableClientFields is the whitelist of columns the update verb may
// touch; anything else in the record is ignored.
var updatableClientFields = []string{
	"first_name", "last_name", "national_id", "gender",
	"phone_mobile", "phone_home", "email", "address", "city", "notes",
}

func (d *Deps) updateClients(ctx context.Context, args toolargs.Args) (string, error) {
	records, err := toolargs.Records(args, "clients")
	if err != nil {
		return envelope.Error(err.Error()), nil
	}

	result := envelope.NewBulkResult()
	for i, record := range records {
		recArgs := toolargs.Args(record)
		id, recErr := toolargs.Int(recArgs["client_id"])
		if recErr != nil {
			result.AddFailure(i, "client_id: "+recErr.Error(), record)
			continue
		}

		fields := map[string]any{}
		for _, f := range updatableClientFields {
			if v, ok := record[f]; ok {
				fields[f] = v
			}
		}
		if dob, recErr := toolargs.OptionalDate(recArgs, "date_of_birth"); recErr != nil {
			result.AddFailure(i, recErr.Error(), record)
			continue
		} else if dob != nil {
			fields["date_of_birth"] = *dob
		}
		if len(fields) == 0 {
			result.AddFailure(i, "no updatable fields provided", record)
			continue
		}
		if v, ok := fields["email"].(string); ok && v != "" {
			if recErr := validate.Var(v, "email"); recErr != nil {
				result.AddFailure(i, fmt.Sprintf("email %q is not a valid address", v), record)
				continue
			}
		}

		if recErr := d.Clients.Update(ctx, id, d.Scope, fields); recErr != nil {
			result.AddFailure(i, clientNotFound(id), record)
			continue
		}
		result.AddSuccess(i, id, nil)
	}
	return result.Envelope("updated"), nil
}
