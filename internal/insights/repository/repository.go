// Package repository loads the cross-domain data bundle the insight
// generator feeds to the LLM, and persists the generated sections back to
// the client record.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientrepo "opticai_backend/internal/clients/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Bundle is everything the LLM sees about one client.
type Bundle struct {
	Client        map[string]any   `json:"client"`
	Family        map[string]any   `json:"family,omitempty"`
	Exams         []map[string]any `json:"exams"`
	Appointments  []map[string]any `json:"appointments"`
	Orders        []map[string]any `json:"orders"`
	ContactLenses []map[string]any `json:"contact_lenses"`
	Referrals     []map[string]any `json:"referrals"`
	Files         []map[string]any `json:"files"`
	MedicalLogs   []map[string]any `json:"medical_logs"`
}

// Repository provides the insight generator's database operations.
type Repository struct {
	db DB
}

// New creates a new insights repository.
func New(db DB) *Repository {
	return &Repository{db: db}
}

// ownedTables maps bundle slots to the tables queried by client_id. Table
// names are fixed here, never taken from input.
var ownedTables = []struct {
	name  string
	table string
}{
	{"exams", "optical_exams"},
	{"appointments", "appointments"},
	{"orders", "orders"},
	{"contact_lenses", "contact_lens_orders"},
	{"referrals", "referrals"},
	{"files", "files"},
	{"medical_logs", "medical_logs"},
}

func (r *Repository) rowsAsMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]map[string]any, 0)
	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, len(fields))
		for i, fd := range fields {
			m[string(fd.Name)] = values[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LoadBundle aggregates the client and every owned domain table.
func (r *Repository) LoadBundle(ctx context.Context, client *clientrepo.Client) (*Bundle, error) {
	bundle := &Bundle{
		Client: map[string]any{
			"id":            client.ID,
			"first_name":    client.FirstName,
			"last_name":     client.LastName,
			"gender":        client.Gender,
			"date_of_birth": client.DateOfBirth,
			"phone_mobile":  client.PhoneMobile,
			"email":         client.Email,
			"city":          client.City,
			"notes":         client.Notes,
		},
	}

	for _, t := range ownedTables {
		items, err := r.rowsAsMaps(ctx, `SELECT * FROM `+t.table+` WHERE client_id = $1`, client.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", t.name, err)
		}
		switch t.name {
		case "exams":
			bundle.Exams = items
		case "appointments":
			bundle.Appointments = items
		case "orders":
			bundle.Orders = items
		case "contact_lenses":
			bundle.ContactLenses = items
		case "referrals":
			bundle.Referrals = items
		case "files":
			bundle.Files = items
		case "medical_logs":
			bundle.MedicalLogs = items
		}
	}

	if client.FamilyID != nil {
		families, err := r.rowsAsMaps(ctx, `SELECT * FROM families WHERE id = $1`, *client.FamilyID)
		if err != nil {
			return nil, fmt.Errorf("failed to load family: %w", err)
		}
		if len(families) > 0 {
			bundle.Family = families[0]
		}
	}
	return bundle, nil
}

// SetStates persists generated sections to their ai_*_state columns and
// advances ai_updated_date. states is keyed by domain (exam, order, ...).
func (r *Repository) SetStates(ctx context.Context, clientID int64, states map[string]string) error {
	set := make([]string, 0, len(states)+1)
	args := make([]any, 0, len(states)+1)

	for domain, content := range states {
		field, ok := clientrepo.AIStateField[domain]
		if !ok {
			return fmt.Errorf("unknown insight domain: %s", domain)
		}
		args = append(args, content)
		set = append(set, fmt.Sprintf("%s = $%d", field, len(args)))
	}
	set = append(set, "ai_updated_date = now()")
	args = append(args, clientID)

	query := fmt.Sprintf(`UPDATE clients SET %s WHERE id = $%d`, strings.Join(set, ", "), len(args))
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to persist insight states: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("client %d not found", clientID)
	}
	return nil
}

// NormalizeDates recursively coerces leftover time values to ISO strings so
// the bundle serialises cleanly.
func NormalizeDates(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339)
	case map[string]any:
		for k, inner := range t {
			t[k] = NormalizeDates(inner)
		}
		return t
	case []map[string]any:
		for _, m := range t {
			NormalizeDates(m)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = NormalizeDates(inner)
		}
		return t
	default:
		return v
	}
}
