// Package repository provides database operations for clients and families.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"opticai_backend/internal/tenancy"
	"opticai_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository needs. Satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Client represents the client database model.
type Client struct {
	ID                int64      `db:"id" json:"id"`
	ClinicID          int64      `db:"clinic_id" json:"clinic_id"`
	FamilyID          *int64     `db:"family_id" json:"family_id"`
	AccountCode       *string    `db:"account_code" json:"account_code"`
	FirstName         string     `db:"first_name" json:"first_name"`
	LastName          string     `db:"last_name" json:"last_name"`
	NationalID        *string    `db:"national_id" json:"national_id"`
	Gender            *string    `db:"gender" json:"gender"`
	DateOfBirth       *time.Time `db:"date_of_birth" json:"date_of_birth"`
	PhoneMobile       *string    `db:"phone_mobile" json:"phone_mobile"`
	PhoneHome         *string    `db:"phone_home" json:"phone_home"`
	Email             *string    `db:"email" json:"email"`
	Address           *string    `db:"address" json:"address"`
	City              *string    `db:"city" json:"city"`
	Notes             *string    `db:"notes" json:"notes"`
	ClientUpdatedDate time.Time  `db:"client_updated_date" json:"client_updated_date"`
	AIUpdatedDate     *time.Time `db:"ai_updated_date" json:"ai_updated_date"`
}

// FullName returns "First Last" with surrounding whitespace trimmed.
func (c Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Family groups clients within one clinic.
type Family struct {
	ID       int64  `db:"id"`
	ClinicID int64  `db:"clinic_id"`
	Name     string `db:"name"`
}

// AIStateField maps a workflow domain to its ai_*_state column. Whitelisted
// here so domain names are never interpolated into SQL from input.
var AIStateField = map[string]string{
	"exam":         "ai_exam_state",
	"order":        "ai_order_state",
	"referral":     "ai_referral_state",
	"contact_lens": "ai_contact_lens_state",
	"appointment":  "ai_appointment_state",
	"file":         "ai_file_state",
	"medical":      "ai_medical_state",
}

// clinicFilter scopes a clinic_id column to (company, optional clinic) by
// joining through clinics. Placeholders are the first two query args.
const clinicFilter = `clinic_id IN (SELECT cl.id FROM clinics cl WHERE cl.company_id = $1 AND ($2::bigint IS NULL OR cl.id = $2))`

const clientColumns = `id, clinic_id, family_id, account_code, first_name, last_name, national_id,
	gender, date_of_birth, phone_mobile, phone_home, email, address, city, notes,
	client_updated_date, ai_updated_date`

const clientNotFoundMsg = "client not found"

// Repository provides database operations for clients.
type Repository struct {
	db DB
}

// New creates a new clients repository.
func New(db DB) *Repository {
	return &Repository{db: db}
}

// ClinicCompanyID implements tenancy.ClinicLookup.
func (r *Repository) ClinicCompanyID(ctx context.Context, clinicID int64) (int64, bool) {
	var companyID int64
	err := r.db.QueryRow(ctx, `SELECT company_id FROM clinics WHERE id = $1`, clinicID).Scan(&companyID)
	if err != nil {
		return 0, false
	}
	return companyID, true
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(
		&c.ID, &c.ClinicID, &c.FamilyID, &c.AccountCode, &c.FirstName, &c.LastName,
		&c.NationalID, &c.Gender, &c.DateOfBirth, &c.PhoneMobile, &c.PhoneHome,
		&c.Email, &c.Address, &c.City, &c.Notes, &c.ClientUpdatedDate, &c.AIUpdatedDate,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID retrieves a client within scope.
func (r *Repository) GetByID(ctx context.Context, id int64, scope tenancy.Scope) (*Client, error) {
	company, clinic := scope.SQLArgs()
	query := `SELECT ` + clientColumns + ` FROM clients WHERE ` + clinicFilter + ` AND id = $3`

	client, err := scanClient(r.db.QueryRow(ctx, query, company, clinic, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(clientNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// ListByScope returns every client visible in scope. Used by the fuzzy
// resolver, which matches in memory.
func (r *Repository) ListByScope(ctx context.Context, scope tenancy.Scope) ([]Client, error) {
	company, clinic := scope.SQLArgs()
	query := `SELECT ` + clientColumns + ` FROM clients WHERE ` + clinicFilter + ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, company, clinic)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	return collectClients(rows)
}

// ListRecent returns the most recently updated clients in scope.
func (r *Repository) ListRecent(ctx context.Context, scope tenancy.Scope, limit int) ([]Client, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	company, clinic := scope.SQLArgs()
	query := `SELECT ` + clientColumns + ` FROM clients WHERE ` + clinicFilter + `
		ORDER BY client_updated_date DESC, id DESC LIMIT $3`

	rows, err := r.db.Query(ctx, query, company, clinic, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent clients: %w", err)
	}
	defer rows.Close()

	return collectClients(rows)
}

func collectClients(rows pgx.Rows) ([]Client, error) {
	clients := make([]Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

// Create inserts a new client and returns its id.
func (r *Repository) Create(ctx context.Context, c *Client) (int64, error) {
	query := `
		INSERT INTO clients (
			clinic_id, family_id, account_code, first_name, last_name, national_id,
			gender, date_of_birth, phone_mobile, phone_home, email, address, city, notes,
			client_updated_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		c.ClinicID, c.FamilyID, c.AccountCode, c.FirstName, c.LastName, c.NationalID,
		c.Gender, c.DateOfBirth, c.PhoneMobile, c.PhoneHome, c.Email, c.Address, c.City, c.Notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create client: %w", err)
	}
	return id, nil
}

// Update applies the provided column values to a client in scope. Only keys
// present in the whitelist are applied.
func (r *Repository) Update(ctx context.Context, id int64, scope tenancy.Scope, fields map[string]any) error {
	allowed := map[string]bool{
		"first_name": true, "last_name": true, "national_id": true, "gender": true,
		"date_of_birth": true, "phone_mobile": true, "phone_home": true, "email": true,
		"address": true, "city": true, "notes": true, "family_id": true,
	}

	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+3)
	company, clinic := scope.SQLArgs()
	args = append(args, company, clinic, id)

	for key, value := range fields {
		if !allowed[key] {
			continue
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", key, len(args)))
	}
	if len(sets) == 0 {
		return apperr.Validation("no updatable fields provided")
	}
	sets = append(sets, "client_updated_date = now()")

	query := `UPDATE clients SET ` + strings.Join(sets, ", ") + ` WHERE ` + clinicFilter + ` AND id = $3`
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(clientNotFoundMsg)
	}
	return nil
}

// BumpUpdated advances client_updated_date and clears the domain's ai state,
// invalidating stale insights. Runs as its own statement so bulk verbs can
// commit it independently of the record write.
func (r *Repository) BumpUpdated(ctx context.Context, clientID int64, domain string) error {
	field, ok := AIStateField[domain]
	if !ok {
		return apperr.Validation("unknown insight domain: " + domain)
	}

	query := fmt.Sprintf(`UPDATE clients SET client_updated_date = now(), %s = NULL WHERE id = $1`, field)
	if _, err := r.db.Exec(ctx, query, clientID); err != nil {
		return fmt.Errorf("failed to bump client: %w", err)
	}
	return nil
}

// Summary aggregates a client's activity counters.
type Summary struct {
	Client           *Client    `json:"client"`
	ExamCount        int64      `json:"exam_count"`
	OrderCount       int64      `json:"order_count"`
	AppointmentCount int64      `json:"appointment_count"`
	LastExamDate     *time.Time `json:"last_exam_date"`
}

// GetSummary returns a client with counts of exams, orders and appointments
// plus the most recent exam date.
func (r *Repository) GetSummary(ctx context.Context, id int64, scope tenancy.Scope) (*Summary, error) {
	client, err := r.GetByID(ctx, id, scope)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Client: client}
	query := `
		SELECT
			(SELECT count(*) FROM optical_exams WHERE client_id = $1),
			(SELECT count(*) FROM orders WHERE client_id = $1) +
			(SELECT count(*) FROM contact_lens_orders WHERE client_id = $1),
			(SELECT count(*) FROM appointments WHERE client_id = $1),
			(SELECT max(exam_date) FROM optical_exams WHERE client_id = $1)`

	err = r.db.QueryRow(ctx, query, id).Scan(
		&summary.ExamCount, &summary.OrderCount, &summary.AppointmentCount, &summary.LastExamDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise client: %w", err)
	}
	return summary, nil
}

// CreateFamily inserts a family row.
func (r *Repository) CreateFamily(ctx context.Context, f *Family) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO families (clinic_id, name) VALUES ($1, $2) RETURNING id`,
		f.ClinicID, f.Name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create family: %w", err)
	}
	return id, nil
}
