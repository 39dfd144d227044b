// Package repository provides database operations for appointments.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opticai_backend/internal/tenancy"
	"opticai_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Appointment represents the appointment database model.
type Appointment struct {
	ID       int64     `db:"id" json:"id"`
	ClientID *int64    `db:"client_id" json:"client_id"`
	ClinicID int64     `db:"clinic_id" json:"clinic_id"`
	UserID   *int64    `db:"user_id" json:"user_id"`
	Date     time.Time `db:"date" json:"date"`
	Time     string    `db:"time" json:"time"`
	Duration int       `db:"duration" json:"duration"`
	ExamName *string   `db:"exam_name" json:"exam_name"`
	Note     *string   `db:"note" json:"note"`
}

const appointmentColumns = `id, client_id, clinic_id, user_id, date, time, duration, exam_name, note`

const clinicFilter = `clinic_id IN (SELECT cl.id FROM clinics cl WHERE cl.company_id = $1 AND ($2::bigint IS NULL OR cl.id = $2))`

const appointmentNotFoundMsg = "appointment not found"

// ListFilter narrows List results.
type ListFilter struct {
	ClientID *int64
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
}

// Repository provides database operations for appointments.
type Repository struct {
	db DB
}

// New creates a new appointments repository.
func New(db DB) *Repository {
	return &Repository{db: db}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ClientID, &a.ClinicID, &a.UserID, &a.Date, &a.Time, &a.Duration, &a.ExamName, &a.Note)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collect(rows pgx.Rows) ([]Appointment, error) {
	items := make([]Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	return items, rows.Err()
}

// Create inserts a new appointment and returns its id.
func (r *Repository) Create(ctx context.Context, a *Appointment) (int64, error) {
	query := `
		INSERT INTO appointments (client_id, clinic_id, user_id, date, time, duration, exam_name, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		a.ClientID, a.ClinicID, a.UserID, a.Date, a.Time, a.Duration, a.ExamName, a.Note,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create appointment: %w", err)
	}
	return id, nil
}

// GetByID retrieves an appointment within scope.
func (r *Repository) GetByID(ctx context.Context, id int64, scope tenancy.Scope) (*Appointment, error) {
	company, clinic := scope.SQLArgs()
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` + clinicFilter + ` AND id = $3`

	a, err := scanAppointment(r.db.QueryRow(ctx, query, company, clinic, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(appointmentNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return a, nil
}

// List returns appointments in scope ordered by date desc, newest first.
func (r *Repository) List(ctx context.Context, scope tenancy.Scope, filter ListFilter) ([]Appointment, error) {
	if filter.Limit <= 0 || filter.Limit > 20 {
		filter.Limit = 20
	}
	company, clinic := scope.SQLArgs()
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` + clinicFilter + `
		AND ($3::bigint IS NULL OR client_id = $3)
		AND ($4::date IS NULL OR date >= $4)
		AND ($5::date IS NULL OR date <= $5)
		ORDER BY date DESC, time DESC LIMIT $6`

	rows, err := r.db.Query(ctx, query, company, clinic, filter.ClientID, filter.FromDate, filter.ToDate, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

// ListByClients returns appointments for the given client ids in scope.
func (r *Repository) ListByClients(ctx context.Context, scope tenancy.Scope, clientIDs []int64) ([]Appointment, error) {
	company, clinic := scope.SQLArgs()
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` + clinicFilter + `
		AND client_id = ANY($3) ORDER BY date DESC, time DESC`

	rows, err := r.db.Query(ctx, query, company, clinic, clientIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments by clients: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

// Update applies date/time/duration/exam_name/note changes to an appointment.
func (r *Repository) Update(ctx context.Context, a *Appointment, scope tenancy.Scope) error {
	company, clinic := scope.SQLArgs()
	query := `UPDATE appointments SET date = $4, time = $5, duration = $6, exam_name = $7, note = $8
		WHERE ` + clinicFilter + ` AND id = $3`

	tag, err := r.db.Exec(ctx, query, company, clinic, a.ID, a.Date, a.Time, a.Duration, a.ExamName, a.Note)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(appointmentNotFoundMsg)
	}
	return nil
}

// CheckConflicts returns all appointments sharing (date, time) in scope,
// optionally narrowed to one user. An empty result means no conflicts.
func (r *Repository) CheckConflicts(ctx context.Context, scope tenancy.Scope, date time.Time, timeStr string, userID *int64) ([]Appointment, error) {
	company, clinic := scope.SQLArgs()
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` + clinicFilter + `
		AND date = $3 AND time = $4
		AND ($5::bigint IS NULL OR user_id = $5)
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, company, clinic, date, timeStr, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check conflicts: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}
