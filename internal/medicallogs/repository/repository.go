// Package repository provides database operations for medical logs.
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

// MedicalLog represents a free-text medical log entry for a client.
type MedicalLog struct {
	ID       int64     `db:"id" json:"id"`
	ClientID int64     `db:"client_id" json:"client_id"`
	ClinicID int64     `db:"clinic_id" json:"clinic_id"`
	UserID   *int64    `db:"user_id" json:"user_id"`
	LogDate  time.Time `db:"log_date" json:"log_date"`
	Log      string    `db:"log" json:"log"`
}

const logColumns = `id, client_id, clinic_id, user_id, log_date, log`

const clinicFilter = `clinic_id IN (SELECT cl.id FROM clinics cl WHERE cl.company_id = $1 AND ($2::bigint IS NULL OR cl.id = $2))`

// Repository provides database operations for medical logs.
type Repository struct {
	db DB
}

// New creates a new medical logs repository.
func New(db DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a log entry and returns its id.
func (r *Repository) Create(ctx context.Context, l *MedicalLog) (int64, error) {
	query := `
		INSERT INTO medical_logs (client_id, clinic_id, user_id, log_date, log)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query, l.ClientID, l.ClinicID, l.UserID, l.LogDate, l.Log).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create medical log: %w", err)
	}
	return id, nil
}

// GetByID retrieves one log entry within scope.
func (r *Repository) GetByID(ctx context.Context, id int64, scope tenancy.Scope) (*MedicalLog, error) {
	company, clinic := scope.SQLArgs()
	query := `SELECT ` + logColumns + ` FROM medical_logs WHERE ` + clinicFilter + ` AND id = $3`

	var l MedicalLog
	err := r.db.QueryRow(ctx, query, company, clinic, id).Scan(
		&l.ID, &l.ClientID, &l.ClinicID, &l.UserID, &l.LogDate, &l.Log)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("medical log not found")
		}
		return nil, fmt.Errorf("failed to get medical log: %w", err)
	}
	return &l, nil
}

// ListByClient returns log entries for one client in scope, newest first.
func (r *Repository) ListByClient(ctx context.Context, clientID int64, scope tenancy.Scope, limit int) ([]MedicalLog, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	company, clinic := scope.SQLArgs()
	query := `SELECT ` + logColumns + ` FROM medical_logs WHERE ` + clinicFilter + `
		AND client_id = $3 ORDER BY log_date DESC, id DESC LIMIT $4`

	rows, err := r.db.Query(ctx, query, company, clinic, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list medical logs: %w", err)
	}
	defer rows.Close()

	items := make([]MedicalLog, 0)
	for rows.Next() {
		var l MedicalLog
		if err := rows.Scan(&l.ID, &l.ClientID, &l.ClinicID, &l.UserID, &l.LogDate, &l.Log); err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

// Update replaces a log entry's text.
func (r *Repository) Update(ctx context.Context, id int64, scope tenancy.Scope, content string) error {
	company, clinic := scope.SQLArgs()
	query := `UPDATE medical_logs SET log = $4 WHERE ` + clinicFilter + ` AND id = $3`

	tag, err := r.db.Exec(ctx, query, company, clinic, id, content)
	if err != nil {
		return fmt.Errorf("failed to update medical log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medical log not found")
	}
	return nil
}
