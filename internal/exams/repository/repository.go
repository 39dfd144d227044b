// Package repository provides database operations for optical exams and
// their layout instances.
package repository

import (
	"context"
	"encoding/json"
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
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OpticalExam represents the optical exam database model.
type OpticalExam struct {
	ID       int64     `db:"id" json:"id"`
	ClientID int64     `db:"client_id" json:"client_id"`
	ClinicID int64     `db:"clinic_id" json:"clinic_id"`
	UserID   *int64    `db:"user_id" json:"user_id"`
	ExamDate time.Time `db:"exam_date" json:"exam_date"`
	TestName *string   `db:"test_name" json:"test_name"`
	ExamType *string   `db:"type" json:"type"`
	Dominant *string   `db:"dominant_eye" json:"dominant_eye"`
}

// LayoutInstance holds one exam's component data snapshot. ExamData maps
// component type to its field map, serialized as JSONB.
type LayoutInstance struct {
	ID       int64           `db:"id" json:"id"`
	ExamID   int64           `db:"exam_id" json:"exam_id"`
	LayoutID *int64          `db:"layout_id" json:"layout_id"`
	IsActive bool            `db:"is_active" json:"is_active"`
	ExamData json.RawMessage `db:"exam_data" json:"exam_data"`
}

// ExamWithData pairs an exam with its active layout instance, if any.
type ExamWithData struct {
	Exam     OpticalExam     `json:"exam"`
	ExamData json.RawMessage `json:"exam_data,omitempty"`
}

const examColumns = `id, client_id, clinic_id, user_id, exam_date, test_name, type, dominant_eye`

const clinicFilter = `clinic_id IN (SELECT cl.id FROM clinics cl WHERE cl.company_id = $1 AND ($2::bigint IS NULL OR cl.id = $2))`

// Repository provides database operations for optical exams.
type Repository struct {
	db DB
}

// New creates a new exams repository.
func New(db DB) *Repository {
	return &Repository{db: db}
}

func scanExam(row pgx.Row) (*OpticalExam, error) {
	var e OpticalExam
	err := row.Scan(&e.ID, &e.ClientID, &e.ClinicID, &e.UserID, &e.ExamDate, &e.TestName, &e.ExamType, &e.Dominant)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateWithData inserts an exam together with its layout instance in one
// transaction. data may be nil for an exam created without component values.
func (r *Repository) CreateWithData(ctx context.Context, e *OpticalExam, data json.RawMessage) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin exam transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO optical_exams (client_id, clinic_id, user_id, exam_date, test_name, type, dominant_eye)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.ClientID, e.ClinicID, e.UserID, e.ExamDate, e.TestName, e.ExamType, e.Dominant,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create exam: %w", err)
	}

	if data != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO exam_layout_instances (exam_id, is_active, exam_data)
			VALUES ($1, true, $2)`,
			id, data)
		if err != nil {
			return 0, fmt.Errorf("failed to create exam layout instance: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit exam transaction: %w", err)
	}
	return id, nil
}

// GetByID retrieves an exam with its active layout data, scoped to the caller.
func (r *Repository) GetByID(ctx context.Context, id int64, scope tenancy.Scope) (*ExamWithData, error) {
	company, clinic := scope.SQLArgs()
	query := `
		SELECT e.id, e.client_id, e.clinic_id, e.user_id, e.exam_date, e.test_name, e.type, e.dominant_eye, i.exam_data
		FROM optical_exams e
		LEFT JOIN exam_layout_instances i ON i.exam_id = e.id AND i.is_active
		WHERE e.` + clinicFilter + ` AND e.id = $3`

	var out ExamWithData
	err := r.db.QueryRow(ctx, query, company, clinic, id).Scan(
		&out.Exam.ID, &out.Exam.ClientID, &out.Exam.ClinicID, &out.Exam.UserID,
		&out.Exam.ExamDate, &out.Exam.TestName, &out.Exam.ExamType, &out.Exam.Dominant, &out.ExamData,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("exam not found")
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return &out, nil
}

// GetLatest returns the most recent exam for a client, with its data.
func (r *Repository) GetLatest(ctx context.Context, clientID int64, scope tenancy.Scope) (*ExamWithData, error) {
	company, clinic := scope.SQLArgs()
	query := `
		SELECT e.id, e.client_id, e.clinic_id, e.user_id, e.exam_date, e.test_name, e.type, e.dominant_eye, i.exam_data
		FROM optical_exams e
		LEFT JOIN exam_layout_instances i ON i.exam_id = e.id AND i.is_active
		WHERE e.` + clinicFilter + ` AND e.client_id = $3
		ORDER BY e.exam_date DESC, e.id DESC
		LIMIT 1`

	var out ExamWithData
	err := r.db.QueryRow(ctx, query, company, clinic, clientID).Scan(
		&out.Exam.ID, &out.Exam.ClientID, &out.Exam.ClinicID, &out.Exam.UserID,
		&out.Exam.ExamDate, &out.Exam.TestName, &out.Exam.ExamType, &out.Exam.Dominant, &out.ExamData,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("no exams for client")
		}
		return nil, fmt.Errorf("failed to get latest exam: %w", err)
	}
	return &out, nil
}

// ListByClient returns exams for one client in scope, newest first.
func (r *Repository) ListByClient(ctx context.Context, clientID int64, scope tenancy.Scope, limit int) ([]OpticalExam, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	company, clinic := scope.SQLArgs()
	query := `SELECT ` + examColumns + ` FROM optical_exams WHERE ` + clinicFilter + `
		AND client_id = $3 ORDER BY exam_date DESC, id DESC LIMIT $4`

	rows, err := r.db.Query(ctx, query, company, clinic, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}
	defer rows.Close()

	items := make([]OpticalExam, 0)
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *e)
	}
	return items, rows.Err()
}

// UpdateData replaces the active layout instance data for an exam. The
// previous instance is deactivated so history is preserved.
func (r *Repository) UpdateData(ctx context.Context, examID int64, scope tenancy.Scope, data json.RawMessage) error {
	company, clinic := scope.SQLArgs()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin exam update: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM optical_exams WHERE `+clinicFilter+` AND id = $3`,
		company, clinic, examID,
	).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("exam not found")
		}
		return fmt.Errorf("failed to check exam: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE exam_layout_instances SET is_active = false WHERE exam_id = $1 AND is_active`,
		examID); err != nil {
		return fmt.Errorf("failed to deactivate exam data: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO exam_layout_instances (exam_id, is_active, exam_data) VALUES ($1, true, $2)`,
		examID, data); err != nil {
		return fmt.Errorf("failed to insert exam data: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit exam update: %w", err)
	}
	return nil
}
