package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	apptrepo "opticai_backend/internal/appointments/repository"
	clientrepo "opticai_backend/internal/clients/repository"
	"opticai_backend/internal/tenancy"
	"opticai_backend/platform/logger"

	"github.com/pashagolub/pgxmock/v4"
)

func clientRows(mock pgxmock.PgxPoolIface, id, clinicID int64) *pgxmock.Rows {
	now := time.Now()
	return mock.NewRows([]string{
		"id", "clinic_id", "family_id", "account_code", "first_name", "last_name",
		"national_id", "gender", "date_of_birth", "phone_mobile", "phone_home",
		"email", "address", "city", "notes", "client_updated_date", "ai_updated_date",
	}).AddRow(id, clinicID, nil, nil, "דנה", "כהן", nil, nil, nil, nil, nil, nil, nil, nil, nil, now, nil)
}

func newTestDeps(t *testing.T) (*Deps, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)

	clinicID := int64(3)
	return &Deps{
		Caller:       tenancy.Caller{UserID: 2, CompanyID: ptr(int64(1)), ClinicID: &clinicID, RoleLevel: 2},
		Scope:        tenancy.Scope{CompanyID: 1, ClinicID: &clinicID},
		Clients:      clientrepo.New(mock),
		Appointments: apptrepo.New(mock),
		Log:          logger.New("test"),
	}, mock
}

func ptr[T any](v T) *T { return &v }

// anyArgs returns n pgxmock.AnyArg matchers; pgxmock v4 requires the
// expected argument count to match even when values are not asserted.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

type bulkEnvelope struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Progress struct {
		Succeeded, Failed, Total int
	} `json:"progress"`
	Data struct {
		Succeeded []map[string]any `json:"succeeded"`
		Failed    []struct {
			Index int            `json:"index"`
			Error string         `json:"error"`
			Data  map[string]any `json:"data"`
		} `json:"failed"`
	} `json:"data"`
}

func decodeBulk(t *testing.T, raw string) bulkEnvelope {
	t.Helper()
	var e bulkEnvelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("decode envelope %q: %v", raw, err)
	}
	return e
}

func TestCreateAppointmentSingle(t *testing.T) {
	deps, mock := newTestDeps(t)

	mock.ExpectQuery(`SELECT (.+) FROM clients WHERE`).
		WithArgs(int64(1), ptr(int64(3)), int64(7)).
		WillReturnRows(clientRows(mock, 7, 3))
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(anyArgs(8)...).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(55)))
	mock.ExpectExec(`UPDATE clients SET client_updated_date = now\(\), ai_appointment_state = NULL`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	raw, err := deps.createAppointments(context.Background(), map[string]any{
		"client_id": float64(7),
		"date":      "25/12/2024",
		"time":      "10:00",
	})
	if err != nil {
		t.Fatal(err)
	}

	e := decodeBulk(t, raw)
	if e.Status != "success" || e.Progress.Succeeded != 1 || e.Progress.Failed != 0 {
		t.Fatalf("envelope = %+v", e)
	}
	if e.Message != "1 created successfully" {
		t.Fatalf("message = %q", e.Message)
	}
	if e.Data.Succeeded[0]["date"] != "2024-12-25" {
		t.Fatalf("succeeded date = %v", e.Data.Succeeded[0]["date"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateAppointmentBatchPartialFailure(t *testing.T) {
	deps, mock := newTestDeps(t)

	// First record: client exists in scope, insert succeeds.
	mock.ExpectQuery(`SELECT (.+) FROM clients WHERE`).
		WithArgs(int64(1), ptr(int64(3)), int64(7)).
		WillReturnRows(clientRows(mock, 7, 3))
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(anyArgs(8)...).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(60)))
	mock.ExpectExec(`UPDATE clients SET client_updated_date`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	// Second record: client 99 is outside scope (zero rows -> not found).
	mock.ExpectQuery(`SELECT (.+) FROM clients WHERE`).
		WithArgs(int64(1), ptr(int64(3)), int64(99)).
		WillReturnRows(mock.NewRows([]string{"id"}))

	raw, err := deps.createAppointments(context.Background(), map[string]any{
		"appointments": []any{
			map[string]any{"client_id": float64(7), "date": "2024-11-01", "time": "09:30"},
			map[string]any{"client_id": float64(99), "date": "2024-11-01", "time": "11:00"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	e := decodeBulk(t, raw)
	if e.Progress.Succeeded != 1 || e.Progress.Failed != 1 || e.Progress.Total != 2 {
		t.Fatalf("progress = %+v", e.Progress)
	}
	if e.Message != "1 created, 1 failed" {
		t.Fatalf("message = %q", e.Message)
	}
	failed := e.Data.Failed[0]
	if failed.Error != "מטופל 99 לא נמצא" {
		t.Fatalf("failed error = %q", failed.Error)
	}
	if failed.Data["client_id"].(float64) != 99 {
		t.Fatalf("failed data not preserved: %v", failed.Data)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCheckConflictsEmptyIsNoConflicts(t *testing.T) {
	deps, mock := newTestDeps(t)

	mock.ExpectQuery(`SELECT (.+) FROM appointments WHERE`).
		WithArgs(anyArgs(5)...).
		WillReturnRows(mock.NewRows([]string{
			"id", "client_id", "clinic_id", "user_id", "date", "time", "duration", "exam_name", "note",
		}))

	raw, err := deps.checkConflicts(context.Background(), map[string]any{
		"date": "2024-11-01",
		"time": "09:30",
	})
	if err != nil {
		t.Fatal(err)
	}

	var e struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatal(err)
	}
	if e.Status != "success" || e.Message != "no conflicts" {
		t.Fatalf("envelope = %+v", e)
	}
}

func TestCheckConflictsFindsExisting(t *testing.T) {
	deps, mock := newTestDeps(t)

	date := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT (.+) FROM appointments WHERE`).
		WithArgs(anyArgs(5)...).
		WillReturnRows(mock.NewRows([]string{
			"id", "client_id", "clinic_id", "user_id", "date", "time", "duration", "exam_name", "note",
		}).AddRow(int64(41), ptr(int64(7)), int64(3), ptr(int64(2)), date, "09:30", 30, nil, nil))

	raw, err := deps.checkConflicts(context.Background(), map[string]any{
		"date":    "2024-11-01",
		"time":    "09:30",
		"user_id": float64(2),
	})
	if err != nil {
		t.Fatal(err)
	}

	var e struct {
		Status string               `json:"status"`
		Data   []apptrepo.Appointment `json:"data"`
	}
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatal(err)
	}
	if len(e.Data) != 1 || e.Data[0].ID != 41 {
		t.Fatalf("conflicts = %+v", e.Data)
	}
}
