package migration

import (
	"context"
	"fmt"
)

// cleanupStatements delete a clinic's owned rows in dependency order. The
// clinic id is always $1.
var cleanupStatements = []struct {
	name string
	sql  string
}{
	{"order_line_items", `
		DELETE FROM order_line_items WHERE billing_id IN
			(SELECT id FROM billings WHERE clinic_id = $1)`},
	{"billings", `DELETE FROM billings WHERE clinic_id = $1`},
	{"exam_layout_instances", `
		DELETE FROM exam_layout_instances WHERE exam_id IN
			(SELECT id FROM optical_exams WHERE clinic_id = $1)`},
	{"optical_exams", `DELETE FROM optical_exams WHERE clinic_id = $1`},
	{"contact_lens_orders", `DELETE FROM contact_lens_orders WHERE clinic_id = $1`},
	{"orders", `DELETE FROM orders WHERE clinic_id = $1`},
	{"referrals", `DELETE FROM referrals WHERE clinic_id = $1`},
	{"files", `DELETE FROM files WHERE clinic_id = $1`},
	{"medical_logs", `DELETE FROM medical_logs WHERE clinic_id = $1`},
	{"appointments", `DELETE FROM appointments WHERE clinic_id = $1`},
}

var cleanupClientStatements = []struct {
	name string
	sql  string
}{
	{"clients", `DELETE FROM clients WHERE clinic_id = $1`},
	{"families", `DELETE FROM families WHERE clinic_id = $1`},
}

// Cleanup removes migrated rows for the run's clinics so the migration can
// be repeated. Clients and families survive when KEEP_CLIENTS is set; the
// default migrated layouts are removed last.
func (e *Engine) Cleanup(ctx context.Context) error {
	session, release, err := e.acquireSession(ctx)
	if err != nil {
		return err
	}
	defer release()

	clinicIDs, err := e.cleanupClinics(ctx, session)
	if err != nil {
		return err
	}

	for _, clinicID := range clinicIDs {
		for _, stmt := range cleanupStatements {
			tag, err := session.Exec(ctx, stmt.sql, clinicID)
			if err != nil {
				return fmt.Errorf("cleanup %s for clinic %d: %w", stmt.name, clinicID, err)
			}
			e.log.Info("cleanup", "table", stmt.name, "clinic_id", clinicID, "deleted", tag.RowsAffected())
		}

		if !e.keepClients {
			for _, stmt := range cleanupClientStatements {
				tag, err := session.Exec(ctx, stmt.sql, clinicID)
				if err != nil {
					return fmt.Errorf("cleanup %s for clinic %d: %w", stmt.name, clinicID, err)
				}
				e.log.Info("cleanup", "table", stmt.name, "clinic_id", clinicID, "deleted", tag.RowsAffected())
			}
		}

		if _, err := session.Exec(ctx,
			`DELETE FROM exam_layouts WHERE name = $1 AND clinic_id = $2`,
			defaultLayoutName, clinicID); err != nil {
			return fmt.Errorf("cleanup exam_layouts for clinic %d: %w", clinicID, err)
		}
	}

	return nil
}

// cleanupClinics resolves the clinics affected by a cleanup run: the fixed
// clinic when one was passed, otherwise every clinic of the company.
func (e *Engine) cleanupClinics(ctx context.Context, db queryer) ([]int64, error) {
	if ids := e.tenants.ClinicIDs(); len(ids) > 0 {
		return ids, nil
	}

	rows, err := db.Query(ctx, `SELECT id FROM clinics WHERE company_id = $1`, e.tenants.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
