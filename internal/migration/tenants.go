package migration

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Tenants resolves legacy branch codes to clinic ids for one migration run.
// A run always targets a single company. When the operator passes a fixed
// clinic id every branch code collapses onto it; otherwise a clinic is
// created per distinct branch code.
type Tenants struct {
	CompanyID   int64
	fixedClinic *int64
	byBranch    map[string]int64
}

func newTenants(companyID int64, clinicID int64) *Tenants {
	t := &Tenants{
		CompanyID: companyID,
		byBranch:  make(map[string]int64),
	}
	if clinicID > 0 {
		t.fixedClinic = &clinicID
	}
	return t
}

// verify checks that the target company (and fixed clinic, when given)
// exist before any data is written.
func (t *Tenants) verify(ctx context.Context, db queryer) error {
	var one int
	err := db.QueryRow(ctx, `SELECT 1 FROM companies WHERE id = $1`, t.CompanyID).Scan(&one)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("company %d does not exist", t.CompanyID)
	}
	if err != nil {
		return err
	}

	if t.fixedClinic != nil {
		err := db.QueryRow(ctx,
			`SELECT 1 FROM clinics WHERE id = $1 AND company_id = $2`,
			*t.fixedClinic, t.CompanyID).Scan(&one)
		if err == pgx.ErrNoRows {
			return fmt.Errorf("clinic %d does not belong to company %d", *t.fixedClinic, t.CompanyID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ClinicFor maps a legacy branch code to a clinic id, creating the clinic on
// first sight unless the run is pinned to a fixed clinic.
func (t *Tenants) ClinicFor(ctx context.Context, db queryer, branchCode string) (int64, error) {
	if t.fixedClinic != nil {
		return *t.fixedClinic, nil
	}

	if id, ok := t.byBranch[branchCode]; ok {
		return id, nil
	}

	var id int64
	err := db.QueryRow(ctx,
		`SELECT id FROM clinics WHERE company_id = $1 AND unique_id = $2`,
		t.CompanyID, branchCode).Scan(&id)
	if err == pgx.ErrNoRows {
		err = db.QueryRow(ctx,
			`INSERT INTO clinics (company_id, unique_id, name) VALUES ($1, $2, $3) RETURNING id`,
			t.CompanyID, branchCode, "Branch "+branchCode).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve clinic for branch %q: %w", branchCode, err)
	}

	t.byBranch[branchCode] = id
	return id, nil
}

// ClinicIDs returns every clinic touched by the run.
func (t *Tenants) ClinicIDs() []int64 {
	if t.fixedClinic != nil {
		return []int64{*t.fixedClinic}
	}
	ids := make([]int64, 0, len(t.byBranch))
	for _, id := range t.byBranch {
		ids = append(ids, id)
	}
	return ids
}
