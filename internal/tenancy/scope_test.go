package tenancy

import (
	"context"
	"errors"
	"testing"
)

type staticClinics map[int64]int64

func (s staticClinics) ClinicCompanyID(_ context.Context, clinicID int64) (int64, bool) {
	company, ok := s[clinicID]
	return company, ok
}

func ptr(v int64) *int64 { return &v }

func TestResolve_NoCompanyAlwaysDenied(t *testing.T) {
	clinics := staticClinics{3: 1}
	caller := Caller{UserID: 7, RoleLevel: RoleLevelCEO}

	if _, err := Resolve(context.Background(), caller, ptr(3), clinics); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	if _, err := Resolve(context.Background(), caller, nil, clinics); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestResolve_NonCEOPinnedToOwnClinic(t *testing.T) {
	clinics := staticClinics{3: 1, 5: 1}
	caller := Caller{UserID: 7, CompanyID: ptr(1), ClinicID: ptr(3), RoleLevel: 2}

	scope, err := Resolve(context.Background(), caller, ptr(3), clinics)
	if err != nil {
		t.Fatalf("expected own clinic accepted, got %v", err)
	}
	if scope.CompanyID != 1 || scope.ClinicID == nil || *scope.ClinicID != 3 {
		t.Fatalf("unexpected scope %+v", scope)
	}

	if _, err := Resolve(context.Background(), caller, ptr(5), clinics); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected cross-clinic request denied, got %v", err)
	}
}

func TestResolve_CEOAnyClinicInCompany(t *testing.T) {
	clinics := staticClinics{3: 1, 5: 1, 9: 2}
	caller := Caller{UserID: 7, CompanyID: ptr(1), RoleLevel: RoleLevelCEO}

	scope, err := Resolve(context.Background(), caller, ptr(5), clinics)
	if err != nil {
		t.Fatalf("expected in-company clinic accepted, got %v", err)
	}
	if scope.ClinicID == nil || *scope.ClinicID != 5 {
		t.Fatalf("unexpected scope %+v", scope)
	}

	if _, err := Resolve(context.Background(), caller, ptr(9), clinics); !errors.Is(err, ErrClinicNotInCompany) {
		t.Fatalf("expected foreign clinic refused, got %v", err)
	}
}

func TestResolve_OmittedClinicDefaults(t *testing.T) {
	clinics := staticClinics{3: 1}

	// Non-CEO defaults to own clinic.
	caller := Caller{UserID: 7, CompanyID: ptr(1), ClinicID: ptr(3), RoleLevel: 1}
	scope, err := Resolve(context.Background(), caller, nil, clinics)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if scope.ClinicID == nil || *scope.ClinicID != 3 {
		t.Fatalf("expected clinic 3, got %+v", scope)
	}

	// Non-CEO with no clinic fails.
	caller.ClinicID = nil
	if _, err := Resolve(context.Background(), caller, nil, clinics); !errors.Is(err, ErrClinicContextRequired) {
		t.Fatalf("expected clinic context required, got %v", err)
	}

	// CEO with no clinic gets a company-wide scope.
	ceo := Caller{UserID: 8, CompanyID: ptr(1), RoleLevel: RoleLevelCEO}
	scope, err = Resolve(context.Background(), ceo, nil, clinics)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if !scope.AllClinics() {
		t.Fatalf("expected company-wide scope, got %+v", scope)
	}
}

func TestRequireWrite(t *testing.T) {
	if _, err := RequireWrite(Scope{CompanyID: 1}); !errors.Is(err, ErrClinicContextRequired) {
		t.Fatalf("expected clinic context required, got %v", err)
	}

	clinic, err := RequireWrite(Scope{CompanyID: 1, ClinicID: ptr(3)})
	if err != nil || clinic != 3 {
		t.Fatalf("expected clinic 3, got %d %v", clinic, err)
	}
}
