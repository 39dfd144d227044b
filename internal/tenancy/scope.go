// Package tenancy implements the tenant scope guard. Every tool call and
// repository query passes through here before touching clinic-owned data.
package tenancy

import (
	"context"

	"opticai_backend/platform/apperr"
)

// Role levels. Levels 1..3 are pinned to their clinic; level 4 (CEO) is
// scoped by company and may address any clinic inside it.
const (
	RoleLevelCEO = 4
)

// Caller is the authenticated staff identity a tool call runs as.
type Caller struct {
	UserID    int64
	CompanyID *int64
	ClinicID  *int64
	RoleLevel int
}

// IsCEO reports whether the caller is company-scoped.
func (c Caller) IsCEO() bool {
	return c.RoleLevel >= RoleLevelCEO
}

// Scope is the normalised tenant scope of a request. A nil ClinicID means
// "any clinic in the company" and is only ever produced for CEO callers.
type Scope struct {
	CompanyID int64
	ClinicID  *int64
}

// AllClinics reports whether the scope spans the whole company.
func (s Scope) AllClinics() bool {
	return s.ClinicID == nil
}

// Scope violation errors.
var (
	ErrAccessDenied          = apperr.AccessDenied("access_denied")
	ErrClinicContextRequired = apperr.BadRequest("clinic_context_required")
	ErrClinicNotInCompany    = apperr.AccessDenied("clinic_not_in_company")
)

// ClinicLookup resolves a clinic id to its owning company. Implemented by the
// clients repository; injected so the guard stays a pure function over data.
type ClinicLookup interface {
	ClinicCompanyID(ctx context.Context, clinicID int64) (int64, bool)
}

// Resolve translates a caller plus an optional requested clinic into an
// effective scope, or refuses with a scope violation.
//
// Rules:
//   - a caller with no company fails every scoped call;
//   - CEO callers may address any clinic inside their company;
//   - non-CEO callers are pinned to their own clinic;
//   - an omitted clinic defaults to the caller's clinic; CEO callers without
//     one receive a company-wide scope.
func Resolve(ctx context.Context, caller Caller, requestedClinic *int64, clinics ClinicLookup) (Scope, error) {
	if caller.CompanyID == nil {
		return Scope{}, ErrAccessDenied
	}
	company := *caller.CompanyID

	if requestedClinic != nil {
		if caller.IsCEO() {
			owner, ok := clinics.ClinicCompanyID(ctx, *requestedClinic)
			if !ok || owner != company {
				return Scope{}, ErrClinicNotInCompany
			}
			clinic := *requestedClinic
			return Scope{CompanyID: company, ClinicID: &clinic}, nil
		}

		if caller.ClinicID == nil || *caller.ClinicID != *requestedClinic {
			return Scope{}, ErrAccessDenied
		}
		clinic := *requestedClinic
		return Scope{CompanyID: company, ClinicID: &clinic}, nil
	}

	if caller.ClinicID != nil {
		clinic := *caller.ClinicID
		return Scope{CompanyID: company, ClinicID: &clinic}, nil
	}

	if caller.IsCEO() {
		return Scope{CompanyID: company}, nil
	}

	return Scope{}, ErrClinicContextRequired
}

// ResolveCompany returns the caller's company scope without a clinic pin.
// Used for models that carry company_id but no clinic_id.
func ResolveCompany(caller Caller) (int64, error) {
	if caller.CompanyID == nil {
		return 0, ErrAccessDenied
	}
	return *caller.CompanyID, nil
}

// SQLArgs returns the (company, clinic) argument pair used by the shared
// clinic filter fragment: clinic is nil for company-wide scopes so a
// `$n::bigint IS NULL OR` clause can widen the match.
func (s Scope) SQLArgs() (int64, *int64) {
	return s.CompanyID, s.ClinicID
}

// RequireWrite narrows a scope for write operations, which always need a
// concrete clinic. CEO callers addressing the whole company must name one.
func RequireWrite(scope Scope) (int64, error) {
	if scope.ClinicID == nil {
		return 0, ErrClinicContextRequired
	}
	return *scope.ClinicID, nil
}
