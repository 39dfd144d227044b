// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Identity represents the authenticated staff member's identity.
// This interface abstracts identity extraction from the web framework,
// allowing handlers to access caller information without depending on Gin.
type Identity interface {
	// UserID returns the authenticated user's ID.
	UserID() int64
	// CompanyID returns the caller's company, or nil when unassigned.
	CompanyID() *int64
	// ClinicID returns the caller's clinic, or nil for company-level callers.
	ClinicID() *int64
	// RoleLevel returns the caller's role level (1..4; 4 is CEO).
	RoleLevel() int
	// IsAuthenticated returns true if the user is authenticated.
	IsAuthenticated() bool
}

type identity struct {
	userID        int64
	companyID     *int64
	clinicID      *int64
	roleLevel     int
	authenticated bool
}

func (i *identity) UserID() int64       { return i.userID }
func (i *identity) CompanyID() *int64   { return i.companyID }
func (i *identity) ClinicID() *int64    { return i.clinicID }
func (i *identity) RoleLevel() int      { return i.roleLevel }
func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if user info is not present.
func GetIdentity(c *gin.Context) Identity {
	userID, userOK := c.Get(ContextUserIDKey)
	if !userOK {
		return &identity{authenticated: false}
	}

	uid, ok := userID.(int64)
	if !ok {
		return &identity{authenticated: false}
	}

	id := &identity{userID: uid, roleLevel: 1, authenticated: true}

	if v, ok := c.Get(ContextCompanyIDKey); ok {
		if companyID, ok := v.(int64); ok {
			id.companyID = &companyID
		}
	}
	if v, ok := c.Get(ContextClinicIDKey); ok {
		if clinicID, ok := v.(int64); ok {
			id.clinicID = &clinicID
		}
	}
	if v, ok := c.Get(ContextRoleLevelKey); ok {
		if level, ok := v.(int); ok {
			id.roleLevel = level
		}
	}

	return id
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the user is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return id
}
