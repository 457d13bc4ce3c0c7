package principal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the fixed role taxonomy. Every principal carries exactly one role.
type Role string

const (
	// RoleOwner has unrestricted access across all tenants.
	RoleOwner Role = "owner"
	// RoleBackoffice has unrestricted operational access, kept distinct from
	// owner for audit attribution.
	RoleBackoffice Role = "backoffice"
	// RoleRetailer is scoped to one retailer organization and all of its locations.
	RoleRetailer Role = "retailer"
	// RoleLocationUser is scoped to exactly one physical location under one retailer.
	RoleLocationUser Role = "location_user"
)

// rank orders roles for the mutation rule: role and scope of a principal may
// only be changed by an actor whose role strictly outranks the target's.
var rank = map[Role]int{
	RoleOwner:        4,
	RoleBackoffice:   3,
	RoleRetailer:     2,
	RoleLocationUser: 1,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

// Outranks reports whether r strictly outranks other.
func (r Role) Outranks(other Role) bool {
	return rank[r] > rank[other]
}

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return r, nil
}

// Status values for a principal. Principals are never hard-deleted; retirement
// is a transition to inactive so audit references stay resolvable.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusInactive  = "inactive"
)

// Scope is the organizational boundary constraining row visibility.
type Scope struct {
	RetailerID string
	LocationID string
}

// Principal represents one account.
type Principal struct {
	ID                string
	Email             string
	Role              Role
	Scope             Scope
	Status            string
	PasswordHash      string
	PasswordChangedAt time.Time
	MFAEnrolled       bool
	MFASecret         string
	Metadata          map[string]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

var (
	ErrNotFound      = errors.New("principal: not found")
	ErrAlreadyExists = errors.New("principal: already exists")
	ErrInvalidInput  = errors.New("principal: invalid input")
	ErrRankViolation = errors.New("principal: actor does not outrank target")
)

// Validate enforces the role/scope and status invariants.
func (p *Principal) Validate() error {
	if strings.TrimSpace(p.Email) == "" || !strings.Contains(p.Email, "@") {
		return fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if !p.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, p.Role)
	}
	switch p.Status {
	case StatusActive, StatusSuspended, StatusInactive:
	default:
		return fmt.Errorf("%w: unsupported status %q", ErrInvalidInput, p.Status)
	}
	return p.Scope.validateFor(p.Role)
}

// validateFor checks the mutual constraints between role and scope:
// location_user needs retailer and location, retailer needs retailer only,
// owner and backoffice must carry neither.
func (s Scope) validateFor(role Role) error {
	hasRetailer := strings.TrimSpace(s.RetailerID) != ""
	hasLocation := strings.TrimSpace(s.LocationID) != ""
	switch role {
	case RoleLocationUser:
		if !hasRetailer || !hasLocation {
			return fmt.Errorf("%w: role %s requires retailer and location ids", ErrInvalidInput, role)
		}
	case RoleRetailer:
		if !hasRetailer {
			return fmt.Errorf("%w: role %s requires a retailer id", ErrInvalidInput, role)
		}
		if hasLocation {
			return fmt.Errorf("%w: role %s must not carry a location id", ErrInvalidInput, role)
		}
	case RoleOwner, RoleBackoffice:
		if hasRetailer || hasLocation {
			return fmt.Errorf("%w: role %s must not carry organizational scope", ErrInvalidInput, role)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	return nil
}

// Active reports whether the principal may authenticate.
func (p *Principal) Active() bool {
	return p.Status == StatusActive
}
