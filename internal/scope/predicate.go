package scope

import (
	"errors"
	"fmt"
	"strings"

	"gatehouse.org/internal/principal"
)

var (
	// ErrForbidden is returned for any operation whose target falls outside
	// the caller's organizational boundary. It deliberately carries no detail
	// about the boundary that was violated.
	ErrForbidden = errors.New("scope: forbidden")
	ErrNotFound  = errors.New("scope: not found")
)

// EntityClass names a partitioned business entity.
type EntityClass string

const (
	EntityCustomer EntityClass = "customer"
	EntityOrder    EntityClass = "order"
	EntityClaim    EntityClass = "claim"
	EntityShipment EntityClass = "shipment"
)

// Predicate is the row-visibility condition for one principal against one
// entity class. It is conjoined into every read and write at the data layer,
// regardless of entry point.
type Predicate struct {
	all       bool
	conjuncts []conjunct
}

type conjunct struct {
	column string
	value  string
}

// ForPrincipal derives the row predicate for the principal's role and scope.
// Owner and backoffice see everything; retailer is pinned to its retailer id
// (all locations included); location_user is pinned to both its retailer id
// and its exact location, so a row can never be written into another
// retailer's partition even when the location id coincides.
func ForPrincipal(p *principal.Principal, entity EntityClass) (Predicate, error) {
	switch entity {
	case EntityCustomer, EntityOrder, EntityClaim, EntityShipment:
	default:
		return Predicate{}, fmt.Errorf("scope: unknown entity class %q", entity)
	}
	switch p.Role {
	case principal.RoleOwner, principal.RoleBackoffice:
		return Predicate{all: true}, nil
	case principal.RoleRetailer:
		if p.Scope.RetailerID == "" {
			return Predicate{}, ErrForbidden
		}
		return Predicate{conjuncts: []conjunct{
			{column: "retailer_id", value: p.Scope.RetailerID},
		}}, nil
	case principal.RoleLocationUser:
		if p.Scope.RetailerID == "" || p.Scope.LocationID == "" {
			return Predicate{}, ErrForbidden
		}
		return Predicate{conjuncts: []conjunct{
			{column: "retailer_id", value: p.Scope.RetailerID},
			{column: "location_id", value: p.Scope.LocationID},
		}}, nil
	default:
		return Predicate{}, ErrForbidden
	}
}

// All reports whether the predicate grants full visibility.
func (p Predicate) All() bool { return p.all }

// SQL renders the predicate as a WHERE conjunct with placeholders numbered
// from argPos. Always-true predicates render as "true" with no args so
// callers can conjoin unconditionally.
func (p Predicate) SQL(argPos int) (string, []any) {
	if p.all {
		return "true", nil
	}
	parts := make([]string, 0, len(p.conjuncts))
	args := make([]any, 0, len(p.conjuncts))
	for i, c := range p.conjuncts {
		parts = append(parts, fmt.Sprintf("%s = $%d", c.column, argPos+i))
		args = append(args, c.value)
	}
	return strings.Join(parts, " and "), args
}

// Matches evaluates the predicate against a row's scope columns. This is the
// same condition SQL renders, exposed for in-memory enforcement and tests.
func (p Predicate) Matches(retailerID, locationID string) bool {
	if p.all {
		return true
	}
	if len(p.conjuncts) == 0 {
		return false
	}
	for _, c := range p.conjuncts {
		switch c.column {
		case "retailer_id":
			if retailerID != c.value {
				return false
			}
		case "location_id":
			if locationID != c.value {
				return false
			}
		default:
			return false
		}
	}
	return true
}
