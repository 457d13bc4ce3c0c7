package principal

import "context"

// Update carries mutable principal fields; nil members are left untouched.
type Update struct {
	Email        *string
	Role         *Role
	Scope        *Scope
	Status       *string
	PasswordHash *string
	MFAEnrolled  *bool
	MFASecret    *string
	Metadata     map[string]string
}

// Store describes the persistence operations required for principals.
// Implementations must apply Validate before any insert or role/scope change
// and must refuse hard deletes.
type Store interface {
	Create(ctx context.Context, p *Principal) error
	Find(ctx context.Context, id string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	ListByRetailer(ctx context.Context, retailerID string) ([]*Principal, error)
	Update(ctx context.Context, id string, upd Update) (*Principal, error)
	// Deactivate transitions the principal to inactive. There is no delete.
	Deactivate(ctx context.Context, id string) error
}

// AuthorizeMutation enforces the rank rule for role or scope changes: the
// acting principal must strictly outrank the target. Principals never adjust
// their own role.
func AuthorizeMutation(actor, target *Principal, upd Update) error {
	if upd.Role == nil && upd.Scope == nil && upd.Status == nil {
		return nil
	}
	if actor.ID == target.ID {
		return ErrRankViolation
	}
	if !actor.Role.Outranks(target.Role) {
		return ErrRankViolation
	}
	if upd.Role != nil && !actor.Role.Outranks(*upd.Role) {
		return ErrRankViolation
	}
	return nil
}
