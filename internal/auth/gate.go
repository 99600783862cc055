package auth

import (
	"context"

	"github.com/satya6366/trust-ledger/internal/domain"
)

// Resolver looks up a user's role in the external identity store. ok is
// false when no mapping exists for the user, which is not an error.
type Resolver interface {
	ResolveRole(ctx context.Context, userID string) (role domain.Role, ok bool, err error)
}

// ErrUnverified means the caller's identity could not be established at all,
// either because the lookup failed or because no mapping exists. It still
// satisfies errors.Is(err, domain.ErrForbidden): an unverifiable caller can
// never pass an ownership check.
var ErrUnverified = domain.E(domain.ErrForbidden, "Invalid user")

// Gate enforces the admin/user permission split. Every privileged write
// fails closed on missing or erroring identity data; only EffectiveRole,
// which backs the pure role-query endpoint, defaults a missing mapping to
// the user role.
type Gate struct {
	resolver Resolver
}

func NewGate(r Resolver) *Gate {
	return &Gate{resolver: r}
}

// EffectiveRole returns the caller's role for display purposes. A missing
// mapping is the user role; a lookup failure is propagated so the endpoint
// can report it, never silently downgraded.
func (g *Gate) EffectiveRole(ctx context.Context, userID string) (domain.Role, error) {
	role, ok, err := g.resolver.ResolveRole(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return domain.RoleUser, nil
	}
	return role, nil
}

// RequireAdmin fails with ErrForbidden unless the caller resolves to admin.
func (g *Gate) RequireAdmin(ctx context.Context, userID string) error {
	role, ok, err := g.resolver.ResolveRole(ctx, userID)
	if err != nil || !ok || role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	return nil
}

// RequireAdminOrOwner passes admins and the resource owner. An unverifiable
// caller gets ErrUnverified rather than the ownership comparison.
func (g *Gate) RequireAdminOrOwner(ctx context.Context, userID, ownerID string) error {
	role, ok, err := g.resolver.ResolveRole(ctx, userID)
	if err != nil || !ok {
		return ErrUnverified
	}
	if role == domain.RoleAdmin || userID == ownerID {
		return nil
	}
	return domain.ErrForbidden
}
