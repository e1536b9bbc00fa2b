package domain

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the already-authenticated actor of a request.
type Principal struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   Role       `json:"role"`
	Status UserStatus `json:"status"`
}

// IsAdmin reports whether the principal holds the global ADMIN role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// IsActive reports whether the principal's account is active.
func (p Principal) IsActive() bool {
	return p.Status == UserStatusActive
}

type principalKey struct{}

// WithPrincipal returns a new context carrying the given principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
