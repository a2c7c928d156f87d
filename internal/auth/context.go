package auth

import (
	"context"

	"github.com/DoyleJ11/floor-ops-backend/internal/models"
)

type contextKey string

const contextKeyIdentity contextKey = "auth.identity"

// Identity is an authenticated user together with their active tournament.
type Identity struct {
	UserID       string
	TournamentID string
	Role         models.Role
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

// IdentityFromContext extracts the identity stored by the middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(contextKeyIdentity).(Identity)
	return id, ok
}
