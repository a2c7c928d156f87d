package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/DoyleJ11/floor-ops-backend/internal/apperr"
	"github.com/DoyleJ11/floor-ops-backend/internal/cache"
	"github.com/DoyleJ11/floor-ops-backend/internal/models"
	"github.com/DoyleJ11/floor-ops-backend/internal/store"
	"go.uber.org/zap"
)

// Memberships resolves a user to their membership in the ACTIVE tournament.
type Memberships interface {
	ActiveMembership(ctx context.Context, userID string) (*models.TournamentMember, error)
}

// RevokedKey is the cache key marking a token as logged out.
func RevokedKey(token string) string { return "blacklist:" + token }

// Authenticator runs the token -> active user -> active tournament gate
// shared by REST and the socket handshake.
type Authenticator struct {
	secret      []byte
	memberships Memberships
	revoked     cache.Cache
	logger      *zap.Logger
}

// NewAuthenticator builds the gate. revoked may be nil.
func NewAuthenticator(secret []byte, memberships Memberships, revoked cache.Cache, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{secret: secret, memberships: memberships, revoked: revoked, logger: logger}
}

// Authenticate returns the caller's identity, an Unauthorized error for bad
// tokens or inactive users, or ErrNoActiveTournament.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, apperr.Unauthorized("Access denied. No token provided or invalid format.", nil)
	}
	claims, err := ParseJWT(token, a.secret)
	if err != nil {
		return Identity{}, apperr.Unauthorized("Invalid token.", err)
	}
	if a.isRevoked(ctx, token) {
		return Identity{}, apperr.Unauthorized("Token has been revoked.", nil)
	}

	m, err := a.memberships.ActiveMembership(ctx, claims.UserID)
	switch {
	case errors.Is(err, store.ErrInactiveUser):
		return Identity{}, apperr.Unauthorized("Invalid token. User not found or deactivated.", err)
	case errors.Is(err, store.ErrNotFound):
		return Identity{}, apperr.ErrNoActiveTournament
	case err != nil:
		return Identity{}, apperr.Fatal("resolve membership", err)
	}
	return Identity{UserID: m.UserID, TournamentID: m.TournamentID, Role: m.Role}, nil
}

func (a *Authenticator) isRevoked(ctx context.Context, token string) bool {
	if a.revoked == nil {
		return false
	}
	_, err := a.revoked.Get(ctx, RevokedKey(token))
	switch {
	case err == nil:
		return true
	case errors.Is(err, cache.ErrMiss):
		return false
	default:
		a.logger.Warn("revocation check unavailable", zap.Error(err))
		return false
	}
}

// TokenFromRequest reads "Authorization: Bearer <t>", falling back to ?token=.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
