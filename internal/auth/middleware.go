package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tunecard/tunecard/internal/api"
	"github.com/tunecard/tunecard/internal/usage"
	"github.com/tunecard/tunecard/internal/users"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller: the usage subject plus the tier
// that selects its rate-limit rules.
type Principal struct {
	UserID    uuid.UUID
	SpotifyID string
	Tier      usage.Tier
}

// Subject returns the usage-accounting subject identifier.
func (p *Principal) Subject() string {
	return p.UserID.String()
}

// Middleware authenticates requests via a JWT access token or, for
// credentials with the personal-token prefix, via the API token service.
// API tokens resolve the tier from the user row on every request; JWTs carry
// a tier claim frozen at issue time.
func Middleware(authSvc *Service, tokenSvc *TokenService, userSvc *users.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}
			credential := parts[1]

			var principal *Principal

			if IsAPIToken(credential) {
				token, err := tokenSvc.Authenticate(r.Context(), credential)
				if err != nil {
					api.HandleError(w, api.ErrInvalidToken)
					return
				}
				user, err := userSvc.GetByID(r.Context(), token.UserID)
				if err != nil {
					slog.Error("loading api token user", "error", err)
					api.HandleError(w, api.ErrInternalServer)
					return
				}
				if user == nil {
					api.HandleError(w, api.ErrInvalidToken)
					return
				}
				principal = &Principal{UserID: user.ID, SpotifyID: user.SpotifyID, Tier: user.Tier}
			} else {
				claims, err := authSvc.ValidateAccessToken(credential)
				if err != nil {
					api.HandleError(w, api.ErrInvalidToken)
					return
				}
				userID, err := uuid.Parse(claims.UserID)
				if err != nil {
					api.HandleError(w, api.ErrInvalidToken)
					return
				}
				principal = &Principal{UserID: userID, SpotifyID: claims.SpotifyID, Tier: claims.Tier}
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal returns the authenticated principal, or nil outside the
// middleware.
func GetPrincipal(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// WithPrincipal returns a context carrying the principal directly, for
// callers that sit outside the HTTP middleware.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}
