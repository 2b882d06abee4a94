package middleware

import (
	"context"
	"net/http"
	"strings"

	"app/internal/util"

	"github.com/rs/zerolog"
)

// Injected key type to avoid context collisions
type contextKey string

const UserContextKey = contextKey("user")

// AuthMiddleware validates the bearer token and embeds the user ID into the
// request context.
func AuthMiddleware(jwtSecret string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header missing", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := util.ValidateJWT(parts[1], jwtSecret)
			if err != nil {
				logger.Warn().Err(err).Msg("Rejected invalid token")
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserContextKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID extracts the authenticated user ID from the request context.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserContextKey).(string)
	return id
}
