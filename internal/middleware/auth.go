package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/agrivo/farmcore/internal/utils"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// Identity is the authenticated caller extracted from a verified token
type Identity struct {
	UserID int64
	FarmID int64
	Role   string
}

// AuthMiddleware verifies JWT tokens and puts the caller identity on the
// request context
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			// Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := utils.ValidateToken(parts[1], secret)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			userID, ok := claims["id"].(float64)
			if !ok {
				http.Error(w, "Invalid token: missing id", http.StatusUnauthorized)
				return
			}
			farmID, ok := claims["farm_id"].(float64)
			if !ok {
				http.Error(w, "Invalid token: missing farm_id", http.StatusUnauthorized)
				return
			}
			role, ok := claims["role"].(string)
			if !ok {
				http.Error(w, "Invalid token: missing role", http.StatusUnauthorized)
				return
			}

			identity := &Identity{
				UserID: int64(userID),
				FarmID: int64(farmID),
				Role:   role,
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity retrieves the authenticated caller from request context
func GetIdentity(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(*Identity)
	return identity, ok
}
