package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/simsynai/platform/internal/app/services/users"
)

type contextKey string

const claimsKey contextKey = "auth-claims"

// requireAuth verifies the Bearer token and stashes its claims in the
// request context.
func (h *handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("missing bearer token"))
			return
		}
		claims, err := h.app.Users.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid token"))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// claimsFrom returns the verified claims placed by requireAuth. Handlers
// behind the middleware can rely on it being present.
func claimsFrom(ctx context.Context) *users.Claims {
	claims, _ := ctx.Value(claimsKey).(*users.Claims)
	if claims == nil {
		return &users.Claims{}
	}
	return claims
}
