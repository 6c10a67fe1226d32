package auth

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// RoleHeader carries the caller's role, as injected by the upstream
// authentication gateway alongside the dev/user-id header.
const RoleHeader = "X-User-Role"

// Middleware authenticates the caller from headers injected by an upstream
// gateway once it has validated the caller's JWT: devHeader carries the
// caller's user ID, RoleHeader carries their role. narrator trusts these
// headers as coming from a gateway on a private network; it performs no
// JWT validation itself.
//
// Requests with no devHeader value are left unauthenticated; RequireAuth
// rejects them downstream.
func Middleware(devHeader string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(devHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := uuid.Parse(raw)
			if err != nil {
				logger.Warn("authentication header did not contain a valid user id", "header", devHeader)
				respondErr(w, http.StatusUnauthorized, `{"error":"unauthorized","message":"invalid caller identity"}`)
				return
			}

			role := r.Header.Get(RoleHeader)
			if role == "" {
				role = RoleUser
			}

			identity := &Identity{
				UserID: userID,
				Role:   role,
				Method: MethodDev,
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that have no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			respondErr(w, http.StatusUnauthorized, `{"error":"unauthorized","message":"authentication required"}`)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose identity does not hold the given role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				respondErr(w, http.StatusUnauthorized, `{"error":"unauthorized","message":"authentication required"}`)
				return
			}
			if id.Role != role {
				respondErr(w, http.StatusForbidden, `{"error":"forbidden","message":"insufficient permissions"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
