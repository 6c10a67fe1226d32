// Package auth carries the caller identity attached by an upstream
// authentication gateway. JWT validation itself is an external
// collaborator (see internal/config's DevAuthHeader); this package only
// specifies and enforces the contract the rest of narrator depends on:
// every authenticated request context carries an Identity.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Roles recognised by narrator's RBAC checks.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// MethodDev marks identities resolved from the development header fallback.
const MethodDev = "dev"

// Identity represents the authenticated caller for the current request.
type Identity struct {
	UserID uuid.UUID
	Role   string
	Method string
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil if no
// identity is set.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

func respondErr(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
