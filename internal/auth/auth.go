// Package auth implements authentication and RBAC for the admin surface
// (provider/credential/model-mapping management). It has no role in the
// OpenAI-compatible /v1/* surface, which treats the caller's bearer token as
// an opaque rate-limit/audit identifier rather than a credential to verify.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Role levels for the admin API. Lower-privilege roles can read, higher
// ones can mutate providers/credentials/mappings.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEngineer = "engineer"
	RoleReadonly = "readonly"
)

// Authentication methods recorded on an Identity.
const (
	MethodSession = "session"
	MethodAPIKey  = "api_key"
)

var validRoles = map[string]struct{}{
	RoleAdmin:    {},
	RoleManager:  {},
	RoleEngineer: {},
	RoleReadonly: {},
}

// IsValidRole reports whether role is one of the known admin roles.
func IsValidRole(role string) bool {
	_, ok := validRoles[role]
	return ok
}

// Identity is the authenticated caller attached to the request context by
// Middleware. It identifies an admin operator, not an end user of /v1/*.
type Identity struct {
	Subject  string
	Email    string
	Role     string
	UserID   string
	APIKeyID string
	Method   string
}

type contextKey struct{}

var identityKey = contextKey{}

// NewContext returns a copy of ctx carrying the given identity.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the Identity stored in ctx, or nil if none.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// HashAPIKey hashes a raw API key with SHA-256 for storage and lookup.
// Deterministic and one-way: the admin API key is never decrypted, unlike
// the provider credentials stored in pkg/credential, which the gateway must
// read back in plaintext to call upstream.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
