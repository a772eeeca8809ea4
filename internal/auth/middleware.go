package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Middleware returns an HTTP middleware that authenticates an admin caller
// via session JWT or API key and stores the resulting Identity in the
// request context. It guards only /admin/*; the /v1/* proxy surface uses a
// separate, much simpler opaque-bearer extractor that never validates
// against this store.
//
// Authentication precedence:
//  1. Authorization: Bearer <jwt>  → self-issued session JWT (HMAC)
//  2. X-API-Key: <raw-key>        → admin API key hash lookup
//
// If neither succeeds, the request is rejected with 401.
func Middleware(sessionMgr *SessionManager, pool *pgxpool.Pool, logger *slog.Logger) func(http.Handler) http.Handler {
	apikeyAuth := &APIKeyAuthenticator{Pool: pool}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity

			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				rawToken := strings.TrimSpace(authHeader[len("Bearer "):])

				if sessionMgr != nil {
					claims, err := sessionMgr.ValidateToken(rawToken)
					if err != nil {
						logger.Warn("session token validation failed", "error", err)
						respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
						return
					}
					identity = &Identity{
						Subject: claims.Subject,
						Email:   claims.Email,
						Role:    claims.Role,
						UserID:  claims.UserID,
						Method:  MethodSession,
					}
				}
			}

			if identity == nil {
				if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
					result, err := apikeyAuth.Authenticate(r.Context(), rawKey)
					if err != nil {
						logger.Warn("API key authentication failed", "error", err)
						respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
						return
					}
					identity = &Identity{
						Subject:  "apikey:" + result.APIKeyID,
						Role:     result.Role,
						APIKeyID: result.APIKeyID,
						Method:   MethodAPIKey,
					}
				}
			}

			if identity == nil {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "no valid authentication provided")
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}
