package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// APIKeyAuthenticator validates admin API keys against the admin_api_keys table.
type APIKeyAuthenticator struct {
	Pool *pgxpool.Pool
}

// APIKeyResult holds the resolved identity data from an API key lookup.
type APIKeyResult struct {
	APIKeyID string
	Role     string
}

// Authenticate hashes the raw key, looks it up in admin_api_keys, and
// validates expiration.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, rawKey string) (*APIKeyResult, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("empty API key")
	}

	hash := HashAPIKey(rawKey)

	var (
		id        string
		role      string
		expiresAt *time.Time
	)
	err := a.Pool.QueryRow(ctx,
		`SELECT id, role, expires_at FROM admin_api_keys WHERE key_hash = $1`,
		hash,
	).Scan(&id, &role, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("API key not recognized")
		}
		return nil, fmt.Errorf("looking up API key: %w", err)
	}

	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("API key expired at %s", expiresAt)
	}

	if !IsValidRole(role) {
		role = RoleReadonly
	}

	// Update last_used asynchronously — fire and forget.
	go func() {
		_, _ = a.Pool.Exec(context.Background(),
			`UPDATE admin_api_keys SET last_used_at = now() WHERE id = $1`, id)
	}()

	return &APIKeyResult{APIKeyID: id, Role: role}, nil
}
