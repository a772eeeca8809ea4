package credential

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Service wraps Store and Selector with encryption, validation, and
// display masking for the admin CRUD surface.
type Service struct {
	store    *Store
	selector *Selector
	cipher   *Cipher
	logger   *slog.Logger
}

// NewService creates a credential Service. passphrase derives the
// at-rest encryption key; it must match across restarts or previously
// stored credentials become undecryptable.
func NewService(pool *pgxpool.Pool, rdb *redis.Client, passphrase string, logger *slog.Logger) (*Service, error) {
	cipher, err := NewCipher(passphrase)
	if err != nil {
		return nil, fmt.Errorf("initializing credential cipher: %w", err)
	}
	store := NewStore(pool)
	return &Service{
		store:    store,
		selector: NewSelector(store, rdb),
		cipher:   cipher,
		logger:   logger,
	}, nil
}

// Selector exposes the underlying Selector for the fallback executor.
func (s *Service) Selector() *Selector { return s.selector }

// Decrypt returns the plaintext API key for a credential record.
func (s *Service) Decrypt(r Record) (string, error) {
	return s.cipher.Decrypt(r.KeyEncrypted)
}

// MaskedSecret returns a masked rendering of the decrypted secret (see
// Mask; the last 4 characters stay visible) for admin UIs that want to
// confirm a key's tail without exposing it.
func (s *Service) MaskedSecret(r Record) (string, error) {
	plain, err := s.Decrypt(r)
	if err != nil {
		return "", err
	}
	return Mask(plain, 4), nil
}

// ListByProvider returns all credentials for a provider.
func (s *Service) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Record, error) {
	return s.store.ListByProvider(ctx, providerID)
}

// CreateRequest is the admin-facing payload for registering a credential.
// RawKey is the plaintext secret; it is encrypted before storage and never
// persisted or logged in the clear.
type CreateRequest struct {
	ProviderID   uuid.UUID
	KeyID        string
	RawKey       string
	Priority     int
	RateLimitRPM int
	RateLimitTPM int
	DailyQuota   int
	MonthlyQuota int
}

// Create encrypts RawKey and inserts a new credential.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Record, error) {
	if req.RawKey == "" {
		return Record{}, fmt.Errorf("raw key must not be empty")
	}

	encrypted, err := s.cipher.Encrypt(req.RawKey)
	if err != nil {
		return Record{}, fmt.Errorf("encrypting credential: %w", err)
	}

	rec, err := s.store.Create(ctx, CreateParams{
		ProviderID:   req.ProviderID,
		KeyID:        req.KeyID,
		KeyEncrypted: encrypted,
		Priority:     req.Priority,
		RateLimitRPM: req.RateLimitRPM,
		RateLimitTPM: req.RateLimitTPM,
		DailyQuota:   req.DailyQuota,
		MonthlyQuota: req.MonthlyQuota,
	})
	if err != nil {
		return Record{}, fmt.Errorf("creating credential: %w", err)
	}

	s.logger.Info("credential created", "credential_id", rec.ID, "provider_id", rec.ProviderID, "key_id", rec.KeyID)
	return rec, nil
}

// SetStatus changes a credential's status (admin disable, or manual
// recovery of a StatusFailed credential after investigation).
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status Status) (Record, error) {
	switch status {
	case StatusActive, StatusDisabled, StatusExhausted, StatusFailed:
	default:
		return Record{}, fmt.Errorf("invalid credential status %q", status)
	}
	rec, err := s.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return Record{}, fmt.Errorf("updating credential status: %w", err)
	}
	s.logger.Info("credential status changed", "credential_id", id, "status", status)
	return rec, nil
}

// Delete removes a credential.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}

// ResetDailyUsage zeroes daily counters for every credential.
func (s *Service) ResetDailyUsage(ctx context.Context) error {
	return s.store.ResetDailyUsage(ctx)
}

// ResetMonthlyUsage zeroes monthly counters for every credential.
func (s *Service) ResetMonthlyUsage(ctx context.Context) error {
	return s.store.ResetMonthlyUsage(ctx)
}
