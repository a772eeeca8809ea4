package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service wraps Store with validation and logging, mirroring the teacher's
// Store/Service split for admin-managed resources.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates a provider Service backed by the given pool.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{store: NewStore(pool), logger: logger}
}

// List returns all configured providers.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	return s.store.List(ctx)
}

// Get returns a single provider by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	return s.store.Get(ctx, id)
}

// Create validates and inserts a new provider.
func (s *Service) Create(ctx context.Context, p CreateParams) (Record, error) {
	if p.Kind != KindOpenAI && p.Kind != KindMock {
		return Record{}, fmt.Errorf("unsupported provider kind %q", p.Kind)
	}
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = 30
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	rec, err := s.store.Create(ctx, p)
	if err != nil {
		return Record{}, fmt.Errorf("creating provider: %w", err)
	}
	s.logger.Info("provider created", "provider_id", rec.ID, "name", rec.Name, "kind", rec.Kind)
	return rec, nil
}

// Update validates and applies changes to an existing provider.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (Record, error) {
	switch p.Status {
	case StatusActive, StatusDisabled, StatusMaintenance:
	default:
		return Record{}, fmt.Errorf("invalid provider status %q", p.Status)
	}
	rec, err := s.store.Update(ctx, id, p)
	if err != nil {
		return Record{}, fmt.Errorf("updating provider: %w", err)
	}
	s.logger.Info("provider updated", "provider_id", rec.ID, "status", rec.Status)
	return rec, nil
}

// Delete removes a provider.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting provider: %w", err)
	}
	return nil
}

// AdapterFor builds the live Adapter for a provider record, given a
// decrypted credential value supplied by the credential store.
func AdapterFor(rec Record, apiKey string) (Adapter, error) {
	return NewAdapter(rec.Kind, Config{
		BaseURL:        rec.BaseURL,
		APIKey:         apiKey,
		TimeoutSeconds: rec.TimeoutSeconds,
	})
}
