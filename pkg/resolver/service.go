package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service wraps Store with validation and logging for the admin CRUD
// surface and the fallback executor's lookups.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates a resolver Service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{store: NewStore(pool), logger: logger}
}

// Resolve returns the ordered fallback chain for a model alias. An empty,
// non-error result means the alias has no mappings configured.
func (s *Service) Resolve(ctx context.Context, aliasName string) ([]Mapping, error) {
	mappings, err := s.store.GetProviderMapping(ctx, aliasName)
	if err != nil {
		return nil, fmt.Errorf("resolving model alias %q: %w", aliasName, err)
	}
	return mappings, nil
}

// Default returns the first mapping for an alias (mappings are always
// returned order_index-ascending, so this is also the chain's head), or
// false if the alias has no mappings.
func (s *Service) Default(ctx context.Context, aliasName string) (Mapping, bool, error) {
	mappings, err := s.Resolve(ctx, aliasName)
	if err != nil {
		return Mapping{}, false, err
	}
	if len(mappings) == 0 {
		return Mapping{}, false, nil
	}
	return mappings[0], true, nil
}

// ListAliases returns every distinct configured model alias.
func (s *Service) ListAliases(ctx context.Context) ([]string, error) {
	return s.store.ListAliases(ctx)
}

// List proxies to the store for the admin CRUD surface.
func (s *Service) List(ctx context.Context, aliasName string, providerID uuid.UUID) ([]Mapping, error) {
	return s.store.List(ctx, aliasName, providerID)
}

// Get proxies to the store for the admin CRUD surface.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Mapping, error) {
	return s.store.Get(ctx, id)
}

// Create validates and inserts a new mapping.
func (s *Service) Create(ctx context.Context, p CreateParams) (Mapping, error) {
	if p.AliasName == "" {
		return Mapping{}, fmt.Errorf("alias_name must not be empty")
	}
	if p.ProviderModelName == "" {
		return Mapping{}, fmt.Errorf("provider_model_name must not be empty")
	}
	m, err := s.store.Create(ctx, p)
	if err != nil {
		return Mapping{}, fmt.Errorf("creating model mapping: %w", err)
	}
	s.logger.Info("model mapping created", "mapping_id", m.ID, "alias", m.AliasName, "provider_id", m.ProviderID)
	return m, nil
}

// Update validates and partially updates a mapping.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (Mapping, error) {
	if p.ProviderModelName != nil && *p.ProviderModelName == "" {
		return Mapping{}, fmt.Errorf("provider_model_name must not be empty")
	}
	m, err := s.store.Update(ctx, id, p)
	if err != nil {
		return Mapping{}, fmt.Errorf("updating model mapping: %w", err)
	}
	s.logger.Info("model mapping updated", "mapping_id", m.ID, "alias", m.AliasName)
	return m, nil
}

// Delete removes a mapping.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting model mapping: %w", err)
	}
	return nil
}
