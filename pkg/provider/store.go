package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is a Provider's operational status, set by admins and read by the
// fallback executor to decide whether a provider is eligible at all.
type Status string

const (
	StatusActive      Status = "active"
	StatusDisabled    Status = "disabled"
	StatusMaintenance Status = "maintenance"
)

// Record is a configured upstream provider, as persisted.
type Record struct {
	ID              uuid.UUID
	Name            string
	Kind            Kind
	BaseURL         string
	Config          map[string]any
	Status          Status
	TimeoutSeconds  int
	MaxRetries      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Eligible reports whether the provider can be used at all (independent of
// its circuit-breaker state, which the fallback executor checks separately).
func (r Record) Eligible() bool { return r.Status == StatusActive }

const providerColumns = `id, name, kind, base_url, config, status, timeout_seconds, max_retries, created_at, updated_at`

// Store provides raw database access to the providers table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a provider Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	var kind, status string
	err := row.Scan(&r.ID, &r.Name, &kind, &r.BaseURL, &r.Config, &status,
		&r.TimeoutSeconds, &r.MaxRetries, &r.CreatedAt, &r.UpdatedAt)
	r.Kind = Kind(kind)
	r.Status = Status(status)
	return r, err
}

// Get returns the provider with the given id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	return scanRecord(row)
}

// GetByName returns the provider with the given unique name.
func (s *Store) GetByName(ctx context.Context, name string) (Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE name = $1`, name)
	return scanRecord(row)
}

// List returns all providers ordered by name.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing providers: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning provider row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateParams holds the fields required to create a provider.
type CreateParams struct {
	Name           string
	Kind           Kind
	BaseURL        string
	Config         map[string]any
	TimeoutSeconds int
	MaxRetries     int
}

// Create inserts a new provider in status=active.
func (s *Store) Create(ctx context.Context, p CreateParams) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO providers (name, kind, base_url, config, status, timeout_seconds, max_retries)
		VALUES ($1, $2, $3, $4, 'active', $5, $6)
		RETURNING `+providerColumns,
		p.Name, string(p.Kind), p.BaseURL, p.Config, p.TimeoutSeconds, p.MaxRetries,
	)
	return scanRecord(row)
}

// UpdateParams holds the mutable fields of a provider update.
type UpdateParams struct {
	BaseURL        string
	Config         map[string]any
	Status         Status
	TimeoutSeconds int
	MaxRetries     int
}

// Update modifies an existing provider's mutable fields.
func (s *Store) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE providers
		SET base_url = $2, config = $3, status = $4, timeout_seconds = $5, max_retries = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+providerColumns,
		id, p.BaseURL, p.Config, string(p.Status), p.TimeoutSeconds, p.MaxRetries,
	)
	return scanRecord(row)
}

// Delete removes a provider by id.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM providers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
