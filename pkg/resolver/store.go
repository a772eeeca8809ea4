package resolver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const mappingColumns = `id, alias_name, provider_id, provider_model_name, order_index,
	is_default, config_json, created_at, updated_at`

// Store provides raw database access to the model_mappings table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a resolver Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanMapping(row pgx.Row) (Mapping, error) {
	var m Mapping
	var configJSON []byte
	err := row.Scan(&m.ID, &m.AliasName, &m.ProviderID, &m.ProviderModelName, &m.OrderIndex,
		&m.IsDefault, &configJSON, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Mapping{}, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &m.Config); err != nil {
			return Mapping{}, fmt.Errorf("decoding mapping config: %w", err)
		}
	}
	return m, nil
}

func scanMappings(rows pgx.Rows) ([]Mapping, error) {
	defer rows.Close()
	var out []Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning model mapping row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetProviderMapping returns the ordered fallback chain for an alias, the
// direct translation of the reference mapper's get_provider_mapping.
func (s *Store) GetProviderMapping(ctx context.Context, aliasName string) ([]Mapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+mappingColumns+` FROM model_mappings WHERE alias_name = $1 ORDER BY order_index`,
		aliasName)
	if err != nil {
		return nil, fmt.Errorf("querying model mappings: %w", err)
	}
	return scanMappings(rows)
}

// Get returns a single mapping by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Mapping, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+mappingColumns+` FROM model_mappings WHERE id = $1`, id)
	return scanMapping(row)
}

// ListAliases returns every distinct configured alias, for the /v1/models
// listing (the reference proxy's api/v1.py exposes the union of configured
// aliases, not the upstream providers' own model catalogs).
func (s *Store) ListAliases(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT alias_name FROM model_mappings ORDER BY alias_name`)
	if err != nil {
		return nil, fmt.Errorf("listing model aliases: %w", err)
	}
	defer rows.Close()

	var aliases []string
	for rows.Next() {
		var alias string
		if err := rows.Scan(&alias); err != nil {
			return nil, fmt.Errorf("scanning model alias: %w", err)
		}
		aliases = append(aliases, alias)
	}
	return aliases, rows.Err()
}

// List returns every mapping, optionally filtered by alias and/or provider
// (an empty aliasName or a nil providerID skips that filter), ordered for
// display in the admin CRUD surface.
func (s *Store) List(ctx context.Context, aliasName string, providerID uuid.UUID) ([]Mapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM model_mappings WHERE ($1 = '' OR alias_name = $1) AND ($2::uuid IS NULL OR provider_id = $2) ORDER BY alias_name, order_index`
	var providerFilter *uuid.UUID
	if providerID != uuid.Nil {
		providerFilter = &providerID
	}
	rows, err := s.pool.Query(ctx, query, aliasName, providerFilter)
	if err != nil {
		return nil, fmt.Errorf("listing model mappings: %w", err)
	}
	return scanMappings(rows)
}

// ClearDefault unsets is_default on every existing mapping for an alias,
// except id (id may be uuid.Nil to unset all of them), mirroring the
// reference's unset-other-defaults behavior around a new or updated default.
func (s *Store) ClearDefault(ctx context.Context, tx pgx.Tx, aliasName string, exceptID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE model_mappings SET is_default = false WHERE alias_name = $1 AND is_default = true AND id != $2`,
		aliasName, exceptID)
	if err != nil {
		return fmt.Errorf("clearing prior default mapping: %w", err)
	}
	return nil
}

// CreateParams holds the fields required to create a mapping.
type CreateParams struct {
	AliasName         string
	ProviderID        uuid.UUID
	ProviderModelName string
	OrderIndex        int
	IsDefault         bool
	Config            map[string]any
}

// Create inserts a new mapping, clearing any prior default for the alias
// first if this one is marked default.
func (s *Store) Create(ctx context.Context, p CreateParams) (Mapping, error) {
	configJSON, err := json.Marshal(p.Config)
	if err != nil {
		return Mapping{}, fmt.Errorf("encoding mapping config: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Mapping{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if p.IsDefault {
		if err := s.ClearDefault(ctx, tx, p.AliasName, uuid.Nil); err != nil {
			return Mapping{}, err
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO model_mappings (alias_name, provider_id, provider_model_name, order_index, is_default, config_json)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+mappingColumns,
		p.AliasName, p.ProviderID, p.ProviderModelName, p.OrderIndex, p.IsDefault, configJSON)
	m, err := scanMapping(row)
	if err != nil {
		return Mapping{}, fmt.Errorf("creating model mapping: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Mapping{}, fmt.Errorf("committing model mapping: %w", err)
	}
	return m, nil
}

// UpdateParams holds the optional fields accepted by Update; nil means
// "leave unchanged", matching the reference update_mapping's partial-update
// semantics.
type UpdateParams struct {
	ProviderModelName *string
	OrderIndex        *int
	IsDefault         *bool
	Config            map[string]any
}

// Update partially updates a mapping, clearing prior defaults for its
// alias first if IsDefault is being set true.
func (s *Store) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (Mapping, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Mapping{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := scanMapping(tx.QueryRow(ctx, `SELECT `+mappingColumns+` FROM model_mappings WHERE id = $1`, id))
	if err != nil {
		return Mapping{}, fmt.Errorf("loading model mapping: %w", err)
	}

	if p.IsDefault != nil && *p.IsDefault {
		if err := s.ClearDefault(ctx, tx, existing.AliasName, id); err != nil {
			return Mapping{}, err
		}
	}

	modelName := existing.ProviderModelName
	if p.ProviderModelName != nil {
		modelName = *p.ProviderModelName
	}
	orderIndex := existing.OrderIndex
	if p.OrderIndex != nil {
		orderIndex = *p.OrderIndex
	}
	isDefault := existing.IsDefault
	if p.IsDefault != nil {
		isDefault = *p.IsDefault
	}
	config := existing.Config
	if p.Config != nil {
		config = p.Config
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return Mapping{}, fmt.Errorf("encoding mapping config: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE model_mappings
		SET provider_model_name = $2, order_index = $3, is_default = $4, config_json = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+mappingColumns,
		id, modelName, orderIndex, isDefault, configJSON)
	m, err := scanMapping(row)
	if err != nil {
		return Mapping{}, fmt.Errorf("updating model mapping: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Mapping{}, fmt.Errorf("committing model mapping update: %w", err)
	}
	return m, nil
}

// Delete removes a mapping by id.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM model_mappings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting model mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
