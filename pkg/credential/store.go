package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const credentialColumns = `id, provider_id, key_id, key_encrypted, priority, status,
	rate_limit_rpm, rate_limit_tpm, daily_quota, monthly_quota,
	current_daily_usage, current_monthly_usage, consecutive_failures,
	last_used_at, last_failed_at, created_at`

// Store provides raw database access to the credentials table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a credential Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	var status string
	err := row.Scan(&r.ID, &r.ProviderID, &r.KeyID, &r.KeyEncrypted, &r.Priority, &status,
		&r.RateLimitRPM, &r.RateLimitTPM, &r.DailyQuota, &r.MonthlyQuota,
		&r.CurrentDailyUsage, &r.CurrentMonthlyUsage, &r.ConsecutiveFailures,
		&r.LastUsedAt, &r.LastFailedAt, &r.CreatedAt)
	r.Status = Status(status)
	return r, err
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning credential row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListByProvider returns every credential (any status) bound to a provider,
// ordered by priority so callers without a Selector still see a sane order.
func (s *Store) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE provider_id = $1 ORDER BY priority, id`,
		providerID)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	return scanRecords(rows)
}

// Get returns a single credential by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id)
	return scanRecord(row)
}

// CreateParams holds the fields required to create a credential.
type CreateParams struct {
	ProviderID   uuid.UUID
	KeyID        string
	KeyEncrypted string
	Priority     int
	RateLimitRPM int
	RateLimitTPM int
	DailyQuota   int
	MonthlyQuota int
}

// Create inserts a new credential in status=active.
func (s *Store) Create(ctx context.Context, p CreateParams) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO credentials (provider_id, key_id, key_encrypted, priority, status,
			rate_limit_rpm, rate_limit_tpm, daily_quota, monthly_quota)
		VALUES ($1, $2, $3, $4, 'active', $5, $6, $7, $8)
		RETURNING `+credentialColumns,
		p.ProviderID, p.KeyID, p.KeyEncrypted, p.Priority, p.RateLimitRPM, p.RateLimitTPM,
		p.DailyQuota, p.MonthlyQuota,
	)
	return scanRecord(row)
}

// UpdateStatus sets a credential's status directly (admin disable/enable,
// or manual recovery after investigating a StatusFailed credential).
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE credentials SET status = $2 WHERE id = $1 RETURNING `+credentialColumns,
		id, string(status))
	return scanRecord(row)
}

// Delete removes a credential by id.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RecordUsage updates the daily/monthly counters and failure tracking for a
// completed attempt, mirroring the reference key manager's record_usage.
func (s *Store) RecordUsage(ctx context.Context, id uuid.UUID, success bool) error {
	now := time.Now()
	if success {
		_, err := s.pool.Exec(ctx, `
			UPDATE credentials
			SET current_daily_usage = current_daily_usage + 1,
			    current_monthly_usage = current_monthly_usage + 1,
			    consecutive_failures = 0,
			    last_used_at = $2
			WHERE id = $1`, id, now)
		return err
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE credentials
		SET current_daily_usage = current_daily_usage + 1,
		    current_monthly_usage = current_monthly_usage + 1,
		    consecutive_failures = consecutive_failures + 1,
		    last_failed_at = $2,
		    status = CASE WHEN consecutive_failures + 1 >= $3 THEN 'failed' ELSE status END
		WHERE id = $1`, id, now, failedThreshold)
	return err
}

// ResetDailyUsage zeroes current_daily_usage for every credential. Invoked
// by the quota-reset worker (runWorker in internal/app).
func (s *Store) ResetDailyUsage(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `UPDATE credentials SET current_daily_usage = 0`)
	return err
}

// ResetMonthlyUsage zeroes current_monthly_usage for every credential.
func (s *Store) ResetMonthlyUsage(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `UPDATE credentials SET current_monthly_usage = 0`)
	return err
}
