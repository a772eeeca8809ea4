package credential

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// roundRobinTTL is how long an idle provider's round-robin counter survives
// before the next selection restarts from index 0.
const roundRobinTTL = time.Hour

// Selector applies the eligibility filter and a selection strategy to pick
// a credential for a fallback attempt.
type Selector struct {
	store *Store
	rdb   *redis.Client
}

// NewSelector creates a Selector backed by store and rdb.
func NewSelector(store *Store, rdb *redis.Client) *Selector {
	return &Selector{store: store, rdb: rdb}
}

// Select returns the credential a fallback attempt should use for
// providerID under strategy, or nil if none are eligible.
func (s *Selector) Select(ctx context.Context, providerID uuid.UUID, strategy Strategy) (*Record, error) {
	records, err := s.store.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}

	eligible, err := s.filterEligible(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("filtering eligible credentials: %w", err)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	switch strategy {
	case StrategyLeastUsed:
		return selectMin(eligible, func(r Record) int { return r.CurrentDailyUsage }), nil
	case StrategyRoundRobin:
		return s.selectRoundRobin(ctx, providerID, eligible)
	default: // StrategyPriority
		return selectMin(eligible, func(r Record) int { return r.Priority }), nil
	}
}

// filterEligible applies status/failure/quota checks (in-process) followed
// by the Redis-backed RPM/TPM window checks.
func (s *Selector) filterEligible(ctx context.Context, records []Record) ([]Record, error) {
	var out []Record
	for _, r := range records {
		if !r.quotaEligible() {
			continue
		}
		ok, err := s.withinRateCeilings(ctx, r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Selector) withinRateCeilings(ctx context.Context, r Record) (bool, error) {
	if r.RateLimitRPM > 0 {
		n, err := s.rdb.Get(ctx, rpmKey(r.ID)).Int()
		if err != nil && err != redis.Nil {
			return false, err
		}
		if n >= r.RateLimitRPM {
			return false, nil
		}
	}
	if r.RateLimitTPM > 0 {
		n, err := s.rdb.Get(ctx, tpmKey(r.ID)).Int()
		if err != nil && err != redis.Nil {
			return false, err
		}
		if n >= r.RateLimitTPM {
			return false, nil
		}
	}
	return true, nil
}

func (s *Selector) selectRoundRobin(ctx context.Context, providerID uuid.UUID, eligible []Record) (*Record, error) {
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID.String() < eligible[j].ID.String() })

	key := roundRobinKey(providerID)
	idx, err := s.rdb.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	selected := eligible[idx%len(eligible)]
	next := (idx + 1) % len(eligible)
	if err := s.rdb.Set(ctx, key, next, roundRobinTTL).Err(); err != nil {
		return nil, err
	}
	return &selected, nil
}

// RecordUsage updates persistent counters and the Redis-backed RPM/TPM
// windows after an attempt completes.
func (s *Selector) RecordUsage(ctx context.Context, id uuid.UUID, tokensUsed int, success bool) error {
	if err := s.store.RecordUsage(ctx, id, success); err != nil {
		return fmt.Errorf("recording credential usage: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Incr(ctx, rpmKey(id))
	pipe.Expire(ctx, rpmKey(id), time.Minute)
	if tokensUsed > 0 {
		pipe.IncrBy(ctx, tpmKey(id), int64(tokensUsed))
		pipe.Expire(ctx, tpmKey(id), time.Minute)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func rpmKey(id uuid.UUID) string        { return fmt.Sprintf("rate_limit:credential:%s:rpm", id) }
func tpmKey(id uuid.UUID) string        { return fmt.Sprintf("rate_limit:credential:%s:tpm", id) }
func roundRobinKey(id uuid.UUID) string { return fmt.Sprintf("round_robin:provider:%s", id) }

func selectMin(records []Record, key func(Record) int) *Record {
	best := records[0]
	for _, r := range records[1:] {
		if key(r) < key(best) || (key(r) == key(best) && r.ID.String() < best.ID.String()) {
			best = r
		}
	}
	return &best
}
