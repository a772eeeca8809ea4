// Package breaker implements a Redis-backed three-state circuit breaker
// (closed/open/half_open) per upstream provider, so a provider that starts
// failing gets skipped by the fallback executor without every caller
// re-discovering the failure on its own request.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nexusgate/gateway/internal/telemetry"
	"github.com/nexusgate/gateway/pkg/notify"
)

// State is one of the three circuit breaker states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// gaugeValue mirrors CircuitBreakerStateGauge's documented encoding.
func (s State) gaugeValue() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

// Breaker is a per-provider circuit breaker. failureThreshold failures, each
// recorded within recoveryTimeout of the previous one, trip it open; once
// recoveryTimeout has passed it moves to half_open, where a single success
// closes it again and a single failure reopens it. While half_open, every
// caller is admitted until one of those outcomes is recorded; concurrent
// callers are not limited to a single probe.
type Breaker struct {
	rdb              *redis.Client
	notifier         *notify.Registry
	logger           *slog.Logger
	failureThreshold int
	recoveryTimeout  time.Duration
}

// New creates a Breaker. notifier may be nil, in which case state
// transitions are logged but no external alert is sent.
func New(rdb *redis.Client, notifier *notify.Registry, logger *slog.Logger, failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		rdb:              rdb,
		notifier:         notifier,
		logger:           logger,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

func stateKey(providerID uuid.UUID) string    { return fmt.Sprintf("circuit_breaker:%s:state", providerID) }
func failuresKey(providerID uuid.UUID) string { return fmt.Sprintf("circuit_breaker:%s:failures", providerID) }
func openedAtKey(providerID uuid.UUID) string { return fmt.Sprintf("circuit_breaker:%s:opened_at", providerID) }

// State returns the provider's current state, resolving OPEN to HALF_OPEN
// in-place once the recovery timeout has elapsed (the reference
// implementation's get_state behavior).
func (b *Breaker) State(ctx context.Context, providerID uuid.UUID) (State, error) {
	raw, err := b.rdb.Get(ctx, stateKey(providerID)).Result()
	if err == redis.Nil {
		return StateClosed, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading circuit breaker state: %w", err)
	}

	state := State(raw)
	if state != StateOpen {
		return state, nil
	}

	openedAt, err := b.rdb.Get(ctx, openedAtKey(providerID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return state, nil
		}
		return "", fmt.Errorf("reading circuit breaker opened_at: %w", err)
	}
	if time.Since(time.Unix(openedAt, 0)) < b.recoveryTimeout {
		return StateOpen, nil
	}

	if err := b.rdb.Set(ctx, stateKey(providerID), string(StateHalfOpen), 0).Err(); err != nil {
		return "", fmt.Errorf("transitioning circuit breaker to half_open: %w", err)
	}
	telemetry.CircuitBreakerStateGauge.WithLabelValues(providerID.String()).Set(StateHalfOpen.gaugeValue())
	b.logger.Info("circuit breaker transitioned to half_open", "provider_id", providerID)
	return StateHalfOpen, nil
}

// CanExecute reports whether a request may be attempted against providerID:
// true in closed or half_open, false in open. In half_open it returns true
// for every caller, not only the first.
func (b *Breaker) CanExecute(ctx context.Context, providerID uuid.UUID) (bool, error) {
	state, err := b.State(ctx, providerID)
	if err != nil {
		return false, err
	}
	return state != StateOpen, nil
}

// RecordSuccess closes the breaker and clears its failure count. In
// half_open this is the probe succeeding; in closed it is a routine reset
// of a failure streak that never reached the threshold.
func (b *Breaker) RecordSuccess(ctx context.Context, providerID uuid.UUID) error {
	state, err := b.State(ctx, providerID)
	if err != nil {
		return err
	}

	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, stateKey(providerID), string(StateClosed), 0)
	pipe.Del(ctx, failuresKey(providerID))
	pipe.Del(ctx, openedAtKey(providerID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording circuit breaker success: %w", err)
	}

	telemetry.CircuitBreakerStateGauge.WithLabelValues(providerID.String()).Set(StateClosed.gaugeValue())
	if state != StateClosed {
		b.logger.Info("circuit breaker closed", "provider_id", providerID)
		b.notify(ctx, notify.CircuitClosedEvent(providerID.String()))
	}
	return nil
}

// RecordFailure increments the failure counter, renewing its expiry to
// recoveryTimeout, and trips the breaker open once failureThreshold is
// reached. A failure while half_open reopens the breaker immediately
// regardless of the counter.
func (b *Breaker) RecordFailure(ctx context.Context, providerID uuid.UUID) error {
	state, err := b.State(ctx, providerID)
	if err != nil {
		return err
	}

	if state == StateHalfOpen {
		return b.trip(ctx, providerID, 1)
	}

	count, err := b.rdb.Incr(ctx, failuresKey(providerID)).Result()
	if err != nil {
		return fmt.Errorf("incrementing circuit breaker failure count: %w", err)
	}
	if b.recoveryTimeout > 0 {
		if err := b.rdb.Expire(ctx, failuresKey(providerID), b.recoveryTimeout).Err(); err != nil {
			return fmt.Errorf("setting circuit breaker failure count expiry: %w", err)
		}
	}
	if int(count) < b.failureThreshold {
		return nil
	}
	return b.trip(ctx, providerID, count)
}

func (b *Breaker) trip(ctx context.Context, providerID uuid.UUID, failures int64) error {
	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, stateKey(providerID), string(StateOpen), 0)
	pipe.Set(ctx, openedAtKey(providerID), time.Now().Unix(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tripping circuit breaker open: %w", err)
	}

	telemetry.CircuitBreakerStateGauge.WithLabelValues(providerID.String()).Set(StateOpen.gaugeValue())
	b.logger.Warn("circuit breaker opened", "provider_id", providerID, "consecutive_failures", failures)
	b.notify(ctx, notify.CircuitOpenEvent(providerID.String(), int(failures)))
	return nil
}

// Reset forces a provider's breaker back to closed, used by the admin
// circuit-breaker-reset endpoint after an operator confirms the upstream
// has recovered.
func (b *Breaker) Reset(ctx context.Context, providerID uuid.UUID) error {
	return b.RecordSuccess(ctx, providerID)
}

func (b *Breaker) notify(ctx context.Context, event notify.Event) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.NotifyAll(ctx, event); err != nil {
		b.logger.Warn("failed to deliver circuit breaker notification", "error", err)
	}
}
