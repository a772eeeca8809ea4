package breaker

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(noopWriter{}, nil))
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestBreaker_StartsClosed(t *testing.T) {
	b := New(setupTestRedis(t), nil, discardLogger(), 3, time.Minute)
	providerID := uuid.New()
	ctx := context.Background()

	state, err := b.State(ctx, providerID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != StateClosed {
		t.Errorf("State = %v, want closed", state)
	}
	ok, err := b.CanExecute(ctx, providerID)
	if err != nil {
		t.Fatalf("CanExecute: %v", err)
	}
	if !ok {
		t.Error("expected CanExecute true for a fresh provider")
	}
}

func TestBreaker_TripsOpenAtThreshold(t *testing.T) {
	b := New(setupTestRedis(t), nil, discardLogger(), 3, time.Minute)
	providerID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := b.RecordFailure(ctx, providerID); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	state, _ := b.State(ctx, providerID)
	if state != StateClosed {
		t.Fatalf("State after 2 failures = %v, want still closed (threshold 3)", state)
	}

	if err := b.RecordFailure(ctx, providerID); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	state, _ = b.State(ctx, providerID)
	if state != StateOpen {
		t.Fatalf("State after 3 failures = %v, want open", state)
	}

	ok, err := b.CanExecute(ctx, providerID)
	if err != nil {
		t.Fatalf("CanExecute: %v", err)
	}
	if ok {
		t.Error("expected CanExecute false while open")
	}
}

func TestBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	b := New(setupTestRedis(t), nil, discardLogger(), 1, 10*time.Millisecond)
	providerID := uuid.New()
	ctx := context.Background()

	if err := b.RecordFailure(ctx, providerID); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	state, _ := b.State(ctx, providerID)
	if state != StateOpen {
		t.Fatalf("State = %v, want open", state)
	}

	time.Sleep(20 * time.Millisecond)

	state, err := b.State(ctx, providerID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != StateHalfOpen {
		t.Fatalf("State after recovery timeout = %v, want half_open", state)
	}
}

func TestBreaker_FailureDuringHalfOpenReopens(t *testing.T) {
	b := New(setupTestRedis(t), nil, discardLogger(), 1, 10*time.Millisecond)
	providerID := uuid.New()
	ctx := context.Background()

	b.RecordFailure(ctx, providerID)
	time.Sleep(20 * time.Millisecond)
	b.State(ctx, providerID) // transitions to half_open as a side effect

	if err := b.RecordFailure(ctx, providerID); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	state, _ := b.State(ctx, providerID)
	if state != StateOpen {
		t.Fatalf("State after half_open failure = %v, want open", state)
	}
}

func TestBreaker_SuccessClosesFromHalfOpen(t *testing.T) {
	b := New(setupTestRedis(t), nil, discardLogger(), 1, 10*time.Millisecond)
	providerID := uuid.New()
	ctx := context.Background()

	b.RecordFailure(ctx, providerID)
	time.Sleep(20 * time.Millisecond)
	b.State(ctx, providerID)

	if err := b.RecordSuccess(ctx, providerID); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	state, _ := b.State(ctx, providerID)
	if state != StateClosed {
		t.Fatalf("State after success = %v, want closed", state)
	}
	ok, _ := b.CanExecute(ctx, providerID)
	if !ok {
		t.Error("expected CanExecute true after closing")
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := New(setupTestRedis(t), nil, discardLogger(), 1, time.Minute)
	providerID := uuid.New()
	ctx := context.Background()

	b.RecordFailure(ctx, providerID)
	state, _ := b.State(ctx, providerID)
	if state != StateOpen {
		t.Fatalf("State = %v, want open", state)
	}

	if err := b.Reset(ctx, providerID); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	state, _ = b.State(ctx, providerID)
	if state != StateClosed {
		t.Fatalf("State after Reset = %v, want closed", state)
	}
}
