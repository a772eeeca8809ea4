package ratelimiter

import (
	"context"
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

func TestLimiter_Check_AllowsUnderLimit(t *testing.T) {
	rdb := setupTestRedis(t)
	l := New(rdb)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, DimensionIP, "1.2.3.4", 3, time.Minute)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("attempt %d: expected allowed, got rejected", i)
		}
	}
}

func TestLimiter_Check_RejectsOverLimit(t *testing.T) {
	rdb := setupTestRedis(t)
	l := New(rdb)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Check(ctx, DimensionIP, "1.2.3.4", 3, time.Minute); err != nil {
			t.Fatalf("Check: %v", err)
		}
	}

	res, err := l.Check(ctx, DimensionIP, "1.2.3.4", 3, time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected 4th request over a limit of 3 to be rejected")
	}
	if res.RetryAfter <= 0 {
		t.Error("expected a positive RetryAfter on rejection")
	}

	usage, err := l.Usage(ctx, DimensionIP, "1.2.3.4", time.Minute)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage != 3 {
		t.Errorf("Usage = %d, want 3 (rejected attempt must not count)", usage)
	}
}

func TestLimiter_Check_ZeroLimitDisablesDimension(t *testing.T) {
	rdb := setupTestRedis(t)
	l := New(rdb)
	ctx := context.Background()

	res, err := l.Check(ctx, DimensionGlobal, "all", 0, time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Allowed {
		t.Fatal("limit=0 must mean unenforced, not rejected")
	}
}

func TestLimiter_Reset(t *testing.T) {
	rdb := setupTestRedis(t)
	l := New(rdb)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		l.Check(ctx, DimensionCredential, "cred-1", 2, time.Minute)
	}
	if err := l.Reset(ctx, DimensionCredential, "cred-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	res, err := l.Check(ctx, DimensionCredential, "cred-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("Check after reset: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected request to be allowed after Reset")
	}
}

func TestLimiter_CheckRequest_StopsAtFirstRejection(t *testing.T) {
	rdb := setupTestRedis(t)
	l := New(rdb)
	ctx := context.Background()
	credID := uuid.New()

	limits := Limits{Window: time.Minute, GlobalRPM: 1, KeyRPM: 100, IPRPM: 100}

	first, err := l.CheckRequest(ctx, limits, credID, 0, "10.0.0.1")
	if err != nil {
		t.Fatalf("CheckRequest: %v", err)
	}
	if !first.Allowed {
		t.Fatal("expected first request to be allowed")
	}

	second, err := l.CheckRequest(ctx, limits, credID, 0, "10.0.0.1")
	if err != nil {
		t.Fatalf("CheckRequest: %v", err)
	}
	if second.Allowed {
		t.Fatal("expected second request to be rejected by the global RPM ceiling")
	}
	if second.Check != "global_rpm" {
		t.Errorf("Check = %q, want global_rpm", second.Check)
	}
}

func TestLimiter_CheckRequest_TokenCeiling(t *testing.T) {
	rdb := setupTestRedis(t)
	l := New(rdb)
	ctx := context.Background()
	credID := uuid.New()

	limits := Limits{Window: time.Minute, GlobalRPM: 100, GlobalTPM: 100, KeyRPM: 100, IPRPM: 100}

	res, err := l.CheckRequest(ctx, limits, credID, 80, "10.0.0.1")
	if err != nil {
		t.Fatalf("CheckRequest: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected first 80-token request to be allowed")
	}

	res, err = l.CheckRequest(ctx, limits, credID, 80, "10.0.0.1")
	if err != nil {
		t.Fatalf("CheckRequest: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected second 80-token request to exceed the 100 global TPM ceiling")
	}
	if res.Check != "global_tpm" {
		t.Errorf("Check = %q, want global_tpm", res.Check)
	}
}
