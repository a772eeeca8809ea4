// Package ratelimiter implements Redis sorted-set sliding-window admission
// control across named dimensions (global, per-credential, per-client-IP),
// composited into a single multi-dimension check for each inbound request.
package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dimension names the kind of identifier a limit is keyed on, matching the
// reference rate limiter's identifier_type.
type Dimension string

const (
	DimensionGlobal     Dimension = "global"
	DimensionCredential Dimension = "credential"
	DimensionIP         Dimension = "ip"
)

// Result is the outcome of a single sliding-window check.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter is a Redis-backed sliding-window rate limiter using sorted sets:
// each request adds a timestamped member, and the window is evaluated by
// trimming members older than now-window before counting.
type Limiter struct {
	rdb *redis.Client
}

// New creates a Limiter backed by rdb.
func New(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

func windowKey(dimension Dimension, identifier string) string {
	return fmt.Sprintf("rate_limit:%s:%s", dimension, identifier)
}

// Check evaluates whether identifier is within limit requests per window,
// recording the current request as part of the window if it's allowed, and
// reversing the recorded attempt if it's not (so a rejected request never
// counts against its own next attempt).
func (l *Limiter) Check(ctx context.Context, dimension Dimension, identifier string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 {
		// limit<=0 means "no ceiling configured" for this dimension.
		return Result{Allowed: true, Remaining: -1}, nil
	}

	key := windowKey(dimension, identifier)
	now := time.Now()
	nowScore := float64(now.UnixNano()) / 1e9
	windowStart := nowScore - window.Seconds()
	member := fmt.Sprintf("%d", now.UnixNano())

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%f", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: nowScore, Member: member})
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("checking rate limit: %w", err)
	}

	count := int(countCmd.Val())
	if count >= limit {
		l.rdb.ZRem(ctx, key, member)

		retryAfter := window
		if oldest, err := l.rdb.ZRangeWithScores(ctx, key, 0, 0).Result(); err == nil && len(oldest) > 0 {
			resetAt := time.Unix(0, int64(oldest[0].Score*1e9)).Add(window)
			if d := time.Until(resetAt); d > 0 {
				retryAfter = d
			}
		}
		return Result{Allowed: false, Remaining: 0, ResetAt: now.Add(retryAfter), RetryAfter: retryAfter}, nil
	}

	return Result{Allowed: true, Remaining: limit - count - 1, ResetAt: now.Add(window)}, nil
}

// Reset deletes the window for identifier, used by the admin diagnostics
// endpoint to manually clear a rate limit.
func (l *Limiter) Reset(ctx context.Context, dimension Dimension, identifier string) error {
	return l.rdb.Del(ctx, windowKey(dimension, identifier)).Err()
}

// Usage reports the current window occupancy for identifier without
// recording a new attempt, used by the admin rate-limit-inspection
// endpoint.
func (l *Limiter) Usage(ctx context.Context, dimension Dimension, identifier string, window time.Duration) (int, error) {
	key := windowKey(dimension, identifier)
	now := float64(time.Now().UnixNano()) / 1e9
	windowStart := now - window.Seconds()

	if err := l.rdb.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%f", windowStart)).Err(); err != nil {
		return 0, fmt.Errorf("trimming rate limit window: %w", err)
	}
	count, err := l.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("reading rate limit usage: %w", err)
	}
	return int(count), nil
}
