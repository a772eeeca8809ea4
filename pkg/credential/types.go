// Package credential selects, tracks, and ages out provider API keys: it
// applies an eligibility filter (status, failure count, quotas, rate
// ceilings) and then a selection strategy (priority, least-used, or
// round-robin) to pick the credential a fallback attempt should use.
package credential

import (
	"time"

	"github.com/google/uuid"
)

// Status is a Credential's operational status.
type Status string

const (
	StatusActive    Status = "active"
	StatusDisabled  Status = "disabled"
	StatusExhausted Status = "exhausted"
	StatusFailed    Status = "failed"
)

// Strategy is a key-selection policy for load balancing across a
// provider's eligible credentials.
type Strategy string

const (
	StrategyPriority   Strategy = "priority"
	StrategyLeastUsed  Strategy = "least_used"
	StrategyRoundRobin Strategy = "round_robin"
)

// maxConsecutiveFailures disqualifies a credential from selection before it
// is forced to StatusFailed at failedThreshold.
const maxConsecutiveFailures = 5

// failedThreshold is the consecutive-failure count at which a credential is
// automatically moved to StatusFailed.
const failedThreshold = 10

// Record is a provider API key, as persisted. KeyEncrypted is opaque
// ciphertext; callers must decrypt it via a Cipher before use.
type Record struct {
	ID                   uuid.UUID
	ProviderID           uuid.UUID
	KeyID                string
	KeyEncrypted         string
	Priority             int
	Status               Status
	RateLimitRPM         int
	RateLimitTPM         int
	DailyQuota           int
	MonthlyQuota         int
	CurrentDailyUsage    int
	CurrentMonthlyUsage  int
	ConsecutiveFailures  int
	LastUsedAt           *time.Time
	LastFailedAt         *time.Time
	CreatedAt            time.Time
}

// quotaEligible reports whether the credential is active, has fewer than
// maxConsecutiveFailures consecutive failures, and has room left under its
// daily/monthly quotas (0 = unlimited). Rate-limit-window eligibility is
// checked separately against Redis by the Selector.
func (r Record) quotaEligible() bool {
	if r.Status != StatusActive {
		return false
	}
	if r.ConsecutiveFailures >= maxConsecutiveFailures {
		return false
	}
	if r.DailyQuota > 0 && r.CurrentDailyUsage >= r.DailyQuota {
		return false
	}
	if r.MonthlyQuota > 0 && r.CurrentMonthlyUsage >= r.MonthlyQuota {
		return false
	}
	return true
}
