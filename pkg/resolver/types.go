// Package resolver maps a client-facing model alias onto an ordered list of
// provider mappings, each pairing a provider with the provider-specific
// model name and per-mapping request overrides the fallback executor tries
// in turn.
package resolver

import (
	"time"

	"github.com/google/uuid"
)

// Mapping is one entry in an alias's ordered fallback chain.
type Mapping struct {
	ID                uuid.UUID
	AliasName         string
	ProviderID        uuid.UUID
	ProviderModelName string
	OrderIndex        int
	IsDefault         bool
	Config            map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
