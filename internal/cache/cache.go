// Package cache stores validated schema mappings per endpoint with a TTL.
package cache

import (
	"context"
	"time"

	"github.com/sainideep1234/self-healing-agent/internal/domain"
)

// Store is the mapping cache contract. A miss is (nil, nil); errors indicate
// the backing store failed. Callers that must never see a store failure wrap
// a Store with Degrading.
type Store interface {
	// Get returns the cached mapping for an endpoint, or nil on a miss.
	Get(ctx context.Context, endpoint string) (*domain.SchemaMapping, error)

	// Put caches a mapping for an endpoint. A zero ttl uses the store default.
	Put(ctx context.Context, endpoint string, m *domain.SchemaMapping, ttl time.Duration) error

	// Invalidate removes the cached mapping for an endpoint, reporting
	// whether one existed.
	Invalidate(ctx context.Context, endpoint string) (bool, error)

	// ListAll returns every live cached mapping.
	ListAll(ctx context.Context) ([]*domain.SchemaMapping, error)

	// ClearAll removes all cached mappings and returns how many were removed.
	ClearAll(ctx context.Context) (int, error)
}
