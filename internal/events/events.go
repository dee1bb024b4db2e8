// Package events persists the append-only log of drift and healing events
// and answers aggregate statistics queries over it.
package events

import (
	"context"
	"time"

	"github.com/sainideep1234/self-healing-agent/internal/domain"
)

// Filter narrows a query. Zero values mean "no constraint".
type Filter struct {
	Endpoint string
	Type     domain.EventType
	Since    time.Time
}

// Stats aggregates events over a time window. SuccessRate is
// 100 * healing_success / healing_started, 0 when nothing started.
type Stats struct {
	Total       int                      `json:"total_events"`
	ByType      map[domain.EventType]int `json:"by_type"`
	SuccessRate float64                  `json:"success_rate"`
}

// Log is the healing event sink contract.
type Log interface {
	// Append records an event and returns its assigned ID.
	Append(ctx context.Context, event *domain.HealingEvent) (string, error)

	// Query returns events matching the filter, newest first, up to limit.
	Query(ctx context.Context, filter Filter, limit int) ([]*domain.HealingEvent, error)

	// Stats aggregates events newer than now-window.
	Stats(ctx context.Context, window time.Duration) (*Stats, error)

	Close() error
}

// computeRate derives the success rate from a by-type histogram.
func computeRate(byType map[domain.EventType]int) float64 {
	started := byType[domain.EventHealingStarted]
	if started == 0 {
		return 0
	}
	succeeded := byType[domain.EventHealingSuccess]
	rate := float64(succeeded) / float64(started) * 100
	return float64(int(rate*100+0.5)) / 100
}
