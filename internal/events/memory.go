package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sainideep1234/self-healing-agent/internal/domain"
)

// MemoryLog is an in-memory event log, used in tests and when no database
// path is configured.
type MemoryLog struct {
	mu     sync.RWMutex
	events []*domain.HealingEvent
}

var _ Log = (*MemoryLog)(nil)

// NewMemory creates an empty in-memory log.
func NewMemory() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Append(_ context.Context, event *domain.HealingEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	copied := *event
	m.events = append(m.events, &copied)
	return event.ID, nil
}

func (m *MemoryLog) Query(_ context.Context, filter Filter, limit int) ([]*domain.HealingEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var result []*domain.HealingEvent
	// Newest first.
	for i := len(m.events) - 1; i >= 0 && len(result) < limit; i-- {
		event := m.events[i]
		if filter.Endpoint != "" && event.Endpoint != filter.Endpoint {
			continue
		}
		if filter.Type != "" && event.Type != filter.Type {
			continue
		}
		if !filter.Since.IsZero() && event.Timestamp.Before(filter.Since) {
			continue
		}
		result = append(result, event)
	}
	return result, nil
}

func (m *MemoryLog) Stats(_ context.Context, window time.Duration) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	since := time.Now().UTC().Add(-window)
	stats := &Stats{ByType: make(map[domain.EventType]int)}
	for _, event := range m.events {
		if event.Timestamp.Before(since) {
			continue
		}
		stats.ByType[event.Type]++
		stats.Total++
	}

	stats.SuccessRate = computeRate(stats.ByType)
	return stats, nil
}

func (m *MemoryLog) Close() error { return nil }
