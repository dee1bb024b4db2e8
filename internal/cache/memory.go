package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sainideep1234/self-healing-agent/internal/domain"
)

const defaultCapacity = 1024

type entry struct {
	mapping   *domain.SchemaMapping
	expiresAt time.Time
}

// Memory is an in-process mapping cache backed by a bounded LRU. Expired
// entries are dropped lazily on read, which bounds staleness without a
// background sweeper.
type Memory struct {
	lru        *lru.Cache[string, entry]
	defaultTTL time.Duration
	now        func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates a memory cache whose entries expire after defaultTTL
// unless Put overrides it.
func NewMemory(defaultTTL time.Duration) *Memory {
	c, _ := lru.New[string, entry](defaultCapacity)
	return &Memory{lru: c, defaultTTL: defaultTTL, now: time.Now}
}

func (m *Memory) Get(_ context.Context, endpoint string) (*domain.SchemaMapping, error) {
	e, ok := m.lru.Get(endpoint)
	if !ok {
		return nil, nil
	}
	if m.now().After(e.expiresAt) {
		m.lru.Remove(endpoint)
		return nil, nil
	}
	return e.mapping, nil
}

func (m *Memory) Put(_ context.Context, endpoint string, mapping *domain.SchemaMapping, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.lru.Add(endpoint, entry{mapping: mapping, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *Memory) Invalidate(_ context.Context, endpoint string) (bool, error) {
	return m.lru.Remove(endpoint), nil
}

func (m *Memory) ListAll(_ context.Context) ([]*domain.SchemaMapping, error) {
	keys := m.lru.Keys()
	mappings := make([]*domain.SchemaMapping, 0, len(keys))
	for _, k := range keys {
		e, ok := m.lru.Peek(k)
		if !ok {
			continue
		}
		if m.now().After(e.expiresAt) {
			m.lru.Remove(k)
			continue
		}
		mappings = append(mappings, e.mapping)
	}
	return mappings, nil
}

func (m *Memory) ClearAll(_ context.Context) (int, error) {
	count := m.lru.Len()
	m.lru.Purge()
	return count, nil
}
