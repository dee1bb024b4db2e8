package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sainideep1234/self-healing-agent/internal/domain"
)

func mappingFor(endpoint string) *domain.SchemaMapping {
	return &domain.SchemaMapping{
		Endpoint: endpoint,
		Version:  1,
		FieldMappings: []domain.FieldMapping{
			{SourceField: "uid", TargetField: "user_id", Confidence: 0.9},
		},
		CreatedBy: domain.OriginAuto,
	}
}

func TestMemoryGetPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	got, err := m.Get(ctx, "/api/users/1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Get() = %+v, want nil on miss", got)
	}

	if err := m.Put(ctx, "/api/users/1", mappingFor("/api/users/1"), 0); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err = m.Get(ctx, "/api/users/1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.Endpoint != "/api/users/1" {
		t.Fatalf("Get() = %+v, want cached mapping", got)
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	current := time.Now()
	m.now = func() time.Time { return current }

	m.Put(ctx, "/api/users/1", mappingFor("/api/users/1"), time.Minute)

	if got, _ := m.Get(ctx, "/api/users/1"); got == nil {
		t.Fatal("Get() = nil before expiry")
	}

	current = current.Add(2 * time.Minute)
	if got, _ := m.Get(ctx, "/api/users/1"); got != nil {
		t.Fatalf("Get() = %+v after expiry, want nil", got)
	}
}

func TestMemoryPerEntryTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	current := time.Now()
	m.now = func() time.Time { return current }

	m.Put(ctx, "/short", mappingFor("/short"), time.Minute)
	m.Put(ctx, "/long", mappingFor("/long"), time.Hour)

	current = current.Add(10 * time.Minute)

	if got, _ := m.Get(ctx, "/short"); got != nil {
		t.Error("short-TTL entry survived past its expiry")
	}
	if got, _ := m.Get(ctx, "/long"); got == nil {
		t.Error("long-TTL entry expired early")
	}
}

func TestMemoryInvalidate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)
	m.Put(ctx, "/api/users/1", mappingFor("/api/users/1"), 0)

	deleted, err := m.Invalidate(ctx, "/api/users/1")
	if err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if !deleted {
		t.Error("Invalidate() = false, want true")
	}

	deleted, _ = m.Invalidate(ctx, "/api/users/1")
	if deleted {
		t.Error("Invalidate() = true for absent entry, want false")
	}
}

func TestMemoryListAllSkipsExpired(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	current := time.Now()
	m.now = func() time.Time { return current }

	m.Put(ctx, "/a", mappingFor("/a"), time.Minute)
	m.Put(ctx, "/b", mappingFor("/b"), time.Hour)

	current = current.Add(10 * time.Minute)

	all, err := m.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 1 || all[0].Endpoint != "/b" {
		t.Errorf("ListAll() = %v, want only /b", all)
	}
}

func TestMemoryClearAll(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)
	m.Put(ctx, "/a", mappingFor("/a"), 0)
	m.Put(ctx, "/b", mappingFor("/b"), 0)

	count, err := m.ClearAll(ctx)
	if err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if count != 2 {
		t.Errorf("ClearAll() = %d, want 2", count)
	}
	if got, _ := m.Get(ctx, "/a"); got != nil {
		t.Error("entry survived ClearAll")
	}
}

// failingStore errors on every call, for exercising the degrading wrapper.
type failingStore struct{}

var errStore = errors.New("store down")

func (failingStore) Get(context.Context, string) (*domain.SchemaMapping, error) {
	return nil, errStore
}
func (failingStore) Put(context.Context, string, *domain.SchemaMapping, time.Duration) error {
	return errStore
}
func (failingStore) Invalidate(context.Context, string) (bool, error) { return false, errStore }
func (failingStore) ListAll(context.Context) ([]*domain.SchemaMapping, error) {
	return nil, errStore
}
func (failingStore) ClearAll(context.Context) (int, error) { return 0, errStore }

func TestDegradingSwallowsFailures(t *testing.T) {
	ctx := context.Background()
	d := NewDegrading(failingStore{}, nil)

	if got, err := d.Get(ctx, "/a"); err != nil || got != nil {
		t.Errorf("Get() = (%v, %v), want miss with nil error", got, err)
	}
	if err := d.Put(ctx, "/a", mappingFor("/a"), 0); err != nil {
		t.Errorf("Put() error = %v, want nil", err)
	}
	if deleted, err := d.Invalidate(ctx, "/a"); err != nil || deleted {
		t.Errorf("Invalidate() = (%v, %v), want (false, nil)", deleted, err)
	}
	if all, err := d.ListAll(ctx); err != nil || all != nil {
		t.Errorf("ListAll() = (%v, %v), want (nil, nil)", all, err)
	}
	if count, err := d.ClearAll(ctx); err != nil || count != 0 {
		t.Errorf("ClearAll() = (%v, %v), want (0, nil)", count, err)
	}
}
