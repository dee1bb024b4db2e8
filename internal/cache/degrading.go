package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/sainideep1234/self-healing-agent/internal/domain"
)

// Degrading wraps a Store so that backing-store failures never reach the
// caller: a failed Get is a miss, a failed Put or Invalidate is a no-op.
// Caching is best-effort relative to the forwarding function, so every call
// site treats a cache failure identically to "no mapping available".
type Degrading struct {
	inner  Store
	logger *slog.Logger
}

var _ Store = (*Degrading)(nil)

// NewDegrading wraps inner with log-and-continue failure handling.
func NewDegrading(inner Store, logger *slog.Logger) *Degrading {
	if logger == nil {
		logger = slog.Default()
	}
	return &Degrading{inner: inner, logger: logger}
}

func (d *Degrading) Get(ctx context.Context, endpoint string) (*domain.SchemaMapping, error) {
	m, err := d.inner.Get(ctx, endpoint)
	if err != nil {
		d.logger.Warn("mapping cache get failed, treating as miss",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return m, nil
}

func (d *Degrading) Put(ctx context.Context, endpoint string, m *domain.SchemaMapping, ttl time.Duration) error {
	if err := d.inner.Put(ctx, endpoint, m, ttl); err != nil {
		d.logger.Warn("mapping cache put failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (d *Degrading) Invalidate(ctx context.Context, endpoint string) (bool, error) {
	deleted, err := d.inner.Invalidate(ctx, endpoint)
	if err != nil {
		d.logger.Warn("mapping cache invalidate failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	return deleted, nil
}

func (d *Degrading) ListAll(ctx context.Context) ([]*domain.SchemaMapping, error) {
	mappings, err := d.inner.ListAll(ctx)
	if err != nil {
		d.logger.Warn("mapping cache list failed", slog.String("error", err.Error()))
		return nil, nil
	}
	return mappings, nil
}

func (d *Degrading) ClearAll(ctx context.Context) (int, error) {
	count, err := d.inner.ClearAll(ctx)
	if err != nil {
		d.logger.Warn("mapping cache clear failed", slog.String("error", err.Error()))
		return 0, nil
	}
	return count, nil
}
