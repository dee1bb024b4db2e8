package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/sainideep1234/self-healing-agent/internal/domain"
)

// BestEffort wraps a Log so that store failures never block or fail the
// request path: append failures are logged and swallowed, query failures
// yield empty results.
type BestEffort struct {
	inner  Log
	logger *slog.Logger
}

var _ Log = (*BestEffort)(nil)

// NewBestEffort wraps inner with log-and-continue failure handling.
func NewBestEffort(inner Log, logger *slog.Logger) *BestEffort {
	if logger == nil {
		logger = slog.Default()
	}
	return &BestEffort{inner: inner, logger: logger}
}

func (b *BestEffort) Append(ctx context.Context, event *domain.HealingEvent) (string, error) {
	id, err := b.inner.Append(ctx, event)
	if err != nil {
		b.logger.Warn("event append failed",
			slog.String("event_type", string(event.Type)),
			slog.String("endpoint", event.Endpoint),
			slog.String("error", err.Error()),
		)
		return "", nil
	}
	return id, nil
}

func (b *BestEffort) Query(ctx context.Context, filter Filter, limit int) ([]*domain.HealingEvent, error) {
	result, err := b.inner.Query(ctx, filter, limit)
	if err != nil {
		b.logger.Warn("event query failed", slog.String("error", err.Error()))
		return nil, nil
	}
	return result, nil
}

func (b *BestEffort) Stats(ctx context.Context, window time.Duration) (*Stats, error) {
	stats, err := b.inner.Stats(ctx, window)
	if err != nil {
		b.logger.Warn("event stats failed", slog.String("error", err.Error()))
		return &Stats{ByType: map[domain.EventType]int{}}, nil
	}
	return stats, nil
}

func (b *BestEffort) Close() error { return b.inner.Close() }
