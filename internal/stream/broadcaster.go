// Package stream fans healing-engine thoughts out to live observers and
// hosts the single-slot human approval gate.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sainideep1234/self-healing-agent/internal/domain"
)

// ErrApprovalPending is returned when an approval-requiring emission arrives
// while another approval is already pending. The gate is a single
// process-wide slot; callers must serialize approval-requiring healings.
var ErrApprovalPending = errors.New("an approval is already pending")

const subscriberBuffer = 32

// Config tunes the broadcaster. Zero values take the documented defaults.
type Config struct {
	HistorySize     int           // retained thoughts, default 100
	ReplayCount     int           // thoughts replayed to a new subscriber, default 10
	KeepaliveEvery  time.Duration // SSE keepalive interval, default 30s
	ApprovalTimeout time.Duration // approval gate timeout, default 60s
	Logger          *slog.Logger
}

// Stats is a snapshot of broadcaster state.
type Stats struct {
	Subscribers     int     `json:"subscribers"`
	TotalThoughts   int     `json:"total_thoughts"`
	TotalCost       float64 `json:"total_cost_usd"`
	SessionHealings int     `json:"session_healings"`
	PendingApproval bool    `json:"pending_approval"`
}

type subscriber struct {
	id int
	ch chan []byte
}

type pendingApproval struct {
	result chan bool
}

// Broadcaster publishes thoughts to any number of observers, retains bounded
// history, and owns the approval gate. All methods are safe for concurrent
// use.
type Broadcaster struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextSubID   int
	history     []domain.Thought
	counter     int
	pending     *pendingApproval
	totalCost   float64
	healings    int
}

// NewBroadcaster creates a broadcaster with the given config.
func NewBroadcaster(cfg Config) *Broadcaster {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if cfg.ReplayCount <= 0 {
		cfg.ReplayCount = 10
	}
	if cfg.KeepaliveEvery <= 0 {
		cfg.KeepaliveEvery = 30 * time.Second
	}
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		cfg:         cfg,
		logger:      logger,
		subscribers: make(map[int]*subscriber),
	}
}

// Emit assigns an ID and timestamp to a thought, appends it to history, and
// publishes it to every subscriber. Delivery is fire-and-forget per
// subscriber: a full queue drops the thought rather than stalling emission.
func (b *Broadcaster) Emit(thought domain.Thought) domain.Thought {
	b.mu.Lock()

	b.counter++
	thought.ID = fmt.Sprintf("thought_%d", b.counter)
	thought.Timestamp = time.Now().UTC()

	if thought.Cost != nil {
		b.totalCost += *thought.Cost
	}

	b.history = append(b.history, thought)
	if len(b.history) > b.cfg.HistorySize {
		b.history = b.history[len(b.history)-b.cfg.HistorySize:]
	}

	data, err := json.Marshal(thought)
	if err != nil {
		b.mu.Unlock()
		b.logger.Error("failed to marshal thought", slog.String("error", err.Error()))
		return thought
	}

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- data:
		default:
			// Slow observer; drop rather than block the engine.
		}
	}
	b.mu.Unlock()

	b.logger.Debug("thought emitted",
		slog.String("id", thought.ID),
		slog.String("type", string(thought.Type)),
	)

	return thought
}

// EmitForApproval publishes an approval-requiring thought and blocks until
// Approve is called or the approval timeout elapses. On timeout it proceeds
// as approved and emits a failure thought noting the timeout. Returns
// ErrApprovalPending if another approval is already waiting.
func (b *Broadcaster) EmitForApproval(ctx context.Context, thought domain.Thought) (bool, error) {
	thought.RequiresApproval = true

	b.mu.Lock()
	if b.pending != nil {
		b.mu.Unlock()
		return false, ErrApprovalPending
	}
	pending := &pendingApproval{result: make(chan bool, 1)}
	b.pending = pending
	b.mu.Unlock()

	b.Emit(thought)

	timer := time.NewTimer(b.cfg.ApprovalTimeout)
	defer timer.Stop()

	select {
	case approved := <-pending.result:
		return approved, nil

	case <-timer.C:
		b.clearPending(pending)
		b.Emit(domain.Thought{
			Type:    domain.ThoughtFailure,
			Message: "Approval timeout - proceeding with caution",
		})
		return true, nil

	case <-ctx.Done():
		b.clearPending(pending)
		return false, ctx.Err()
	}
}

// Approve resolves the pending approval, reporting whether one existed.
func (b *Broadcaster) Approve(approved bool) bool {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if pending == nil {
		return false
	}

	pending.result <- approved

	status := "approved"
	if !approved {
		status = "rejected"
	}
	b.Emit(domain.Thought{
		Type:    domain.ThoughtInfo,
		Message: fmt.Sprintf("Observer %s the healing action", status),
	})
	return true
}

// clearPending removes p from the slot if it still owns it.
func (b *Broadcaster) clearPending(p *pendingApproval) {
	b.mu.Lock()
	if b.pending == p {
		b.pending = nil
	}
	b.mu.Unlock()
}

// subscribe registers a new observer queue and returns it with the replay
// backlog that should be delivered first.
func (b *Broadcaster) subscribe() (*subscriber, [][]byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	sub := &subscriber{id: b.nextSubID, ch: make(chan []byte, subscriberBuffer)}
	b.subscribers[sub.id] = sub

	start := len(b.history) - b.cfg.ReplayCount
	if start < 0 {
		start = 0
	}
	replay := make([][]byte, 0, len(b.history)-start)
	for _, thought := range b.history[start:] {
		if data, err := json.Marshal(thought); err == nil {
			replay = append(replay, data)
		}
	}

	b.logger.Info("stream subscriber added", slog.Int("count", len(b.subscribers)))
	return sub, replay
}

// unsubscribe removes an observer queue.
func (b *Broadcaster) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	delete(b.subscribers, sub.id)
	count := len(b.subscribers)
	b.mu.Unlock()

	b.logger.Info("stream subscriber removed", slog.Int("count", count))
}

// IncrementHealingCount bumps the session healing counter.
func (b *Broadcaster) IncrementHealingCount() {
	b.mu.Lock()
	b.healings++
	b.mu.Unlock()
}

// GetStats returns a snapshot of broadcaster state.
func (b *Broadcaster) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Subscribers:     len(b.subscribers),
		TotalThoughts:   b.counter,
		TotalCost:       b.totalCost,
		SessionHealings: b.healings,
		PendingApproval: b.pending != nil,
	}
}

// History returns up to limit most recent thoughts, oldest first.
func (b *Broadcaster) History(limit int) []domain.Thought {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	out := make([]domain.Thought, limit)
	copy(out, b.history[len(b.history)-limit:])
	return out
}

// Clear resets history, counters, and cost accounting, then emits an info
// thought so observers see the reset.
func (b *Broadcaster) Clear() {
	b.mu.Lock()
	b.history = nil
	b.counter = 0
	b.totalCost = 0
	b.healings = 0
	b.mu.Unlock()

	b.Emit(domain.Thought{Type: domain.ThoughtInfo, Message: "Agent stream cleared"})
}
