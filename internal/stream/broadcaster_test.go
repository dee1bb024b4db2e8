package stream

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sainideep1234/self-healing-agent/internal/domain"
)

func TestEmitAssignsSequentialIDs(t *testing.T) {
	b := NewBroadcaster(Config{})

	first := b.Emit(domain.Thought{Type: domain.ThoughtInfo, Message: "one"})
	second := b.Emit(domain.Thought{Type: domain.ThoughtInfo, Message: "two"})

	if first.ID != "thought_1" {
		t.Errorf("first.ID = %q, want thought_1", first.ID)
	}
	if second.ID != "thought_2" {
		t.Errorf("second.ID = %q, want thought_2", second.ID)
	}
	if first.Timestamp.IsZero() {
		t.Error("Timestamp not assigned")
	}
}

func TestHistoryBounded(t *testing.T) {
	b := NewBroadcaster(Config{HistorySize: 5})

	for i := 0; i < 10; i++ {
		b.Emit(domain.Thought{Type: domain.ThoughtInfo, Message: fmt.Sprintf("t%d", i)})
	}

	history := b.History(0)
	if len(history) != 5 {
		t.Fatalf("len(history) = %d, want 5", len(history))
	}
	if history[0].Message != "t5" || history[4].Message != "t9" {
		t.Errorf("history = [%s .. %s], want [t5 .. t9]", history[0].Message, history[4].Message)
	}
}

func TestHistoryLimitOldestFirst(t *testing.T) {
	b := NewBroadcaster(Config{})
	for i := 0; i < 4; i++ {
		b.Emit(domain.Thought{Type: domain.ThoughtInfo, Message: fmt.Sprintf("t%d", i)})
	}

	got := b.History(2)
	if len(got) != 2 || got[0].Message != "t2" || got[1].Message != "t3" {
		t.Errorf("History(2) = %v, want [t2 t3]", got)
	}
}

func TestCostAccumulates(t *testing.T) {
	b := NewBroadcaster(Config{})
	cost := 0.001
	b.Emit(domain.Thought{Type: domain.ThoughtHypothesis, Message: "a", Cost: &cost})
	b.Emit(domain.Thought{Type: domain.ThoughtSuccess, Message: "b", Cost: &cost})
	b.Emit(domain.Thought{Type: domain.ThoughtInfo, Message: "no cost"})

	stats := b.GetStats()
	if stats.TotalCost != 0.002 {
		t.Errorf("TotalCost = %v, want 0.002", stats.TotalCost)
	}
	if stats.TotalThoughts != 3 {
		t.Errorf("TotalThoughts = %d, want 3", stats.TotalThoughts)
	}
}

func TestClearResets(t *testing.T) {
	b := NewBroadcaster(Config{})
	cost := 0.5
	b.Emit(domain.Thought{Type: domain.ThoughtInfo, Message: "x", Cost: &cost})
	b.IncrementHealingCount()

	b.Clear()

	stats := b.GetStats()
	if stats.TotalCost != 0 || stats.SessionHealings != 0 {
		t.Errorf("stats after Clear = %+v, want zeroed", stats)
	}
	// Clear itself announces the reset.
	history := b.History(0)
	if len(history) != 1 || history[0].Type != domain.ThoughtInfo {
		t.Errorf("history after Clear = %v, want single info thought", history)
	}
}

func TestApprovalFlow(t *testing.T) {
	b := NewBroadcaster(Config{ApprovalTimeout: time.Second})

	done := make(chan bool, 1)
	go func() {
		approved, err := b.EmitForApproval(context.Background(), domain.Thought{
			Type:    domain.ThoughtWaiting,
			Message: "waiting",
		})
		if err != nil {
			t.Errorf("EmitForApproval() error = %v", err)
		}
		done <- approved
	}()

	waitForPending(t, b)

	if !b.Approve(true) {
		t.Error("Approve() = false, want true while pending")
	}

	if approved := <-done; !approved {
		t.Error("approved = false, want true")
	}
	if b.GetStats().PendingApproval {
		t.Error("PendingApproval still set after resolution")
	}
}

func TestApprovalRejection(t *testing.T) {
	b := NewBroadcaster(Config{ApprovalTimeout: time.Second})

	done := make(chan bool, 1)
	go func() {
		approved, _ := b.EmitForApproval(context.Background(), domain.Thought{Type: domain.ThoughtWaiting, Message: "w"})
		done <- approved
	}()

	waitForPending(t, b)
	b.Approve(false)

	if approved := <-done; approved {
		t.Error("approved = true, want false after rejection")
	}
}

func TestApprovalTimeoutDefaultsToApproved(t *testing.T) {
	b := NewBroadcaster(Config{ApprovalTimeout: 50 * time.Millisecond})

	approved, err := b.EmitForApproval(context.Background(), domain.Thought{Type: domain.ThoughtWaiting, Message: "w"})
	if err != nil {
		t.Fatalf("EmitForApproval() error = %v", err)
	}
	if !approved {
		t.Error("approved = false, want true on timeout")
	}

	history := b.History(0)
	last := history[len(history)-1]
	if last.Type != domain.ThoughtFailure || !strings.Contains(last.Message, "Approval timeout") {
		t.Errorf("last thought = %+v, want approval-timeout failure note", last)
	}
}

func TestSecondApprovalRejectedWhileBusy(t *testing.T) {
	b := NewBroadcaster(Config{ApprovalTimeout: time.Second})

	go b.EmitForApproval(context.Background(), domain.Thought{Type: domain.ThoughtWaiting, Message: "first"})
	waitForPending(t, b)

	_, err := b.EmitForApproval(context.Background(), domain.Thought{Type: domain.ThoughtWaiting, Message: "second"})
	if err != ErrApprovalPending {
		t.Errorf("error = %v, want ErrApprovalPending", err)
	}

	b.Approve(true)
}

func TestApproveWithoutPending(t *testing.T) {
	b := NewBroadcaster(Config{})
	if b.Approve(true) {
		t.Error("Approve() = true with nothing pending, want false")
	}
}

func waitForPending(t *testing.T, b *Broadcaster) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if b.GetStats().PendingApproval {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("approval never became pending")
}

func TestServeSSEReplaysAndStreams(t *testing.T) {
	b := NewBroadcaster(Config{ReplayCount: 2, KeepaliveEvery: time.Hour})

	for i := 0; i < 5; i++ {
		b.Emit(domain.Thought{Type: domain.ThoughtInfo, Message: fmt.Sprintf("old%d", i)})
	}

	server := httptest.NewServer(http.HandlerFunc(b.ServeSSE))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			}
		}
	}

	if ack := readEvent(); !strings.Contains(ack, "connected") {
		t.Errorf("first event = %q, want connection ack", ack)
	}
	// Only the last ReplayCount thoughts are replayed.
	if ev := readEvent(); !strings.Contains(ev, "old3") {
		t.Errorf("replay[0] = %q, want old3", ev)
	}
	if ev := readEvent(); !strings.Contains(ev, "old4") {
		t.Errorf("replay[1] = %q, want old4", ev)
	}

	// Wait for the subscription to register, then emit a live thought.
	for i := 0; i < 200 && b.GetStats().Subscribers == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	b.Emit(domain.Thought{Type: domain.ThoughtAlert, Message: "live"})

	if ev := readEvent(); !strings.Contains(ev, "live") {
		t.Errorf("live event = %q, want the emitted thought", ev)
	}
}

func TestUnsubscribeOnDisconnect(t *testing.T) {
	b := NewBroadcaster(Config{KeepaliveEvery: time.Hour})

	server := httptest.NewServer(http.HandlerFunc(b.ServeSSE))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}

	for i := 0; i < 200 && b.GetStats().Subscribers == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	if b.GetStats().Subscribers != 1 {
		t.Fatal("subscriber never registered")
	}

	cancel()
	resp.Body.Close()

	for i := 0; i < 200 && b.GetStats().Subscribers != 0; i++ {
		time.Sleep(time.Millisecond)
	}
	if got := b.GetStats().Subscribers; got != 0 {
		t.Errorf("Subscribers = %d after disconnect, want 0", got)
	}
}
