package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/rastreador/internal/bus"
	"github.com/opensource-finance/rastreador/internal/domain"
)

type fakeWarmer struct {
	mu     sync.Mutex
	events []domain.DatasetEvent
	ready  bool
	err    error
}

func (f *fakeWarmer) Warm(ctx context.Context, workspaceID string, ev domain.DatasetEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.ready, f.err
}

func waitStats(t *testing.T, w *Worker, done func(Stats) bool) Stats {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := w.GetStats(); done(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	s := w.GetStats()
	t.Fatalf("timeout waiting for worker, stats: %+v", s)
	return s
}

func publish(t *testing.T, b domain.EventBus, ws string, ev domain.DatasetEvent) {
	t.Helper()
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := b.Publish(context.Background(), ws, domain.TopicDatasetReplaced, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func TestWorker(t *testing.T) {
	t.Run("StartAndStop", func(t *testing.T) {
		eventBus := bus.NewChannelBus(16)
		defer eventBus.Close()

		w := NewWorker(eventBus, &fakeWarmer{})
		if err := w.Start(Config{WorkspaceIDs: []string{"ws-1", "ws-2"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
		}
		for _, topic := range stats.Topics {
			if topic != domain.TopicDatasetReplaced {
				t.Errorf("unexpected topic %q", topic)
			}
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if n := w.GetStats().SubscriptionCount; n != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", n)
		}
	})

	t.Run("WarmsOnDatasetEvent", func(t *testing.T) {
		eventBus := bus.NewChannelBus(16)
		defer eventBus.Close()

		warmer := &fakeWarmer{ready: true}
		w := NewWorker(eventBus, warmer)
		if err := w.Start(Config{WorkspaceIDs: []string{"ws-1"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		publish(t, eventBus, "ws-1", domain.DatasetEvent{Kind: domain.KindContracts, Checksum: "abc"})
		waitStats(t, w, func(s Stats) bool { return s.Warmed == 1 })

		warmer.mu.Lock()
		defer warmer.mu.Unlock()
		if len(warmer.events) != 1 || warmer.events[0].Checksum != "abc" {
			t.Errorf("unexpected events: %+v", warmer.events)
		}
	})

	t.Run("IgnoresOtherWorkspaces", func(t *testing.T) {
		eventBus := bus.NewChannelBus(16)
		defer eventBus.Close()

		warmer := &fakeWarmer{ready: true}
		w := NewWorker(eventBus, warmer)
		if err := w.Start(Config{WorkspaceIDs: []string{"ws-1"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		publish(t, eventBus, "ws-2", domain.DatasetEvent{Kind: domain.KindContracts})
		publish(t, eventBus, "ws-1", domain.DatasetEvent{Kind: domain.KindContributions})
		waitStats(t, w, func(s Stats) bool { return s.Warmed == 1 })

		warmer.mu.Lock()
		defer warmer.mu.Unlock()
		if len(warmer.events) != 1 || warmer.events[0].Kind != domain.KindContributions {
			t.Errorf("unexpected events: %+v", warmer.events)
		}
	})

	t.Run("NotReadyAndFailures", func(t *testing.T) {
		eventBus := bus.NewChannelBus(16)
		defer eventBus.Close()

		warmer := &fakeWarmer{}
		w := NewWorker(eventBus, warmer)
		if err := w.Start(Config{WorkspaceIDs: []string{"ws-1"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		publish(t, eventBus, "ws-1", domain.DatasetEvent{Kind: domain.KindContracts})
		waitStats(t, w, func(s Stats) bool { return s.Skipped == 1 })

		warmer.mu.Lock()
		warmer.err = errors.New("boom")
		warmer.mu.Unlock()

		publish(t, eventBus, "ws-1", domain.DatasetEvent{Kind: domain.KindContracts})
		if err := eventBus.Publish(context.Background(), "ws-1", domain.TopicDatasetReplaced, []byte("not json")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		stats := waitStats(t, w, func(s Stats) bool { return s.Failed == 2 })
		if stats.Warmed != 0 {
			t.Errorf("expected no warmed results, got %d", stats.Warmed)
		}
	})
}

type blockingWarmer struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingWarmer) Warm(ctx context.Context, workspaceID string, ev domain.DatasetEvent) (bool, error) {
	close(b.entered)
	<-b.release
	return true, nil
}

func TestWorkerStop(t *testing.T) {
	t.Run("WaitsForInFlightWarmUp", func(t *testing.T) {
		eventBus := bus.NewChannelBus(16)
		defer eventBus.Close()

		warmer := &blockingWarmer{entered: make(chan struct{}), release: make(chan struct{})}
		w := NewWorker(eventBus, warmer)
		if err := w.Start(Config{WorkspaceIDs: []string{"ws-1"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		publish(t, eventBus, "ws-1", domain.DatasetEvent{Kind: domain.KindContracts})
		select {
		case <-warmer.entered:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for warm-up to start")
		}

		stopped := make(chan struct{})
		go func() {
			w.Stop()
			close(stopped)
		}()

		select {
		case <-stopped:
			t.Fatal("Stop returned while a warm-up was running")
		case <-time.After(50 * time.Millisecond):
		}

		close(warmer.release)
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Fatal("Stop did not return after the warm-up finished")
		}
		if n := w.GetStats().Warmed; n != 1 {
			t.Errorf("warmed = %d, want 1", n)
		}
	})

	t.Run("IgnoresEventsAfterStop", func(t *testing.T) {
		warmer := &fakeWarmer{ready: true}
		w := NewWorker(bus.NewChannelBus(1), warmer)
		if err := w.Stop(); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}

		payload, _ := json.Marshal(domain.DatasetEvent{Kind: domain.KindContracts})
		if err := w.handle("ws-1", &domain.Message{ID: "m1", Payload: payload}); err != nil {
			t.Errorf("handle after stop returned %v", err)
		}

		warmer.mu.Lock()
		defer warmer.mu.Unlock()
		if len(warmer.events) != 0 {
			t.Errorf("warmer called after stop: %+v", warmer.events)
		}
		if s := w.GetStats(); s.Warmed+s.Skipped+s.Failed != 0 {
			t.Errorf("unexpected stats after stop: %+v", s)
		}
	})
}
