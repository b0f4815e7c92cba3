// Package worker keeps analysis results warm for workspaces whose datasets
// change, so the first request after an upload is served from cache.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/rastreador/internal/domain"
)

// Warmer precomputes the default analysis of a workspace.
type Warmer interface {
	Warm(ctx context.Context, workspaceID string, ev domain.DatasetEvent) (bool, error)
}

// Worker subscribes to dataset.replaced events and warms results.
type Worker struct {
	bus    domain.EventBus
	warmer Warmer

	mu            sync.Mutex
	stopped       bool
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	warmed  atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// WorkspaceIDs lists the workspaces to keep warm.
	WorkspaceIDs []string
}

// NewWorker creates a new worker.
func NewWorker(bus domain.EventBus, warmer Warmer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		warmer: warmer,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes for every configured workspace. A workspace whose
// subscription fails is logged and skipped.
func (w *Worker) Start(cfg Config) error {
	for _, workspaceID := range cfg.WorkspaceIDs {
		if err := w.startWorkspace(workspaceID); err != nil {
			slog.Error("failed to start worker for workspace",
				"workspace_id", workspaceID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"workspace_count", len(cfg.WorkspaceIDs),
	)
	return nil
}

func (w *Worker) startWorkspace(workspaceID string) error {
	sub, err := w.bus.Subscribe(w.ctx, workspaceID, domain.TopicDatasetReplaced, func(ctx context.Context, msg *domain.Message) error {
		return w.handle(workspaceID, msg)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("workspace worker started",
		"workspace_id", workspaceID,
		"topic", domain.TopicDatasetReplaced,
	)
	return nil
}

func (w *Worker) handle(workspaceID string, msg *domain.Message) error {
	// Add must not race with the Wait in Stop.
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	start := time.Now()

	var ev domain.DatasetEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse dataset event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	ok, err := w.warmer.Warm(w.ctx, workspaceID, ev)
	switch {
	case err != nil:
		w.failed.Add(1)
		slog.Error("result warm-up failed",
			"workspace_id", workspaceID,
			"kind", ev.Kind,
			"error", err,
		)
		return err
	case !ok:
		w.skipped.Add(1)
		slog.Debug("workspace not ready, skipping warm-up",
			"workspace_id", workspaceID,
			"kind", ev.Kind,
		)
		return nil
	}

	w.warmed.Add(1)
	slog.Info("analysis result warmed",
		"workspace_id", workspaceID,
		"kind", ev.Kind,
		"checksum", ev.Checksum,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and waits for in-flight warm-ups.
func (w *Worker) Stop() error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Warmed            int64    `json:"warmed"`
	Skipped           int64    `json:"skipped"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	return Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		Warmed:            w.warmed.Load(),
		Skipped:           w.skipped.Load(),
		Failed:            w.failed.Load(),
	}
}
