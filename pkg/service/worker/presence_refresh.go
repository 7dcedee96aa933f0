package worker

import (
	"context"
	"time"

	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/service/presence"
	"github.com/secmon-lab/briareus/pkg/utils/logging"
)

// DefaultRefreshInterval is the polling cadence for the presence refresh
// worker. Webhook updates land between polls; the poll keeps the cache
// from drifting when notifications are dropped.
const DefaultRefreshInterval = 5 * time.Minute

// PresenceRefreshWorker periodically re-fetches presence from every
// provider and merges the results into the cache.
type PresenceRefreshWorker struct {
	aggregator *presence.Aggregator
	interval   time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewPresenceRefreshWorker creates a worker with the given polling
// interval. Zero or negative interval falls back to the default.
func NewPresenceRefreshWorker(aggregator *presence.Aggregator, interval time.Duration) *PresenceRefreshWorker {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &PresenceRefreshWorker{
		aggregator: aggregator,
		interval:   interval,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the background refresh loop. The first poll fires one
// interval after Start; callers are expected to have primed the cache
// already.
func (w *PresenceRefreshWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *PresenceRefreshWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	logger := logging.From(ctx)
	logger.Info("presence refresh worker started", "interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("presence refresh worker stopped by context")
			return
		case <-w.stopCh:
			logger.Info("presence refresh worker stopped")
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *PresenceRefreshWorker) refresh(ctx context.Context) {
	logger := logging.From(ctx)

	count, err := w.aggregator.RefreshAll(ctx, presence.ModeMerge, types.ProvenancePolled)
	if err != nil {
		logger.Warn("scheduled presence refresh failed", "error", err.Error())
		return
	}

	logger.Debug("scheduled presence refresh completed", "records", count)
}

// Stop signals the loop to exit and waits for it to drain
func (w *PresenceRefreshWorker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}
