package worker

import (
	"context"
	"errors"
	"time"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/metrics"
	"github.com/prohmpiriya/ticket-inventory/internal/repository"
	"github.com/prohmpiriya/ticket-inventory/pkg/logger"
	"go.uber.org/zap"
)

// LedgerSnapshotConfig holds configuration for the ledger snapshot worker
type LedgerSnapshotConfig struct {
	Interval  time.Duration
	BatchSize int
}

// LedgerSnapshotWorker copies sold counts from a caching ledger back to the event store,
// so the store survives a ledger flush with at most one interval of drift
type LedgerSnapshotWorker struct {
	config  *LedgerSnapshotConfig
	ledger  repository.DirtyTracker
	events  repository.EventRepository
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewLedgerSnapshotWorker creates a new ledger snapshot worker
func NewLedgerSnapshotWorker(
	cfg *LedgerSnapshotConfig,
	ledger repository.DirtyTracker,
	events repository.EventRepository,
	m *metrics.Metrics,
	log *logger.Logger,
) *LedgerSnapshotWorker {
	if cfg == nil {
		cfg = &LedgerSnapshotConfig{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if log == nil {
		log = logger.Get()
	}

	return &LedgerSnapshotWorker{
		config:  cfg,
		ledger:  ledger,
		events:  events,
		metrics: m,
		log:     log,
	}
}

// Start flushes on every tick until ctx is cancelled, then flushes once more
func (w *LedgerSnapshotWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.log.Info("starting ledger snapshot worker", zap.Duration("interval", w.config.Interval))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("ledger snapshot worker stopping, flushing remaining counters")
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			w.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			w.Flush(ctx)
		}
	}
}

// Flush drains the dirty set batch by batch and returns how many counters were stored
func (w *LedgerSnapshotWorker) Flush(ctx context.Context) int {
	stored := 0
	for {
		snapshots, err := w.ledger.PopDirty(ctx, w.config.BatchSize)
		if err != nil {
			w.log.Error("failed to pop dirty ledger counters", zap.Error(err))
			break
		}
		if len(snapshots) == 0 {
			break
		}

		var retry []string
		for _, s := range snapshots {
			err := w.events.UpdateSoldCount(ctx, s.EventID, s.SoldCount)
			switch {
			case err == nil:
				stored++
			case errors.Is(err, domain.ErrEventNotFound):
				w.log.Warn("ledger holds an event the store does not know",
					zap.String("event_id", s.EventID),
				)
			default:
				w.log.Error("failed to store ledger snapshot",
					zap.String("event_id", s.EventID),
					zap.Int64("sold_count", s.SoldCount),
					zap.Error(err),
				)
				retry = append(retry, s.EventID)
			}
		}

		if len(retry) > 0 {
			if err := w.ledger.MarkDirty(ctx, retry...); err != nil {
				w.log.Error("failed to re-queue ledger counters", zap.Int("count", len(retry)), zap.Error(err))
			}
			// Leave the rest for the next tick rather than spinning on a failing store
			break
		}
		if len(snapshots) < w.config.BatchSize {
			break
		}
	}

	if stored > 0 {
		w.metrics.RecordSnapshots(stored)
		w.log.Debug("stored ledger snapshots", zap.Int("count", stored))
	}
	return stored
}
