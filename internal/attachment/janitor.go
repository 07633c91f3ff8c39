package attachment

import (
	"context"
	"time"

	"github.com/matheus3301/wpplink/internal/store"
	"go.uber.org/zap"
)

const sweepBatch = 50

// TransferLog lists uploads awaiting cleanup.
type TransferLog interface {
	ExpiredTransfers(ctx context.Context, before int64, limit int) ([]store.Transfer, error)
	MarkTransferDeleted(ctx context.Context, key string, at int64) error
}

// Janitor deletes transfer archives once their TTL has passed. A secondary
// that has not downloaded by then has already timed out.
type Janitor struct {
	log      TransferLog
	store    *Store
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
	cancel   context.CancelFunc
}

func NewJanitor(log TransferLog, s *Store, ttl time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Janitor{log: log, store: s, ttl: ttl, interval: interval, logger: logger, now: time.Now}
}

// Start begins sweeping in the background.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	go j.loop(ctx)
}

func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
}

func (j *Janitor) loop(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep deletes one batch of expired archives and returns how many went.
// Failures are logged and retried on the next sweep.
func (j *Janitor) Sweep(ctx context.Context) int {
	now := j.now()
	expired, err := j.log.ExpiredTransfers(ctx, now.Add(-j.ttl).UnixMilli(), sweepBatch)
	if err != nil {
		j.logger.Error("failed to list expired transfers", zap.Error(err))
		return 0
	}

	deleted := 0
	for _, t := range expired {
		if t.CDN == j.store.cdn {
			if err := j.store.Delete(ctx, t.Key); err != nil {
				j.logger.Warn("failed to delete transfer archive", zap.String("key", t.Key), zap.Error(err))
				continue
			}
		} else {
			j.logger.Info("transfer archive on retired cdn, forgetting it", zap.String("key", t.Key), zap.Uint32("cdn", t.CDN))
		}
		if err := j.log.MarkTransferDeleted(ctx, t.Key, now.UnixMilli()); err != nil {
			j.logger.Error("failed to mark transfer deleted", zap.String("key", t.Key), zap.Error(err))
			continue
		}
		deleted++
	}
	if deleted > 0 {
		j.logger.Info("transfer archives cleaned up", zap.Int("count", deleted))
	}
	return deleted
}
