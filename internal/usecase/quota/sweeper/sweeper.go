// Package sweeper reclaims expired quota periods in the background.
//
// Lazy reconciliation on the request path is only a correctness backstop: a
// user who never returns would otherwise keep a stale counter in storage
// forever. The sweeper scans all live usage records on a short interval and
// re-anchors any that crossed the period boundary.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/botgate-io/botgate/internal/clock"
	"github.com/botgate-io/botgate/internal/metrics"
)

// Store is the persistence contract for sweeps.
type Store interface {
	ScanUsers(ctx context.Context) ([]string, error)
	ResetIfStale(ctx context.Context, userID string, periodStart time.Time) (bool, error)
}

// Sweeper is the recurring reset task.
type Sweeper struct {
	store    Store
	clk      clock.Clock
	periods  clock.Periods
	interval time.Duration
	logger   *zap.Logger
}

// New creates a Sweeper waking every interval.
func New(store Store, clk clock.Clock, periods clock.Periods, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		clk:      clk,
		periods:  periods,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled. One catch-up pass runs immediately so
// boundaries crossed while the process was down are reconciled before the
// recurring loop starts.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Quota sweeper started", zap.Duration("interval", s.interval))

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Quota sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass. A failure on one record is logged and skipped;
// the record is retried on the next wake. Each reset is a single-key
// operation, so the pass never blocks the request path.
func (s *Sweeper) Sweep(ctx context.Context) {
	periodStart := s.periods.Start(s.clk.Now())

	users, err := s.store.ScanUsers(ctx)
	if err != nil {
		s.logger.Error("Quota sweep scan failed", zap.Error(err))
		return
	}

	var reset, failed int
	for _, userID := range users {
		applied, err := s.store.ResetIfStale(ctx, userID, periodStart)
		if err != nil {
			failed++
			s.logger.Warn("Quota sweep reset failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			continue
		}
		if applied {
			reset++
		}
	}

	metrics.QuotaSweepResetsTotal.Add(float64(reset))

	if reset > 0 || failed > 0 {
		s.logger.Info("Quota sweep completed",
			zap.Int("scanned", len(users)),
			zap.Int("reset", reset),
			zap.Int("failed", failed),
		)
	}
}
