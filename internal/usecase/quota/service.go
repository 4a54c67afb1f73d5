// Package quota implements the per-user daily usage ledger.
package quota

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/botgate-io/botgate/internal/clock"
	"github.com/botgate-io/botgate/internal/domain"
	domquota "github.com/botgate-io/botgate/internal/domain/quota"
)

// Ledger enforces the per-user daily usage quota.
//
// Any storage failure on the check path fails closed: the caller sees
// domain.ErrStorageUnavailable and the request is refused, never waved
// through with an unverified counter.
type Ledger struct {
	store        Store
	clk          clock.Clock
	periods      clock.Periods
	defaultLimit int
	admins       map[string]struct{}
	logger       *zap.Logger
}

// New creates a Ledger. adminIDs are exempt from quota enforcement.
func New(
	store Store, clk clock.Clock, periods clock.Periods,
	defaultLimit int, adminIDs []string, logger *zap.Logger,
) *Ledger {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id != "" {
			admins[id] = struct{}{}
		}
	}
	return &Ledger{
		store:        store,
		clk:          clk,
		periods:      periods,
		defaultLimit: defaultLimit,
		admins:       admins,
		logger:       logger,
	}
}

// IsAdmin reports whether the user is exempt from quota enforcement.
func (l *Ledger) IsAdmin(userID string) bool {
	_, ok := l.admins[userID]
	return ok
}

// CheckAndIncrement atomically charges one unit of the user's daily quota.
// A stale counting period is reconciled transparently before the check.
// Returns domquota.ExceededError when the limit is already spent.
func (l *Ledger) CheckAndIncrement(ctx context.Context, userID string) (domquota.Usage, error) {
	now := l.clk.Now()
	resetsAt := l.periods.NextReset(now)

	if l.IsAdmin(userID) {
		return domquota.Usage{Unlimited: true, ResetsAt: resetsAt}, nil
	}

	limit, err := l.effectiveLimit(ctx, userID)
	if err != nil {
		return domquota.Usage{}, l.failClosed("limit lookup", userID, err)
	}

	used, ok, err := l.store.CheckAndIncrement(ctx, userID, 1, limit, l.periods.Start(now))
	if err != nil {
		return domquota.Usage{}, l.failClosed("check-and-increment", userID, err)
	}
	if !ok {
		return domquota.Usage{}, domquota.NewExceeded(used, limit, resetsAt.Sub(now))
	}

	return domquota.Usage{
		Used:      used,
		Limit:     limit,
		Remaining: max(limit-used, 0),
		ResetsAt:  resetsAt,
	}, nil
}

// Refund gives back one unit charged earlier in the same period. Used when a
// charged request never produced a served reply.
func (l *Ledger) Refund(ctx context.Context, userID string) error {
	if l.IsAdmin(userID) {
		return nil
	}
	now := l.clk.Now()
	if err := l.store.Refund(ctx, userID, 1, l.periods.Start(now)); err != nil {
		l.logger.Error("Quota refund failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return fmt.Errorf("refund %s: %w", userID, domain.ErrStorageUnavailable)
	}
	return nil
}

// Usage returns a side-effect-free snapshot of the user's current period.
// An overdue reset is projected into the numbers but never persisted here.
func (l *Ledger) Usage(ctx context.Context, userID string) (domquota.Usage, error) {
	now := l.clk.Now()
	resetsAt := l.periods.NextReset(now)

	if l.IsAdmin(userID) {
		return domquota.Usage{Unlimited: true, ResetsAt: resetsAt}, nil
	}

	limit, err := l.effectiveLimit(ctx, userID)
	if err != nil {
		return domquota.Usage{}, l.failClosed("limit lookup", userID, err)
	}

	used, err := l.store.Usage(ctx, userID, l.periods.Start(now))
	if err != nil {
		return domquota.Usage{}, l.failClosed("usage read", userID, err)
	}

	return domquota.Usage{
		Used:      used,
		Limit:     limit,
		Remaining: max(limit-used, 0),
		ResetsAt:  resetsAt,
	}, nil
}

// Remaining returns the units left in the user's current period.
func (l *Ledger) Remaining(ctx context.Context, userID string) (int, error) {
	u, err := l.Usage(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Remaining, nil
}

// Reset zeroes the user's counter and re-anchors it to the current period.
// Administrator operation; always succeeds when storage is reachable.
func (l *Ledger) Reset(ctx context.Context, userID string) error {
	if err := l.store.Reset(ctx, userID, l.periods.Start(l.clk.Now())); err != nil {
		l.logger.Error("Quota reset failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return fmt.Errorf("reset %s: %w", userID, domain.ErrStorageUnavailable)
	}
	l.logger.Info("Quota reset", zap.String("user_id", userID))
	return nil
}

// SetLimit overrides the daily limit for one user. Does not touch the
// used counter.
func (l *Ledger) SetLimit(ctx context.Context, userID string, limit int) error {
	if limit < 0 {
		return fmt.Errorf("limit must be non-negative, got %d", limit)
	}
	if err := l.store.SetLimit(ctx, userID, limit); err != nil {
		return fmt.Errorf("set limit %s: %w", userID, domain.ErrStorageUnavailable)
	}
	l.logger.Info("Per-user limit set",
		zap.String("user_id", userID),
		zap.Int("limit", limit),
	)
	return nil
}

// SetDefaultLimit overrides the default daily limit for all users without a
// per-user override.
func (l *Ledger) SetDefaultLimit(ctx context.Context, limit int) error {
	if limit < 0 {
		return fmt.Errorf("limit must be non-negative, got %d", limit)
	}
	if err := l.store.SetDefaultLimit(ctx, limit); err != nil {
		return fmt.Errorf("set default limit: %w", domain.ErrStorageUnavailable)
	}
	l.logger.Info("Default limit set", zap.Int("limit", limit))
	return nil
}

// effectiveLimit resolves the limit for a user: per-user override, then the
// runtime default override, then the configured default.
func (l *Ledger) effectiveLimit(ctx context.Context, userID string) (int, error) {
	limit, ok, err := l.store.Limit(ctx, userID)
	if err != nil {
		return 0, err
	}
	if ok {
		return limit, nil
	}

	limit, ok, err = l.store.DefaultLimit(ctx)
	if err != nil {
		return 0, err
	}
	if ok {
		return limit, nil
	}

	return l.defaultLimit, nil
}

func (l *Ledger) failClosed(op, userID string, err error) error {
	l.logger.Error("Quota storage failure",
		zap.String("op", op),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	return fmt.Errorf("%s %s: %w", op, userID, domain.ErrStorageUnavailable)
}
