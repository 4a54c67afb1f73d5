package quota

import (
	"context"
	"time"
)

// Store is the persistence contract for the ledger. Implementations must
// make CheckAndIncrement atomic per user.
type Store interface {
	CheckAndIncrement(ctx context.Context, userID string, amount, limit int, periodStart time.Time) (used int, ok bool, err error)
	Refund(ctx context.Context, userID string, amount int, periodStart time.Time) error
	Usage(ctx context.Context, userID string, periodStart time.Time) (int, error)
	Reset(ctx context.Context, userID string, periodStart time.Time) error
	SetLimit(ctx context.Context, userID string, limit int) error
	Limit(ctx context.Context, userID string) (limit int, ok bool, err error)
	SetDefaultLimit(ctx context.Context, limit int) error
	DefaultLimit(ctx context.Context) (limit int, ok bool, err error)
}
