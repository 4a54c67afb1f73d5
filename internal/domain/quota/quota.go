// Package quota holds the per-user usage quota domain model.
package quota

import (
	"fmt"
	"time"

	"github.com/botgate-io/botgate/internal/domain"
)

// UserQuota is the stored usage record for one user.
type UserQuota struct {
	UserID       string
	Used         int
	Limit        int
	PeriodAnchor time.Time // start of the current counting period
}

// Remaining returns the unused portion of the limit, never negative.
func (u UserQuota) Remaining() int {
	r := u.Limit - u.Used
	if r < 0 {
		return 0
	}
	return r
}

// Usage is the outcome of a successful quota check.
type Usage struct {
	Used      int
	Limit     int
	Remaining int
	ResetsAt  time.Time
	Unlimited bool // administrator exemption
}

// ExceededError wraps domain.ErrQuotaExceeded with the rejection snapshot.
type ExceededError struct {
	Used       int
	Limit      int
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s: used %d of %d, retry after %s",
		domain.ErrQuotaExceeded.Error(), e.Used, e.Limit, e.RetryAfter)
}

func (e *ExceededError) Unwrap() error { return domain.ErrQuotaExceeded }

// NewExceeded creates a quota-exceeded error.
func NewExceeded(used, limit int, retryAfter time.Duration) error {
	return &ExceededError{Used: used, Limit: limit, RetryAfter: retryAfter}
}
