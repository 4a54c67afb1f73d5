// Package quota is the Redis-backed persistence for the quota ledger.
//
// Each user has one hash holding the usage counter and the period anchor.
// All read-modify-write paths run as single-key Lua scripts, so two
// concurrent check-and-increments for the same user serialize inside Redis
// and never both succeed on the last remaining unit. Different users touch
// different keys and do not contend.
package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/botgate-io/botgate/internal/db"
)

// store is the consumer interface for ledger persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	EvalInts(ctx context.Context, script string, keys, args []string) ([]int64, error)
}

// checkAndIncrScript reconciles a stale period anchor, then increments the
// usage counter only when the result stays within the limit.
// KEYS[1] = user hash. ARGV = amount, limit, period anchor (unix seconds).
// Returns {used, applied} where applied is 1 when the increment was taken.
const checkAndIncrScript = `
local used = tonumber(redis.call("HGET", KEYS[1], "used") or "0")
local anchor = tonumber(redis.call("HGET", KEYS[1], "anchor") or "0")
local amount = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local cur = tonumber(ARGV[3])
if anchor < cur then
    used = 0
    anchor = cur
end
if used + amount > limit then
    redis.call("HSET", KEYS[1], "used", tostring(used), "anchor", tostring(anchor))
    return {used, 0}
end
used = used + amount
redis.call("HSET", KEYS[1], "used", tostring(used), "anchor", tostring(anchor))
return {used, 1}
`

// refundScript gives back units only while the record is still in the same
// period, so a refund never leaks into the next day's counter.
// KEYS[1] = user hash. ARGV = amount, period anchor (unix seconds).
const refundScript = `
local anchor = tonumber(redis.call("HGET", KEYS[1], "anchor") or "-1")
if anchor ~= tonumber(ARGV[2]) then
    return {0}
end
local used = tonumber(redis.call("HGET", KEYS[1], "used") or "0")
used = used - tonumber(ARGV[1])
if used < 0 then
    used = 0
end
redis.call("HSET", KEYS[1], "used", tostring(used))
return {1}
`

// resetIfStaleScript zeroes the counter only when the stored anchor precedes
// the current period start. Resetting an already-current record is a no-op.
// KEYS[1] = user hash. ARGV = period anchor (unix seconds).
const resetIfStaleScript = `
local anchor = tonumber(redis.call("HGET", KEYS[1], "anchor") or "0")
if anchor >= tonumber(ARGV[1]) then
    return {0}
end
redis.call("HSET", KEYS[1], "used", "0", "anchor", ARGV[1])
return {1}
`

// Store persists UserQuota records and limit overrides.
type Store struct {
	store  store
	prefix string
}

// New creates a quota store. prefix namespaces every key (e.g. "botgate:").
func New(s store, prefix string) *Store {
	return &Store{store: s, prefix: prefix}
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "quota:user:" + userID
}

func (s *Store) limitKey(userID string) string {
	return s.prefix + "quota:limit:" + userID
}

func (s *Store) defaultLimitKey() string {
	return s.prefix + "quota:limit:default"
}

// CheckAndIncrement atomically applies the quota check and increment for one
// user. A stale period anchor is reconciled (counter reset) before the check.
// Returns the post-operation used count and whether the increment was taken.
func (s *Store) CheckAndIncrement(
	ctx context.Context, userID string, amount, limit int, periodStart time.Time,
) (int, bool, error) {
	vals, err := s.store.EvalInts(ctx, checkAndIncrScript,
		[]string{s.userKey(userID)},
		[]string{
			strconv.Itoa(amount),
			strconv.Itoa(limit),
			strconv.FormatInt(periodStart.Unix(), 10),
		},
	)
	if err != nil {
		return 0, false, fmt.Errorf("quota check-and-increment %s: %w", userID, err)
	}
	if len(vals) != 2 {
		return 0, false, fmt.Errorf("quota check-and-increment %s: unexpected reply length %d", userID, len(vals))
	}
	return int(vals[0]), vals[1] == 1, nil
}

// Refund returns units to the user within the current period only.
func (s *Store) Refund(ctx context.Context, userID string, amount int, periodStart time.Time) error {
	_, err := s.store.EvalInts(ctx, refundScript,
		[]string{s.userKey(userID)},
		[]string{
			strconv.Itoa(amount),
			strconv.FormatInt(periodStart.Unix(), 10),
		},
	)
	if err != nil {
		return fmt.Errorf("quota refund %s: %w", userID, err)
	}
	return nil
}

// Usage returns the used count for the current period without mutating
// anything. Absent records and stale anchors both project as zero.
func (s *Store) Usage(ctx context.Context, userID string, periodStart time.Time) (int, error) {
	m, err := s.store.HGetAll(ctx, s.userKey(userID))
	if err != nil {
		return 0, fmt.Errorf("quota usage %s: %w", userID, err)
	}
	if len(m) == 0 {
		return 0, nil
	}

	anchor, err := strconv.ParseInt(m["anchor"], 10, 64)
	if err != nil || anchor < periodStart.Unix() {
		// Overdue reset not yet applied; project, do not persist.
		return 0, nil
	}

	used, err := strconv.Atoi(m["used"])
	if err != nil {
		return 0, fmt.Errorf("quota usage %s: parse used %q: %w", userID, m["used"], err)
	}
	return used, nil
}

// Reset unconditionally zeroes the counter and re-anchors the record.
func (s *Store) Reset(ctx context.Context, userID string, periodStart time.Time) error {
	err := s.store.HSet(ctx, s.userKey(userID), map[string]string{
		"used":   "0",
		"anchor": strconv.FormatInt(periodStart.Unix(), 10),
	})
	if err != nil {
		return fmt.Errorf("quota reset %s: %w", userID, err)
	}
	return nil
}

// ResetIfStale zeroes the counter only when the record's anchor precedes the
// current period start. Returns whether a reset was applied.
func (s *Store) ResetIfStale(ctx context.Context, userID string, periodStart time.Time) (bool, error) {
	vals, err := s.store.EvalInts(ctx, resetIfStaleScript,
		[]string{s.userKey(userID)},
		[]string{strconv.FormatInt(periodStart.Unix(), 10)},
	)
	if err != nil {
		return false, fmt.Errorf("quota reset-if-stale %s: %w", userID, err)
	}
	return len(vals) == 1 && vals[0] == 1, nil
}

// SetLimit stores a per-user limit override.
func (s *Store) SetLimit(ctx context.Context, userID string, limit int) error {
	if err := s.store.Set(ctx, s.limitKey(userID), []byte(strconv.Itoa(limit))); err != nil {
		return fmt.Errorf("quota set limit %s: %w", userID, err)
	}
	return nil
}

// Limit returns the per-user limit override, if one is set.
func (s *Store) Limit(ctx context.Context, userID string) (int, bool, error) {
	return s.readLimit(ctx, s.limitKey(userID))
}

// SetDefaultLimit stores the runtime default limit applying to all users
// without a per-user override.
func (s *Store) SetDefaultLimit(ctx context.Context, limit int) error {
	if err := s.store.Set(ctx, s.defaultLimitKey(), []byte(strconv.Itoa(limit))); err != nil {
		return fmt.Errorf("quota set default limit: %w", err)
	}
	return nil
}

// DefaultLimit returns the runtime default limit override, if one is set.
func (s *Store) DefaultLimit(ctx context.Context) (int, bool, error) {
	return s.readLimit(ctx, s.defaultLimitKey())
}

func (s *Store) readLimit(ctx context.Context, key string) (int, bool, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("quota limit %s: %w", key, err)
	}
	limit, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false, fmt.Errorf("quota limit %s: parse %q: %w", key, data, err)
	}
	return limit, true, nil
}

// ScanUsers lists user IDs with a live usage record.
func (s *Store) ScanUsers(ctx context.Context) ([]string, error) {
	keyPrefix := s.prefix + "quota:user:"
	keys, err := s.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("quota scan users: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, keyPrefix))
	}
	return ids, nil
}
