package quota

import (
	"context"
	"sync"
	"time"
)

// fakeClock is a settable clock for tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeStore mirrors the Redis store semantics in memory: per-user records
// with anchor-based lazy reset, all operations serialized by one mutex.
type fakeStore struct {
	mu           sync.Mutex
	records      map[string]*record
	limits       map[string]int
	defaultLimit *int
	failWith     error
}

type record struct {
	used   int
	anchor int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[string]*record),
		limits:  make(map[string]int),
	}
}

func (f *fakeStore) CheckAndIncrement(
	_ context.Context, userID string, amount, limit int, periodStart time.Time,
) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, false, f.failWith
	}

	r, ok := f.records[userID]
	if !ok {
		r = &record{}
		f.records[userID] = r
	}
	if r.anchor < periodStart.Unix() {
		r.used = 0
		r.anchor = periodStart.Unix()
	}
	if r.used+amount > limit {
		return r.used, false, nil
	}
	r.used += amount
	return r.used, true, nil
}

func (f *fakeStore) Refund(_ context.Context, userID string, amount int, periodStart time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	r, ok := f.records[userID]
	if !ok || r.anchor != periodStart.Unix() {
		return nil
	}
	r.used -= amount
	if r.used < 0 {
		r.used = 0
	}
	return nil
}

func (f *fakeStore) Usage(_ context.Context, userID string, periodStart time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, f.failWith
	}
	r, ok := f.records[userID]
	if !ok || r.anchor < periodStart.Unix() {
		return 0, nil
	}
	return r.used, nil
}

func (f *fakeStore) Reset(_ context.Context, userID string, periodStart time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.records[userID] = &record{anchor: periodStart.Unix()}
	return nil
}

func (f *fakeStore) SetLimit(_ context.Context, userID string, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.limits[userID] = limit
	return nil
}

func (f *fakeStore) Limit(_ context.Context, userID string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, false, f.failWith
	}
	limit, ok := f.limits[userID]
	return limit, ok, nil
}

func (f *fakeStore) SetDefaultLimit(_ context.Context, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.defaultLimit = &limit
	return nil
}

func (f *fakeStore) DefaultLimit(_ context.Context) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, false, f.failWith
	}
	if f.defaultLimit == nil {
		return 0, false, nil
	}
	return *f.defaultLimit, true, nil
}
