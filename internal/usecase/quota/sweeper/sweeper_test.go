package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/botgate-io/botgate/internal/clock"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type mockStore struct {
	mu           sync.Mutex
	users        []string
	scanErr      error
	resetErr     map[string]error
	resetCalls   map[string]int
	staleAnchors map[string]bool // user -> stale (reset applies)
}

func (m *mockStore) ScanUsers(_ context.Context) ([]string, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return m.users, nil
}

func (m *mockStore) ResetIfStale(_ context.Context, userID string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetCalls == nil {
		m.resetCalls = make(map[string]int)
	}
	m.resetCalls[userID]++
	if err := m.resetErr[userID]; err != nil {
		return false, err
	}
	return m.staleAnchors[userID], nil
}

func testPeriods(t *testing.T) clock.Periods {
	t.Helper()
	p, err := clock.NewPeriods("UTC")
	if err != nil {
		t.Fatalf("load periods: %v", err)
	}
	return p
}

func TestSweep_ResetsStaleRecordsOnly(t *testing.T) {
	ms := &mockStore{
		users:        []string{"stale", "current"},
		staleAnchors: map[string]bool{"stale": true},
	}
	clk := fixedClock{now: time.Date(2024, 6, 15, 3, 0, 0, 0, time.UTC)}
	s := New(ms, clk, testPeriods(t), time.Minute, zap.NewNop())

	s.Sweep(context.Background())

	if ms.resetCalls["stale"] != 1 || ms.resetCalls["current"] != 1 {
		t.Errorf("expected one reset attempt per user, got %v", ms.resetCalls)
	}
}

func TestSweep_OneFailureDoesNotAbortPass(t *testing.T) {
	ms := &mockStore{
		users:        []string{"a", "b", "c"},
		resetErr:     map[string]error{"b": errors.New("transient")},
		staleAnchors: map[string]bool{"a": true, "c": true},
	}
	clk := fixedClock{now: time.Date(2024, 6, 15, 3, 0, 0, 0, time.UTC)}
	s := New(ms, clk, testPeriods(t), time.Minute, zap.NewNop())

	s.Sweep(context.Background())

	for _, u := range []string{"a", "b", "c"} {
		if ms.resetCalls[u] != 1 {
			t.Errorf("expected reset attempt for %s, got %d", u, ms.resetCalls[u])
		}
	}
}

func TestRun_CatchUpPassBeforeLoop(t *testing.T) {
	ms := &mockStore{
		users:        []string{"downtime-user"},
		staleAnchors: map[string]bool{"downtime-user": true},
	}
	clk := fixedClock{now: time.Date(2024, 6, 15, 3, 0, 0, 0, time.UTC)}
	s := New(ms, clk, testPeriods(t), time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// The catch-up pass runs synchronously before the ticker loop; give the
	// goroutine a moment, then stop it. The long interval guarantees any
	// observed reset came from the catch-up pass.
	deadline := time.After(2 * time.Second)
	for {
		ms.mu.Lock()
		n := ms.resetCalls["downtime-user"]
		ms.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("catch-up pass did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop on context cancellation")
	}
}
