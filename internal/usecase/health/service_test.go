package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockProviderChecker struct {
	err error
}

func (m *mockProviderChecker) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockDBPinger{}, map[string]ProviderChecker{"openai": &mockProviderChecker{}})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["database"] != CheckOK {
		t.Errorf("expected database %q, got %q", CheckOK, r.Checks["database"])
	}
	if r.Checks["provider:openai"] != CheckOK {
		t.Errorf("expected provider:openai %q, got %q", CheckOK, r.Checks["provider:openai"])
	}
}

func TestCheck_DatabaseDown(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("connection refused")}, nil)
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["database"] != CheckError {
		t.Errorf("expected database %q, got %q", CheckError, r.Checks["database"])
	}
}

func TestCheck_OneProviderDown(t *testing.T) {
	svc := New(&mockDBPinger{}, map[string]ProviderChecker{
		"openai":    &mockProviderChecker{},
		"anthropic": &mockProviderChecker{err: errors.New("503")},
	})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["provider:openai"] != CheckOK {
		t.Errorf("expected provider:openai %q, got %q", CheckOK, r.Checks["provider:openai"])
	}
	if r.Checks["provider:anthropic"] != CheckError {
		t.Errorf("expected provider:anthropic %q, got %q", CheckError, r.Checks["provider:anthropic"])
	}
}

func TestCheck_NoProviders(t *testing.T) {
	svc := New(&mockDBPinger{}, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if len(r.Checks) != 1 {
		t.Errorf("expected only the database check, got %v", r.Checks)
	}
}
