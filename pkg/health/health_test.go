package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opd-ai/go-collide/pkg/config"
	"github.com/opd-ai/go-collide/pkg/engine"
	"github.com/opd-ai/go-collide/pkg/event"
)

// mockHealthCheck implements HealthCheck for testing
type mockHealthCheck struct {
	name    string
	healthy bool
}

func (m *mockHealthCheck) Name() string {
	return m.name
}

func (m *mockHealthCheck) Check(ctx context.Context) error {
	if !m.healthy {
		return fmt.Errorf("mock health check failed")
	}
	return nil
}

// slowHealthCheck waits for delay or the context, whichever ends first
type slowHealthCheck struct {
	name  string
	delay time.Duration
}

func (s *slowHealthCheck) Name() string {
	return s.name
}

func (s *slowHealthCheck) Check(ctx context.Context) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestHealthChecker_AddRemoveCheck(t *testing.T) {
	hc := NewHealthChecker()
	check := &mockHealthCheck{name: "test", healthy: true}

	hc.AddCheck(check)
	if hc.checks["test"] != check {
		t.Error("Check not properly stored")
	}
	hc.AddCheck(&mockHealthCheck{name: "test"})
	if len(hc.checks) != 1 {
		t.Errorf("Expected a replaced check, got %d checks", len(hc.checks))
	}
	hc.RemoveCheck("test")
	if len(hc.checks) != 0 {
		t.Errorf("Expected 0 checks after removal, got %d", len(hc.checks))
	}
}

func TestHealthChecker_CheckHealth(t *testing.T) {
	tests := []struct {
		name     string
		checks   []*mockHealthCheck
		expected string
	}{
		{name: "no_checks", expected: "healthy"},
		{
			name:     "all_healthy",
			checks:   []*mockHealthCheck{{name: "check1", healthy: true}, {name: "check2", healthy: true}},
			expected: "healthy",
		},
		{
			name:     "one_unhealthy",
			checks:   []*mockHealthCheck{{name: "check1", healthy: true}, {name: "check2"}},
			expected: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker()
			for _, check := range tt.checks {
				hc.AddCheck(check)
			}

			status := hc.CheckHealth(context.Background())
			if status.Status != tt.expected {
				t.Errorf("CheckHealth() status = %s, expected %s", status.Status, tt.expected)
			}
			for _, check := range tt.checks {
				expected := "healthy"
				if !check.healthy {
					expected = "unhealthy"
				}
				if got := status.Checks[check.name].Status; got != expected {
					t.Errorf("check %s = %s, expected %s", check.name, got, expected)
				}
			}
		})
	}
}

func TestHealthChecker_CheckHealthWithTimeout(t *testing.T) {
	hc := NewHealthChecker()
	hc.AddCheck(&slowHealthCheck{name: "slow", delay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := hc.CheckHealth(ctx).Checks["slow"]
	if result.Status != "unhealthy" || result.Message == "" {
		t.Errorf("slow check = %+v, expected unhealthy with a message", result)
	}
}

func TestHealthChecker_Handlers(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		healthy      bool
		expectedCode int
		expectedBody string
	}{
		{"liveness", "/health", false, http.StatusOK, "alive"},
		{"ready", "/ready", true, http.StatusOK, "healthy"},
		{"not_ready", "/ready", false, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker()
			hc.AddCheck(&mockHealthCheck{name: "check", healthy: tt.healthy})
			mux := http.NewServeMux()
			hc.Register(mux)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.expectedCode {
				t.Errorf("GET %s status = %d, expected %d", tt.path, rec.Code, tt.expectedCode)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, expected application/json", ct)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if body["status"] != tt.expectedBody {
				t.Errorf("status field = %v, expected %s", body["status"], tt.expectedBody)
			}
		})
	}
}

func TestTickHealthCheck(t *testing.T) {
	bus := event.NewEventBus()
	check := NewTickHealthCheck(bus, time.Second)
	defer check.Close()
	now := time.Unix(1000, 0)
	check.now = func() time.Time { return now }

	if check.Name() != "broad_phase" {
		t.Errorf("Name() = %q, expected broad_phase", check.Name())
	}
	if err := check.Check(context.Background()); err == nil {
		t.Error("Check() before any tick = nil, expected an error")
	}

	bus.Publish(event.NewTickEvent(nil, 7, 0, 0, 0, 0, 0))
	now = now.Add(500 * time.Millisecond)
	if err := check.Check(context.Background()); err != nil {
		t.Errorf("Check() after a recent tick = %v, expected nil", err)
	}

	now = now.Add(time.Second)
	if err := check.Check(context.Background()); err == nil {
		t.Error("Check() after ticks stalled = nil, expected an error")
	}
}

func TestTickHealthCheck_WatchesBroadPhase(t *testing.T) {
	bus := event.NewEventBus()
	check := NewTickHealthCheck(bus, time.Minute)
	defer check.Close()

	bp := engine.New(config.DefaultConfig().Collision, nil, bus)
	bp.Init(100, 100)
	if _, err := bp.Update(context.Background()); err != nil {
		t.Fatalf("Update() = %v", err)
	}

	if err := check.Check(context.Background()); err != nil {
		t.Errorf("Check() = %v, expected nil after an update", err)
	}
	if check.lastTick.Load() != 1 {
		t.Errorf("last tick = %d, expected 1", check.lastTick.Load())
	}
}

func TestListenerHealthCheck(t *testing.T) {
	addr := ""
	check := NewListenerHealthCheck("trace_stream", func() string { return addr })

	if check.Name() != "trace_stream" {
		t.Errorf("Name() = %q, expected trace_stream", check.Name())
	}
	if err := check.Check(context.Background()); err == nil {
		t.Error("Check() without address = nil, expected an error")
	}
	addr = "127.0.0.1:8090"
	if err := check.Check(context.Background()); err != nil {
		t.Errorf("Check() = %v, expected nil", err)
	}
}

func TestMemoryHealthCheck(t *testing.T) {
	tests := []struct {
		name      string
		usageMB   int64
		expectErr bool
	}{
		{"under_limit", 100, false},
		{"at_limit", 500, false},
		{"over_limit", 600, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := NewMemoryHealthCheck(500, func() int64 { return tt.usageMB })
			if err := check.Check(context.Background()); (err != nil) != tt.expectErr {
				t.Errorf("Check() = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}
