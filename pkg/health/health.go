// Package health serves liveness and readiness checks for long running
// collision processes such as the sandbox with a trace stream attached.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-collide/pkg/event"
)

// HealthCheck is one component check
type HealthCheck interface {
	Name() string
	// Check returns an error when the component is unhealthy.
	Check(ctx context.Context) error
}

// HealthStatus is the aggregated result served by the readiness endpoint
type HealthStatus struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth is the result of a single check
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthChecker runs the registered checks
type HealthChecker struct {
	checks map[string]HealthCheck
	mu     sync.RWMutex
}

// NewHealthChecker creates an empty checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
	}
}

// AddCheck registers a check, replacing any check with the same name
func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name()] = check
}

// RemoveCheck removes a check by name
func (hc *HealthChecker) RemoveCheck(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	delete(hc.checks, name)
}

// CheckHealth runs every check. The result is healthy only if all pass.
func (hc *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := HealthStatus{
		Status: "healthy",
		Checks: make(map[string]ComponentHealth, len(hc.checks)),
	}
	for name, check := range hc.checks {
		if err := check.Check(ctx); err != nil {
			status.Status = "unhealthy"
			status.Checks[name] = ComponentHealth{Status: "unhealthy", Message: err.Error()}
			continue
		}
		status.Checks[name] = ComponentHealth{Status: "healthy"}
	}
	return status
}

// LivenessHandler answers 200 as long as the process serves HTTP
func (hc *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// ReadinessHandler runs the checks with a 5 second budget and answers 503
// when any fails
func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := hc.CheckHealth(ctx)

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// Register mounts /health and /ready on mux
func (hc *HealthChecker) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", hc.LivenessHandler)
	mux.HandleFunc("/ready", hc.ReadinessHandler)
}

// TickHealthCheck fails when the broad phase has not completed a tick
// within maxAge
type TickHealthCheck struct {
	maxAge   time.Duration
	now      func() time.Time
	lastTick atomic.Uint64
	lastAt   atomic.Int64
	sub      *event.Subscription
}

// NewTickHealthCheck watches TickCompleted events on bus
func NewTickHealthCheck(bus *event.Bus, maxAge time.Duration) *TickHealthCheck {
	tc := &TickHealthCheck{maxAge: maxAge, now: time.Now}
	tc.sub = bus.Subscribe(event.TickCompleted, func(e event.Event) {
		if te, ok := e.(*event.TickEvent); ok {
			tc.lastTick.Store(te.Tick)
		}
		tc.lastAt.Store(tc.now().UnixNano())
	})
	return tc
}

// Name returns the name of this health check.
func (tc *TickHealthCheck) Name() string {
	return "broad_phase"
}

// Check reports an error before the first tick and once ticks stall
func (tc *TickHealthCheck) Check(ctx context.Context) error {
	at := tc.lastAt.Load()
	if at == 0 {
		return fmt.Errorf("no tick completed yet")
	}
	if age := tc.now().Sub(time.Unix(0, at)); age > tc.maxAge {
		return fmt.Errorf("last tick %d completed %v ago, limit %v", tc.lastTick.Load(), age.Round(time.Millisecond), tc.maxAge)
	}
	return nil
}

// Close stops watching the bus
func (tc *TickHealthCheck) Close() {
	tc.sub.Cancel()
}

// ListenerHealthCheck fails while a listener has no address
type ListenerHealthCheck struct {
	name         string
	listenerAddr func() string
}

// NewListenerHealthCheck creates a check named name over listenerAddr
func NewListenerHealthCheck(name string, listenerAddr func() string) *ListenerHealthCheck {
	return &ListenerHealthCheck{name: name, listenerAddr: listenerAddr}
}

// Name returns the name of this health check.
func (l *ListenerHealthCheck) Name() string {
	return l.name
}

// Check verifies that the listener is bound
func (l *ListenerHealthCheck) Check(ctx context.Context) error {
	if l.listenerAddr() == "" {
		return fmt.Errorf("%s listener is not active", l.name)
	}
	return nil
}

// MemoryHealthCheck fails when heap usage exceeds a limit
type MemoryHealthCheck struct {
	maxMemoryMB    int64
	getMemoryUsage func() int64
}

// NewMemoryHealthCheck creates a memory check; getMemoryUsage reports MB
func NewMemoryHealthCheck(maxMemoryMB int64, getMemoryUsage func() int64) *MemoryHealthCheck {
	return &MemoryHealthCheck{
		maxMemoryMB:    maxMemoryMB,
		getMemoryUsage: getMemoryUsage,
	}
}

// Name returns the name of this health check.
func (m *MemoryHealthCheck) Name() string {
	return "memory"
}

// Check verifies that memory usage is within the limit
func (m *MemoryHealthCheck) Check(ctx context.Context) error {
	currentMB := m.getMemoryUsage()
	if currentMB > m.maxMemoryMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", currentMB, m.maxMemoryMB)
	}
	return nil
}
