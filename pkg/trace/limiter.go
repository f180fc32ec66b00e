package trace

import (
	"sync"
	"time"
)

// connLimiter is a token bucket per remote host bounding how often a host
// may open a viewer connection
type connLimiter struct {
	burst  int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	hosts map[string]*bucket

	sweep *time.Ticker
	done  chan struct{}
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// newConnLimiter allows burst connections per host, refilled evenly over
// window. Idle hosts are forgotten after two windows.
func newConnLimiter(burst int, window time.Duration) *connLimiter {
	l := &connLimiter{
		burst:  burst,
		window: window,
		now:    time.Now,
		hosts:  make(map[string]*bucket),
		sweep:  time.NewTicker(window),
		done:   make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow consumes one token for host
func (l *connLimiter) Allow(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.hosts[host]
	if !ok {
		b = &bucket{tokens: l.burst, lastRefill: now}
		l.hosts[host] = b
	}

	if elapsed := now.Sub(b.lastRefill); elapsed > 0 && b.tokens < l.burst {
		refill := int(float64(l.burst) * float64(elapsed) / float64(l.window))
		if refill > 0 {
			b.tokens = min(l.burst, b.tokens+refill)
			b.lastRefill = now
		}
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

func (l *connLimiter) cleanup() {
	for {
		select {
		case <-l.sweep.C:
			l.forgetIdle()
		case <-l.done:
			return
		}
	}
}

func (l *connLimiter) forgetIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for host, b := range l.hosts {
		if b.lastRefill.Before(cutoff) {
			delete(l.hosts, host)
		}
	}
}

// Close stops the cleanup goroutine
func (l *connLimiter) Close() {
	close(l.done)
	l.sweep.Stop()
}
