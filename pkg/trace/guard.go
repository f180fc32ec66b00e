// pkg/trace/guard.go
package trace

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/opd-ai/go-collide/pkg/config"
	"github.com/opd-ai/go-collide/pkg/logging"
)

// ErrSkipped is returned by Guard.Do while the output is suspended
var ErrSkipped = errors.New("trace output suspended")

// Guard suspends one trace output after BreakerFailures consecutive failed
// writes. After BreakerCooldown a single write is let through; success
// resumes the output and failure suspends it again.
type Guard struct {
	breaker *gobreaker.CircuitBreaker
	skipped int
}

// NewGuard creates a guard named after the output it protects
func NewGuard(name string, cfg config.TraceConfig, logger *logging.Logger) *Guard {
	if logger == nil {
		logger = logging.Discard()
	}
	failures := uint32(max(1, cfg.BreakerFailures))
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "trace output state changed",
				"output", name,
				"from", from.String(),
				"to", to.String())
		},
	}
	return &Guard{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Do runs write unless the output is suspended. Guards are not safe for
// concurrent use.
func (g *Guard) Do(write func() error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, write()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		g.skipped++
		return fmt.Errorf("%s: %w", g.breaker.Name(), ErrSkipped)
	}
	return err
}

// State returns the breaker state of the output
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}

// Skipped returns the number of writes dropped while suspended
func (g *Guard) Skipped() int {
	return g.skipped
}
