// cmd/sandbox/headless.go
package main

import (
	"context"
	"time"

	"github.com/opd-ai/go-collide/pkg/logging"
)

// runTotals accumulates tick reports over a run
type runTotals struct {
	ticks      int
	staticHits int
	actorHits  int
}

// runHeadless steps the world ticks times, or until ctx ends when ticks is
// not positive. Runs are paced to the tick rate while streaming or when
// unbounded, and run flat out otherwise.
func runHeadless(ctx context.Context, w *world, out *sinks, ticks int, logger *logging.Logger) (runTotals, error) {
	var totals runTotals
	rate := w.cfg.Sandbox.TickRate

	var pace <-chan time.Time
	if out.stream != nil || ticks <= 0 {
		ticker := time.NewTicker(time.Second / time.Duration(rate))
		defer ticker.Stop()
		pace = ticker.C
	}

	for ticks <= 0 || totals.ticks < ticks {
		if pace != nil {
			select {
			case <-ctx.Done():
				return totals, nil
			case <-pace:
			}
		} else if ctx.Err() != nil {
			return totals, nil
		}

		report, err := w.step(ctx)
		if err != nil {
			return totals, err
		}
		out.publish(ctx, w.bp, report)

		totals.ticks++
		totals.staticHits += report.StaticHits
		totals.actorHits += report.ActorHits
		if report.Tick%uint64(rate) == 0 {
			stats := w.bp.Stats()
			logger.Info(logging.WithTick(ctx, report.Tick), "tick summary",
				"actors", report.Actors,
				"moved", report.Moved,
				"static_hits", report.StaticHits,
				"actor_hits", report.ActorHits,
				"index_leaves", stats.Leaves,
				"index_depth", stats.MaxDepth)
		}
	}
	return totals, nil
}
