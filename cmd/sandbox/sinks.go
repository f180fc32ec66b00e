// cmd/sandbox/sinks.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/opd-ai/go-collide/pkg/config"
	"github.com/opd-ai/go-collide/pkg/engine"
	"github.com/opd-ai/go-collide/pkg/event"
	"github.com/opd-ai/go-collide/pkg/health"
	"github.com/opd-ai/go-collide/pkg/logging"
	"github.com/opd-ai/go-collide/pkg/trace"
)

// maxMemoryMB is the readiness limit for the sandbox heap
const maxMemoryMB = 512

// sinks receives a frame for every tick: a trace file, a live stream, or
// both
type sinks struct {
	logger *logging.Logger

	file     *os.File
	rec      *trace.Recorder
	recGuard *trace.Guard

	stream      *trace.Streamer
	streamGuard *trace.Guard
	srv         *http.Server
	ln          net.Listener
	tickCheck   *health.TickHealthCheck
}

func openSinks(cfg config.TraceConfig, tickRate int, logger *logging.Logger, bus *event.Bus) (*sinks, error) {
	s := &sinks{logger: logger}

	if cfg.File != "" {
		f, err := os.Create(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		s.file = f
		s.rec = trace.NewRecorder(f)
		s.recGuard = trace.NewGuard("trace_file", cfg, logger)
	}

	if cfg.StreamAddr != "" {
		ln, err := net.Listen("tcp", cfg.StreamAddr)
		if err != nil {
			s.close(context.Background())
			return nil, fmt.Errorf("failed to listen on %s: %w", cfg.StreamAddr, err)
		}
		s.ln = ln
		s.stream = trace.NewStreamer(cfg, logger)
		s.streamGuard = trace.NewGuard("trace_stream", cfg, logger)

		// ticks count as stalled after missing ten in a row
		s.tickCheck = health.NewTickHealthCheck(bus, 10*time.Second/time.Duration(max(1, tickRate)))
		hc := health.NewHealthChecker()
		hc.AddCheck(s.tickCheck)
		hc.AddCheck(health.NewListenerHealthCheck("trace_stream", func() string { return ln.Addr().String() }))
		hc.AddCheck(health.NewMemoryHealthCheck(maxMemoryMB, func() int64 {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return int64(m.Alloc / 1024 / 1024)
		}))

		mux := http.NewServeMux()
		mux.Handle(cfg.StreamPath, s.stream)
		hc.Register(mux)
		s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(context.Background(), "trace stream server failed", err)
			}
		}()
		logger.Info(context.Background(), "streaming ticks",
			"address", ln.Addr().String(),
			"path", cfg.StreamPath)
	}
	return s, nil
}

func (s *sinks) active() bool {
	return s.rec != nil || s.stream != nil
}

// publish records and streams the frame of the tick that just finished
func (s *sinks) publish(ctx context.Context, bp *engine.BroadPhase, report *engine.TickReport) {
	if !s.active() {
		return
	}
	f := trace.Capture(bp, report)
	if s.rec != nil {
		err := s.recGuard.Do(func() error { return s.rec.Record(f) })
		if err != nil && !errors.Is(err, trace.ErrSkipped) {
			s.logger.Error(ctx, "failed to record tick", err)
		}
	}
	if s.stream != nil {
		err := s.streamGuard.Do(func() error { return s.stream.Broadcast(f) })
		if err != nil && !errors.Is(err, trace.ErrSkipped) {
			s.logger.Error(ctx, "failed to stream tick", err)
		}
	}
}

// close flushes the trace and shuts the stream down
func (s *sinks) close(ctx context.Context) error {
	var errs []error
	if s.stream != nil {
		s.stream.Close()
		s.tickCheck.Close()
	}
	if s.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop stream server: %w", err))
		}
	} else if s.ln != nil {
		s.ln.Close()
	}
	if s.rec != nil {
		if err := s.rec.Flush(); err != nil {
			errs = append(errs, err)
		}
		s.logger.Info(ctx, "trace written",
			"file", s.file.Name(),
			"frames", s.rec.Frames(),
			"skipped", s.recGuard.Skipped())
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close trace file: %w", err))
		}
	}
	return errors.Join(errs...)
}
