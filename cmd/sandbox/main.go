// cmd/sandbox/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opd-ai/go-collide/pkg/config"
	"github.com/opd-ai/go-collide/pkg/event"
	"github.com/opd-ai/go-collide/pkg/logging"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file")
	createDefault := flag.Bool("default", false, "Create default configuration file")
	headless := flag.Bool("headless", false, "Run without a terminal UI")
	ticks := flag.Int("ticks", 0, "Ticks to run headless; 0 runs until interrupted")
	mapFile := flag.String("map", "", "ASCII tile map to load")
	traceFile := flag.String("trace", "", "Record ticks to this file")
	streamAddr := flag.String("stream", "", "Serve a live tick stream on this address")
	seed := flag.Int64("seed", 0, "Random seed for actor placement")
	logFile := flag.String("log", "", "Write logs to this file (the terminal UI discards logs otherwise)")
	flag.Parse()

	ctx := context.Background()
	logger := logging.NewLogger()

	if *createDefault {
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			logger.Error(ctx, "Failed to create default configuration", err, "config_path", *configPath)
			os.Exit(1)
		}
		logger.Info(ctx, "Created default configuration file", "config_path", *configPath)
		return
	}

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Error(ctx, "Failed to load configuration", err, "config_path", *configPath)
		os.Exit(1)
	}

	// flags given on the command line win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "headless":
			cfg.Sandbox.Headless = *headless
		case "ticks":
			cfg.Sandbox.Ticks = *ticks
		case "map":
			cfg.Sandbox.MapFile = *mapFile
		case "trace":
			cfg.Trace.File = *traceFile
		case "stream":
			cfg.Trace.StreamAddr = *streamAddr
		case "seed":
			cfg.Sandbox.Seed = *seed
		}
	})
	if err := cfg.Validate(); err != nil {
		logger.Error(ctx, "Invalid command line settings", err)
		os.Exit(1)
	}

	logger, closeLog, err := sandboxLogger(logger, *logFile, cfg.Sandbox.Headless)
	if err != nil {
		logger.Error(ctx, "Failed to open log file", err, "log_file", *logFile)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "Sandbox failed", err)
		closeLog()
		os.Exit(1)
	}
}

// loadConfig reads path when it exists, falls back to defaults otherwise,
// and applies COLLIDE_* overrides
func loadConfig(path string, logger *logging.Logger) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info(context.Background(), "Configuration file not found, using default configuration", "config_path", path)
		cfg = config.DefaultConfig()
	} else {
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// sandboxLogger keeps JSON logs off the screen while the terminal UI runs
func sandboxLogger(logger *logging.Logger, path string, headless bool) (*logging.Logger, func(), error) {
	level := logging.ParseLevel(os.Getenv(logging.LevelEnv))
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return logger, func() {}, err
		}
		return logging.NewLoggerTo(f, level), func() { f.Close() }, nil
	}
	if !headless {
		return logging.NewLoggerTo(io.Discard, slog.LevelError), func() {}, nil
	}
	return logger, func() {}, nil
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	bus := event.NewEventBus()
	w, err := newWorld(cfg, logger, bus)
	if err != nil {
		return err
	}

	out, err := openSinks(cfg.Trace, cfg.Sandbox.TickRate, logger, bus)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.close(context.Background()); err != nil {
			logger.Error(context.Background(), "Failed to close trace outputs", err)
		}
	}()

	if cfg.Sandbox.Headless {
		totals, err := runHeadless(ctx, w, out, cfg.Sandbox.Ticks, logger)
		if err != nil {
			return err
		}
		logger.Info(ctx, "Headless run complete",
			"ticks", totals.ticks,
			"static_hits", totals.staticHits,
			"actor_hits", totals.actorHits,
			"projectiles_fired", w.fired)
		return nil
	}

	term, err := newTerminal(w, out)
	if err != nil {
		return fmt.Errorf("failed to initialize terminal: %w", err)
	}
	defer term.close()
	return term.run(ctx)
}
