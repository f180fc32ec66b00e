// pkg/config/env_config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variables read by ApplyEnvironmentOverrides
const (
	EnvWorldWidth        = "COLLIDE_WORLD_WIDTH"
	EnvWorldHeight       = "COLLIDE_WORLD_HEIGHT"
	EnvRootCellSize      = "COLLIDE_ROOT_CELL_SIZE"
	EnvMaxBucketSize     = "COLLIDE_MAX_BUCKET_SIZE"
	EnvMaxDepth          = "COLLIDE_MAX_DEPTH"
	EnvNarrowPhasePasses = "COLLIDE_NARROW_PHASE_PASSES"
	EnvTileSize          = "COLLIDE_TILE_SIZE"
	EnvSandboxActors     = "COLLIDE_SANDBOX_ACTORS"
	EnvSandboxTickRate   = "COLLIDE_SANDBOX_TICK_RATE"
	EnvSandboxSeed       = "COLLIDE_SANDBOX_SEED"
	EnvSandboxMap        = "COLLIDE_SANDBOX_MAP"
	EnvSandboxHeadless   = "COLLIDE_SANDBOX_HEADLESS"
	EnvTraceFile         = "COLLIDE_TRACE_FILE"
	EnvTraceStreamAddr   = "COLLIDE_TRACE_STREAM_ADDR"
	EnvTraceWriteWait    = "COLLIDE_TRACE_WRITE_WAIT"
)

// ApplyEnvironmentOverrides replaces values in config with any COLLIDE_*
// variables that are set, then validates the result. Values that do not
// parse are ignored.
func ApplyEnvironmentOverrides(config *Config) error {
	col := &config.Collision
	col.WorldWidth = getEnvAsFloatOrDefault(EnvWorldWidth, col.WorldWidth)
	col.WorldHeight = getEnvAsFloatOrDefault(EnvWorldHeight, col.WorldHeight)
	col.RootCellSize = getEnvAsFloatOrDefault(EnvRootCellSize, col.RootCellSize)
	col.MaxBucketSize = getEnvAsIntOrDefault(EnvMaxBucketSize, col.MaxBucketSize)
	col.MaxDepth = getEnvAsIntOrDefault(EnvMaxDepth, col.MaxDepth)
	col.NarrowPhasePasses = getEnvAsIntOrDefault(EnvNarrowPhasePasses, col.NarrowPhasePasses)
	col.TileSize = getEnvAsFloatOrDefault(EnvTileSize, col.TileSize)

	sb := &config.Sandbox
	sb.Actors = getEnvAsIntOrDefault(EnvSandboxActors, sb.Actors)
	sb.TickRate = getEnvAsIntOrDefault(EnvSandboxTickRate, sb.TickRate)
	sb.Seed = int64(getEnvAsIntOrDefault(EnvSandboxSeed, int(sb.Seed)))
	sb.MapFile = getEnvOrDefault(EnvSandboxMap, sb.MapFile)
	sb.Headless = getEnvAsBoolOrDefault(EnvSandboxHeadless, sb.Headless)

	config.Trace.File = getEnvOrDefault(EnvTraceFile, config.Trace.File)
	config.Trace.StreamAddr = getEnvOrDefault(EnvTraceStreamAddr, config.Trace.StreamAddr)
	config.Trace.WriteWait = getEnvAsDurationOrDefault(EnvTraceWriteWait, config.Trace.WriteWait)

	return config.Validate()
}

// getEnvOrDefault returns the environment variable value or the default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault returns the environment variable as int or the default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvAsFloatOrDefault returns the environment variable as float64 or the default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault returns the environment variable as bool or the default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault returns the environment variable as a duration or the default
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
