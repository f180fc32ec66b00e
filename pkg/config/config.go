// pkg/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrInvalidConfig is wrapped by every Validate failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config contains configuration for the collision engine and its tools
type Config struct {
	Collision CollisionConfig `json:"collision"`
	Sandbox   SandboxConfig   `json:"sandbox"`
	Trace     TraceConfig     `json:"trace"`
}

// CollisionConfig sizes the world, the spatial index and the tile grid
type CollisionConfig struct {
	WorldWidth  float64 `json:"worldWidth"`
	WorldHeight float64 `json:"worldHeight"`
	// RootCellSize is the width of one quadtree root in world units.
	RootCellSize float64 `json:"rootCellSize"`
	// MaxBucketSize is the number of items a leaf holds before it splits.
	MaxBucketSize     int     `json:"maxBucketSize"`
	MaxDepth          int     `json:"maxDepth"`
	NarrowPhasePasses int     `json:"narrowPhasePasses"`
	TileSize          float64 `json:"tileSize"`
}

// SandboxConfig contains settings for cmd/sandbox
type SandboxConfig struct {
	Actors      int     `json:"actors"`
	Projectiles int     `json:"projectiles"`
	TickRate    int     `json:"tickRate"`
	Seed        int64   `json:"seed"`
	MaxSpeed    float64 `json:"maxSpeed"`
	// MapFile is an ASCII tile map; empty means a bordered empty room.
	MapFile string `json:"mapFile"`
	// Ticks bounds a headless run.
	Ticks    int  `json:"ticks"`
	Headless bool `json:"headless"`
}

// TraceConfig controls tick recording and live streaming
type TraceConfig struct {
	File       string `json:"file"`
	StreamAddr string `json:"streamAddr"`
	StreamPath string `json:"streamPath"`
	// SendBuffer is the number of frames queued per viewer before it is dropped.
	SendBuffer int `json:"sendBuffer"`
	// WriteWait bounds a single websocket write.
	WriteWait time.Duration `json:"writeWait"`
	// MaxViewers caps concurrent viewers; 0 means no cap.
	MaxViewers int `json:"maxViewers"`
	// ConnectLimit is the number of connections a host may open per
	// ConnectWindow; 0 disables the limit.
	ConnectLimit  int           `json:"connectLimit"`
	ConnectWindow time.Duration `json:"connectWindow"`
	// BreakerFailures is the number of consecutive failed writes that
	// suspends an output for BreakerCooldown.
	BreakerFailures int           `json:"breakerFailures"`
	BreakerCooldown time.Duration `json:"breakerCooldown"`
}

// LoadConfig loads a configuration from a file. Fields missing from the file
// keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves a configuration to a file
func SaveConfig(config *Config, path string) error {
	if config == nil {
		return fmt.Errorf("failed to marshal config: %w", ErrInvalidConfig)
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Collision: CollisionConfig{
			WorldWidth:        1024,
			WorldHeight:       1024,
			RootCellSize:      256,
			MaxBucketSize:     8,
			MaxDepth:          6,
			NarrowPhasePasses: 2,
			TileSize:          16,
		},
		Sandbox: SandboxConfig{
			Actors:      40,
			Projectiles: 8,
			TickRate:    30,
			Seed:        1,
			MaxSpeed:    6,
			Ticks:       300,
		},
		Trace: TraceConfig{
			StreamPath:      "/trace",
			SendBuffer:      64,
			WriteWait:       10 * time.Second,
			MaxViewers:      16,
			ConnectLimit:    10,
			ConnectWindow:   time.Minute,
			BreakerFailures: 5,
			BreakerCooldown: 5 * time.Second,
		},
	}
}

// Validate checks that every value is usable
func (c *Config) Validate() error {
	col := c.Collision
	switch {
	case !(col.WorldWidth > 0) || !(col.WorldHeight > 0):
		return fmt.Errorf("%w: world size %vx%v must be positive", ErrInvalidConfig, col.WorldWidth, col.WorldHeight)
	case !(col.RootCellSize > 0):
		return fmt.Errorf("%w: RootCellSize %v must be positive", ErrInvalidConfig, col.RootCellSize)
	case col.MaxBucketSize < 1:
		return fmt.Errorf("%w: MaxBucketSize %d must be at least 1", ErrInvalidConfig, col.MaxBucketSize)
	case col.MaxDepth < 0 || col.MaxDepth > 24:
		return fmt.Errorf("%w: MaxDepth %d must be between 0 and 24", ErrInvalidConfig, col.MaxDepth)
	case col.NarrowPhasePasses < 1:
		return fmt.Errorf("%w: NarrowPhasePasses %d must be at least 1", ErrInvalidConfig, col.NarrowPhasePasses)
	case !(col.TileSize > 0):
		return fmt.Errorf("%w: TileSize %v must be positive", ErrInvalidConfig, col.TileSize)
	}

	sb := c.Sandbox
	switch {
	case sb.Actors < 0 || sb.Projectiles < 0:
		return fmt.Errorf("%w: actor counts must not be negative", ErrInvalidConfig)
	case sb.TickRate < 1:
		return fmt.Errorf("%w: TickRate %d must be at least 1", ErrInvalidConfig, sb.TickRate)
	case sb.MaxSpeed < 0:
		return fmt.Errorf("%w: MaxSpeed %v must not be negative", ErrInvalidConfig, sb.MaxSpeed)
	}

	if c.Trace.SendBuffer < 1 {
		return fmt.Errorf("%w: SendBuffer %d must be at least 1", ErrInvalidConfig, c.Trace.SendBuffer)
	}
	tr := c.Trace
	switch {
	case tr.WriteWait <= 0:
		return fmt.Errorf("%w: WriteWait %v must be positive", ErrInvalidConfig, tr.WriteWait)
	case tr.MaxViewers < 0:
		return fmt.Errorf("%w: MaxViewers %d must not be negative", ErrInvalidConfig, tr.MaxViewers)
	case tr.ConnectLimit < 0:
		return fmt.Errorf("%w: ConnectLimit %d must not be negative", ErrInvalidConfig, tr.ConnectLimit)
	case tr.ConnectLimit > 0 && tr.ConnectWindow <= 0:
		return fmt.Errorf("%w: ConnectWindow %v must be positive when ConnectLimit is set", ErrInvalidConfig, tr.ConnectWindow)
	case tr.BreakerFailures < 1:
		return fmt.Errorf("%w: BreakerFailures %d must be at least 1", ErrInvalidConfig, tr.BreakerFailures)
	case tr.BreakerCooldown <= 0:
		return fmt.Errorf("%w: BreakerCooldown %v must be positive", ErrInvalidConfig, tr.BreakerCooldown)
	}
	return nil
}
