package config

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if config.Collision.WorldWidth != 1024 || config.Collision.WorldHeight != 1024 {
		t.Errorf("Expected world 1024x1024, got %vx%v", config.Collision.WorldWidth, config.Collision.WorldHeight)
	}
	if config.Collision.RootCellSize != 256 {
		t.Errorf("Expected RootCellSize 256, got %v", config.Collision.RootCellSize)
	}
	if config.Collision.MaxBucketSize != 8 {
		t.Errorf("Expected MaxBucketSize 8, got %d", config.Collision.MaxBucketSize)
	}
	if config.Collision.NarrowPhasePasses != 2 {
		t.Errorf("Expected NarrowPhasePasses 2, got %d", config.Collision.NarrowPhasePasses)
	}
	if config.Sandbox.TickRate != 30 {
		t.Errorf("Expected TickRate 30, got %d", config.Sandbox.TickRate)
	}
	if config.Trace.StreamPath != "/trace" {
		t.Errorf("Expected StreamPath '/trace', got '%s'", config.Trace.StreamPath)
	}
	if config.Trace.WriteWait != 10*time.Second {
		t.Errorf("Expected WriteWait 10s, got %v", config.Trace.WriteWait)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, expected nil", err)
	}
}

func TestLoadConfig_Success(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test_config.json")

	testConfig := DefaultConfig()
	testConfig.Collision.WorldWidth = 2048
	testConfig.Collision.MaxDepth = 3
	testConfig.Sandbox.Seed = 99
	testConfig.Trace.File = "ticks.trace"

	data, err := json.MarshalIndent(testConfig, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal test config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	loadedConfig, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if *loadedConfig != *testConfig {
		t.Errorf("LoadConfig() = %+v, expected %+v", loadedConfig, testConfig)
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "partial.json")
	partial := `{"collision": {"worldWidth": 640}, "sandbox": {"actors": 3}}`
	if err := os.WriteFile(configPath, []byte(partial), 0o644); err != nil {
		t.Fatalf("Failed to write partial config: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Collision.WorldWidth != 640 {
		t.Errorf("Expected WorldWidth 640, got %v", config.Collision.WorldWidth)
	}
	if config.Collision.WorldHeight != 1024 {
		t.Errorf("Expected default WorldHeight 1024, got %v", config.Collision.WorldHeight)
	}
	if config.Sandbox.Actors != 3 {
		t.Errorf("Expected Actors 3, got %d", config.Sandbox.Actors)
	}
	if config.Trace.SendBuffer != 64 {
		t.Errorf("Expected default SendBuffer 64, got %d", config.Trace.SendBuffer)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	config, err := LoadConfig("/path/that/does/not/exist/config.json")

	if err == nil {
		t.Error("Expected error when loading non-existent file, got nil")
	}
	if config != nil {
		t.Error("Expected nil config when file not found, got non-nil")
	}
	if err != nil && !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected read error, got '%s'", err.Error())
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected error wrapping os.ErrNotExist, got %v", err)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid_config.json")

	invalidJSON := `{"collision": {"worldWidth": 5000, invalid json}}`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0o644); err != nil {
		t.Fatalf("Failed to write invalid JSON file: %v", err)
	}

	config, err := LoadConfig(configPath)

	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
	if config != nil {
		t.Error("Expected nil config when JSON is invalid, got non-nil")
	}
	if err != nil && !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("Expected parse error, got '%s'", err.Error())
	}
}

func TestSaveConfig_Success(t *testing.T) {
	testConfig := DefaultConfig()
	testConfig.Collision.TileSize = 8
	testConfig.Sandbox.MapFile = "maps/room.txt"

	configPath := filepath.Join(t.TempDir(), "save_test_config.json")

	if err := SaveConfig(testConfig, configPath); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loadedConfig, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if *loadedConfig != *testConfig {
		t.Errorf("LoadConfig() = %+v, expected %+v", loadedConfig, testConfig)
	}
}

func TestSaveConfig_InvalidPath(t *testing.T) {
	invalidPath := filepath.Join(t.TempDir(), "missing", "directory", "config.json")

	err := SaveConfig(DefaultConfig(), invalidPath)

	if err == nil {
		t.Fatal("Expected error when saving to invalid path, got nil")
	}
	if !strings.Contains(err.Error(), "failed to write config file") {
		t.Errorf("Expected write error, got '%s'", err.Error())
	}
}

func TestSaveConfig_NilConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nil_config.json")

	err := SaveConfig(nil, configPath)

	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SaveConfig(nil) = %v, expected ErrInvalidConfig", err)
	}
	if _, statErr := os.Stat(configPath); !os.IsNotExist(statErr) {
		t.Error("SaveConfig(nil) created a file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{name: "zero_width", modify: func(c *Config) { c.Collision.WorldWidth = 0 }, field: "world size"},
		{name: "nan_height", modify: func(c *Config) { c.Collision.WorldHeight = math.NaN() }, field: "world size"},
		{name: "negative_root_cell", modify: func(c *Config) { c.Collision.RootCellSize = -1 }, field: "RootCellSize"},
		{name: "empty_bucket", modify: func(c *Config) { c.Collision.MaxBucketSize = 0 }, field: "MaxBucketSize"},
		{name: "depth_too_large", modify: func(c *Config) { c.Collision.MaxDepth = 25 }, field: "MaxDepth"},
		{name: "no_passes", modify: func(c *Config) { c.Collision.NarrowPhasePasses = 0 }, field: "NarrowPhasePasses"},
		{name: "zero_tile", modify: func(c *Config) { c.Collision.TileSize = 0 }, field: "TileSize"},
		{name: "negative_actors", modify: func(c *Config) { c.Sandbox.Actors = -1 }, field: "actor counts"},
		{name: "zero_tick_rate", modify: func(c *Config) { c.Sandbox.TickRate = 0 }, field: "TickRate"},
		{name: "negative_speed", modify: func(c *Config) { c.Sandbox.MaxSpeed = -2 }, field: "MaxSpeed"},
		{name: "zero_send_buffer", modify: func(c *Config) { c.Trace.SendBuffer = 0 }, field: "SendBuffer"},
		{name: "zero_write_wait", modify: func(c *Config) { c.Trace.WriteWait = 0 }, field: "WriteWait"},
		{name: "negative_viewers", modify: func(c *Config) { c.Trace.MaxViewers = -1 }, field: "MaxViewers"},
		{name: "negative_connect_limit", modify: func(c *Config) { c.Trace.ConnectLimit = -1 }, field: "ConnectLimit"},
		{name: "limit_without_window", modify: func(c *Config) { c.Trace.ConnectWindow = 0 }, field: "ConnectWindow"},
		{name: "zero_breaker_failures", modify: func(c *Config) { c.Trace.BreakerFailures = 0 }, field: "BreakerFailures"},
		{name: "zero_breaker_cooldown", modify: func(c *Config) { c.Trace.BreakerCooldown = 0 }, field: "BreakerCooldown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)

			err := config.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, expected ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Validate() = %q, expected mention of %s", err.Error(), tt.field)
			}
		})
	}
}
