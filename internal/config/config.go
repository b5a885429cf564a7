// Package config loads the viewer configuration: where the database
// lives, the model-wide layer defaults and per-layer overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Mr-Dark-debug/layerlens/internal/animation"
	"github.com/Mr-Dark-debug/layerlens/internal/channel"
	"github.com/Mr-Dark-debug/layerlens/internal/layer"
)

// MaxFileSize bounds the size of a config file.
const MaxFileSize = 1 * 1024 * 1024

var ErrInvalid = errors.New("invalid configuration")

// Config is the viewer configuration.
type Config struct {
	DBPath string `json:"db_path"`

	// Model applies to every layer; Layers overrides it by layer name.
	Model  layer.ModelConfig            `json:"model"`
	Layers map[string]layer.LayerConfig `json:"layers,omitempty"`

	// TickMillis is the animation frame interval of the viewer.
	TickMillis int  `json:"tick_millis"`
	Mouse      bool `json:"mouse"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	model := layer.DefaultModelConfig()
	model.TransitionNanos = int64(animation.DefaultDuration)
	return &Config{
		DBPath:     filepath.Join(homeDir, ".layerlens", "layerlens.db"),
		Model:      model,
		TickMillis: 33,
		Mouse:      true,
	}
}

// Load reads a JSON config file. Fields missing from the file keep
// their DefaultConfig values.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > MaxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Model.UnitLength <= 0 {
		return fmt.Errorf("%w: model.unit_length must be positive, got %v", ErrInvalid, c.Model.UnitLength)
	}
	if c.Model.OpenGapFactor < 1 {
		return fmt.Errorf("%w: model.open_gap_factor must be at least 1, got %v", ErrInvalid, c.Model.OpenGapFactor)
	}
	if c.Model.TransitionNanos < 0 {
		return fmt.Errorf("%w: model.transition_nanos must not be negative", ErrInvalid)
	}
	if _, err := channel.ParseStrategy(c.Model.Strategy); err != nil {
		return fmt.Errorf("%w: model: %v", ErrInvalid, err)
	}
	if c.TickMillis <= 0 {
		return fmt.Errorf("%w: tick_millis must be positive, got %d", ErrInvalid, c.TickMillis)
	}
	for name, lc := range c.Layers {
		if lc.Strategy != "" {
			if _, err := channel.ParseStrategy(lc.Strategy); err != nil {
				return fmt.Errorf("%w: layer %q: %v", ErrInvalid, name, err)
			}
		}
		if lc.UnitLength < 0 {
			return fmt.Errorf("%w: layer %q: unit_length must not be negative", ErrInvalid, name)
		}
	}
	return nil
}

// TransitionDuration is the open/close animation length.
func (c *Config) TransitionDuration() time.Duration {
	return time.Duration(c.Model.TransitionNanos)
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickMillis) * time.Millisecond
}

// LayerOverride merges the override for a named layer into base.
// Shape fields are never taken from the override.
func (c *Config) LayerOverride(name string, base layer.LayerConfig) layer.LayerConfig {
	o, ok := c.Layers[name]
	if !ok {
		return base
	}
	if o.Color != "" {
		base.Color = o.Color
	}
	if o.UnitLength > 0 {
		base.UnitLength = o.UnitLength
	}
	if o.Strategy != "" {
		base.Strategy = o.Strategy
	}
	if o.Open != nil {
		base.Open = o.Open
	}
	if o.TextSystem != nil {
		base.TextSystem = o.TextSystem
	}
	if o.RelationSystem != nil {
		base.RelationSystem = o.RelationSystem
	}
	return base
}
