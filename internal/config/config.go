// Package config loads and saves the marker reader's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"marker-reader/internal/capture"
	"marker-reader/internal/marker"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// CaptureConfig selects where live frames come from.
type CaptureConfig struct {
	// Source is a device index ("0") or a file/stream URL.
	Source       string        `yaml:"source"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// OutputConfig controls saved snapshots and annotated images.
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// Config is the full application configuration.
type Config struct {
	Detection marker.DetectionParams `yaml:"detection"`
	Capture   CaptureConfig          `yaml:"capture"`
	Output    OutputConfig           `yaml:"output"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Detection: marker.DefaultParams(),
		Capture: CaptureConfig{
			Source:       "0",
			PollInterval: capture.DefaultPollInterval,
		},
		Output: OutputConfig{
			Dir:         ".",
			JPEGQuality: 90,
		},
	}
}

// Validate checks the configuration for values the pipeline cannot use.
func (c Config) Validate() error {
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("%w: detection: %v", ErrInvalid, err)
	}
	if c.Capture.Source == "" {
		return fmt.Errorf("%w: capture.source is empty", ErrInvalid)
	}
	if c.Capture.PollInterval <= 0 {
		return fmt.Errorf("%w: capture.poll_interval must be positive, got %v", ErrInvalid, c.Capture.PollInterval)
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("%w: output.jpeg_quality must be in 1..100, got %d", ErrInvalid, c.Output.JPEGQuality)
	}
	return nil
}

// Load reads path on top of Default, so a file only needs the keys it
// changes. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except an empty path yields Default.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Save writes the configuration to path, creating parent directories.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
