// Package config loads the graphlower configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/graphlower/internal/rewrite"
)

// ErrInvalidConfig is returned for configuration values out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Log levels.
const (
	LevelSilent = "silent"
	LevelInfo   = "info"
	LevelDebug  = "debug"
)

// Config is the CLI configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Output    string          `yaml:"output"`
	Signature string          `yaml:"signature,omitempty"`
	Workers   int             `yaml:"workers"`
	Partial   bool            `yaml:"partial"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Rewrite   []rewrite.Rule  `yaml:"rewrite,omitempty"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig controls conversion telemetry.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MetricsFile string `yaml:"metrics_file,omitempty"`
	Buffer      int    `yaml:"buffer"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: LevelSilent},
		Output: OutputText,
		Telemetry: TelemetryConfig{
			Buffer: 64,
		},
	}
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is provided by user.
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML configuration on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if !slices.Contains([]string{LevelSilent, LevelInfo, LevelDebug}, c.Log.Level) {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Log.Level)
	}
	if !slices.Contains([]string{OutputText, OutputJSON, OutputYAML}, c.Output) {
		return fmt.Errorf("%w: output %q", ErrInvalidConfig, c.Output)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	}
	if c.Telemetry.Buffer < 0 {
		return fmt.Errorf("%w: telemetry buffer must not be negative", ErrInvalidConfig)
	}
	for i, r := range c.Rewrite {
		if r.Match == "" {
			return fmt.Errorf("%w: rewrite rule %d has no match expression", ErrInvalidConfig, i)
		}
	}
	return nil
}
