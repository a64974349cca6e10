// Package config loads and validates harness configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// corpus/scenario knobs, the postings format under test, logging and metrics.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level harness configuration.
type Config struct {
	Harness HarnessConfig `yaml:"harness"`
	Format  FormatConfig  `yaml:"format"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// HarnessConfig controls corpus generation and scenario execution.
type HarnessConfig struct {
	// Seed drives every random decision of a run. Zero means derive one from
	// the clock; the chosen seed is logged so a failure can be replayed.
	Seed             uint64 `yaml:"seed"`
	Multiplier       int    `yaml:"multiplier"`
	Nightly          bool   `yaml:"nightly"`
	RandomIterations int    `yaml:"randomIterations"`
	MinWorkers       int    `yaml:"minWorkers"`
	MaxWorkers       int    `yaml:"maxWorkers"`
	DataDir          string `yaml:"dataDir"`
}

// FormatConfig selects the postings format under test.
type FormatConfig struct {
	Name         string `yaml:"name"`
	Compression  string `yaml:"compression"`
	SkipInterval int    `yaml:"skipInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Harness: HarnessConfig{
			Multiplier:       1,
			RandomIterations: 5,
			MinWorkers:       2,
			MaxWorkers:       5,
		},
		Format: FormatConfig{
			Name:         "segment",
			Compression:  "none",
			SkipInterval: 16,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Validate rejects values no run can use.
func (c *Config) Validate() error {
	if c.Harness.Multiplier < 1 {
		return fmt.Errorf("harness.multiplier must be >= 1, got %d", c.Harness.Multiplier)
	}
	if c.Harness.RandomIterations < 1 {
		return fmt.Errorf("harness.randomIterations must be >= 1, got %d", c.Harness.RandomIterations)
	}
	if c.Harness.MinWorkers < 1 || c.Harness.MaxWorkers < c.Harness.MinWorkers {
		return fmt.Errorf("harness workers must satisfy 1 <= min <= max, got %d..%d",
			c.Harness.MinWorkers, c.Harness.MaxWorkers)
	}
	switch c.Format.Name {
	case "segment", "memory":
	default:
		return fmt.Errorf("unknown format %q", c.Format.Name)
	}
	switch c.Format.Compression {
	case "none", "lz4", "zstd", "s2":
	default:
		return fmt.Errorf("unknown compression %q", c.Format.Compression)
	}
	if c.Format.SkipInterval < 2 {
		return fmt.Errorf("format.skipInterval must be >= 2, got %d", c.Format.SkipInterval)
	}
	return nil
}

// applyEnvOverrides reads PC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PC_HARNESS_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 0, 64); err == nil {
			cfg.Harness.Seed = seed
		}
	}
	if v := os.Getenv("PC_HARNESS_MULTIPLIER"); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			cfg.Harness.Multiplier = m
		}
	}
	if v := os.Getenv("PC_HARNESS_NIGHTLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Harness.Nightly = b
		}
	}
	if v := os.Getenv("PC_HARNESS_RANDOM_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Harness.RandomIterations = n
		}
	}
	if v := os.Getenv("PC_HARNESS_DATA_DIR"); v != "" {
		cfg.Harness.DataDir = v
	}
	if v := os.Getenv("PC_FORMAT_NAME"); v != "" {
		cfg.Format.Name = v
	}
	if v := os.Getenv("PC_FORMAT_COMPRESSION"); v != "" {
		cfg.Format.Compression = v
	}
	if v := os.Getenv("PC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("PC_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("PC_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
