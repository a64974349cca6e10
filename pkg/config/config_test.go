package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
harness:
  seed: 7
  multiplier: 3
format:
  name: memory
  compression: lz4
`), 0o644))

	t.Setenv("PC_HARNESS_SEED", "0x10")
	t.Setenv("PC_HARNESS_NIGHTLY", "true")
	t.Setenv("PC_FORMAT_COMPRESSION", "zstd")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), cfg.Harness.Seed)
	assert.Equal(t, 3, cfg.Harness.Multiplier)
	assert.True(t, cfg.Harness.Nightly)
	assert.Equal(t, "memory", cfg.Format.Name)
	assert.Equal(t, "zstd", cfg.Format.Compression)
	assert.Equal(t, 16, cfg.Format.SkipInterval)
	assert.Equal(t, 5, cfg.Harness.RandomIterations)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"multiplier", func(c *Config) { c.Harness.Multiplier = 0 }},
		{"iterations", func(c *Config) { c.Harness.RandomIterations = 0 }},
		{"workers", func(c *Config) { c.Harness.MinWorkers, c.Harness.MaxWorkers = 4, 3 }},
		{"format", func(c *Config) { c.Format.Name = "btree" }},
		{"compression", func(c *Config) { c.Format.Compression = "gzip" }},
		{"skip interval", func(c *Config) { c.Format.SkipInterval = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
