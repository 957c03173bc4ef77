package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
dispatch:
  strategy: pipeline
cache:
  locking: global
weather:
  timeout: 3s
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "pipeline", cfg.Dispatch.Strategy)
	assert.Equal(t, "global", cfg.Cache.Locking)
	assert.Equal(t, 3*time.Second, cfg.Weather.Timeout)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "weather:\n  api_key: from-file\n")
	t.Setenv("GATEWAY_WEATHER_API_KEY", "from-env")
	t.Setenv("GATEWAY_DISPATCH_WORKERS", "3")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Weather.APIKey)
	assert.Equal(t, 3, cfg.Dispatch.Workers)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GATEWAY_DISPATCH_STRATEGY", "pipeline")

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("strategy", "pool", "")
	flags.Int("port", 8080, "")
	require.NoError(t, flags.Parse([]string{"--strategy=spawn"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "spawn", cfg.Dispatch.Strategy)
	assert.Equal(t, 8080, cfg.Server.Port, "unchanged flags keep the lower layers")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_InvalidValue(t *testing.T) {
	path := writeFile(t, "dispatch:\n  strategy: fork\n")

	_, err := Load(path, nil)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "dispatch.strategy", cfgErr.Field)
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	assert.Error(t, WriteDefault(path), "existing file must not be overwritten")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"pool without workers", func(c *Config) { c.Dispatch.Workers = 0 }, "dispatch.workers"},
		{"negative queue", func(c *Config) { c.Dispatch.QueueSize = -1 }, "dispatch.queue_size"},
		{"unknown overflow", func(c *Config) { c.Dispatch.Overflow = "drop" }, "dispatch.overflow"},
		{"unknown locking", func(c *Config) { c.Cache.Locking = "none" }, "cache.locking"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"same ports", func(c *Config) { c.Server.MetricsPort = c.Server.Port }, "server.metrics_port"},
		{"no weather url", func(c *Config) { c.Weather.BaseURL = "" }, "weather.base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			var cfgErr *ConfigError
			require.True(t, errors.As(cfg.Validate(), &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	spawn := Default()
	spawn.Dispatch.Strategy = "spawn"
	spawn.Dispatch.Workers = 0
	assert.NoError(t, spawn.Validate(), "workers only matter for the pool")
}
