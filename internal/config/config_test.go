package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aranet4-exporter/internal/ble"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
adapter = "hci1"
devices = ["ED:12:89:6C:08:37"]
fahrenheit = true
poll_interval_seconds = 60
metrics_listen = "0.0.0.0:9100"
search_timeout_ms = 20000
log_level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "hci1", cfg.Adapter)
	assert.True(t, cfg.Fahrenheit)
	assert.Equal(t, time.Minute, cfg.PollInterval())
	assert.Equal(t, "0.0.0.0:9100", cfg.MetricsListen)
	assert.Equal(t, 20*time.Second, cfg.SearchTimeout())

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	targets, err := cfg.Targets()
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, ble.MAC{0xED, 0x12, 0x89, 0x6C, 0x08, 0x37}, targets[0])
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `devices = ["ED:12:89:6C:08:37"]`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "hci0", cfg.Adapter)
	assert.False(t, cfg.Fahrenheit)
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.Equal(t, "127.0.0.1:8080", cfg.MetricsListen)
	assert.Equal(t, 15*time.Second, cfg.SearchTimeout())
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	// The written defaults are loadable but not yet usable: no devices.
	assert.Error(t, cfg.Validate())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no devices", func(c *Config) { c.Devices = nil }},
		{"bad MAC", func(c *Config) { c.Devices = []string{"not-a-mac"} }},
		{"zero interval", func(c *Config) { c.PollIntervalSeconds = 0 }},
		{"negative timeout", func(c *Config) { c.SearchTimeoutMs = -1 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Devices = []string{"ED:12:89:6C:08:37"}
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
