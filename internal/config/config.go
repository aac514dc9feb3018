package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"aranet4-exporter/internal/ble"
)

// Config is the TOML configuration of the exporter.
type Config struct {
	// Adapter is the local Bluetooth interface, e.g. "hci0".
	Adapter string `toml:"adapter"`
	// Devices are the MAC addresses of the target sensors.
	Devices []string `toml:"devices"`
	// Fahrenheit switches one-line output to °F. Metrics always publish
	// both units.
	Fahrenheit bool `toml:"fahrenheit"`
	// PollIntervalSeconds is the delay between reads in the streaming
	// modes.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	// MetricsListen is the bind address of the metrics endpoint in service
	// mode.
	MetricsListen string `toml:"metrics_listen"`
	// SearchTimeoutMs bounds the device search at startup.
	SearchTimeoutMs int `toml:"search_timeout_ms"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
	// Pinentry is the pinentry program used during pairing.
	Pinentry string `toml:"pinentry"`
}

// Default returns the configuration used when a field is absent.
func Default() Config {
	return Config{
		Adapter:             "hci0",
		PollIntervalSeconds: 30,
		MetricsListen:       "127.0.0.1:8080",
		SearchTimeoutMs:     15000,
		LogLevel:            "info",
		Pinentry:            "pinentry",
	}
}

// Load reads the config file at path. A missing file is created with the
// defaults so there is something to edit; the result still fails validation
// until target devices are configured.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return Config{}, fmt.Errorf("creating config directory for %s: %w", path, err)
		}
		cfgFile, err := os.Create(path)
		if err != nil {
			return Config{}, fmt.Errorf("creating default config %s: %w", path, err)
		}
		defer cfgFile.Close()
		if err := toml.NewEncoder(cfgFile).Encode(cfg); err != nil {
			return Config{}, fmt.Errorf("writing default config %s: %w", path, err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration.
func (c Config) Validate() error {
	if len(c.Devices) == 0 {
		return errors.New("no target devices configured")
	}
	for _, d := range c.Devices {
		if _, err := ble.ParseMAC(d); err != nil {
			return err
		}
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be positive, got %d", c.PollIntervalSeconds)
	}
	if c.SearchTimeoutMs <= 0 {
		return fmt.Errorf("search_timeout_ms must be positive, got %d", c.SearchTimeoutMs)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Targets returns the parsed device addresses.
func (c Config) Targets() ([]ble.MAC, error) {
	targets := make([]ble.MAC, 0, len(c.Devices))
	for _, d := range c.Devices {
		mac, err := ble.ParseMAC(d)
		if err != nil {
			return nil, err
		}
		targets = append(targets, mac)
	}
	return targets, nil
}

// PollInterval returns the poll interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// SearchTimeout returns the search timeout as a duration.
func (c Config) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutMs) * time.Millisecond
}

// SlogLevel parses the configured log level.
func (c Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q (allowed: debug, info, warn, error)", c.LogLevel)
	}
}
