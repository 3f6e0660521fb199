// Package config loads runtime configuration for the aes67bridge daemon.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the bridge daemon.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir             string // directory for the Config Persister's on-disk scope file
	StatusAddr          string // listen address for the read-only status/metrics HTTP surface
	DeviceChannels      int    // device channel count; fixed at 128 in production, overridable for tests
	RingSafetyMs        int    // ring fabric safety margin in milliseconds (spec §3.1 safety_ms)
	PTPEnabled          bool   // global PTP registry enable flag (spec §4.4)
	ConnectionTimeoutMs int    // receiver "connection lost" threshold (spec §4.6, §9 Open Questions)
	LogLevel            string
	LogFormat           string // "text" or "json"
}

const (
	defaultDataDir             = "./data"
	defaultStatusAddr          = ":8067"
	defaultDeviceChannels      = 128
	defaultRingSafetyMs        = 2
	defaultConnectionTimeoutMs = 500
	defaultLogLevel            = "info"
	defaultLogFormat           = "text"
)

// envPrefix is the prefix for all bridge environment variables.
const envPrefix = "AES67_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("aes67bridged", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "directory for persisted stream scope file")
	fs.StringVar(&cfg.StatusAddr, "status-addr", defaultStatusAddr, "listen address for the read-only status/metrics HTTP surface")
	fs.IntVar(&cfg.DeviceChannels, "device-channels", defaultDeviceChannels, "device channel count (fixed at 128 in production)")
	fs.IntVar(&cfg.RingSafetyMs, "ring-safety-ms", defaultRingSafetyMs, "ring fabric safety margin in milliseconds")
	fs.BoolVar(&cfg.PTPEnabled, "ptp-enabled", true, "enable PTP synchronisation (falls back to local clock when disabled or unlocked)")
	fs.IntVar(&cfg.ConnectionTimeoutMs, "connection-timeout-ms", defaultConnectionTimeoutMs, "receiver connection-lost threshold in milliseconds")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. CLI flags take precedence.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"data-dir":               envPrefix + "DATA_DIR",
		"status-addr":            envPrefix + "STATUS_ADDR",
		"device-channels":        envPrefix + "DEVICE_CHANNELS",
		"ring-safety-ms":         envPrefix + "RING_SAFETY_MS",
		"ptp-enabled":            envPrefix + "PTP_ENABLED",
		"connection-timeout-ms":  envPrefix + "CONNECTION_TIMEOUT_MS",
		"log-level":              envPrefix + "LOG_LEVEL",
		"log-format":             envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "status-addr":
			cfg.StatusAddr = val
		case "device-channels":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.DeviceChannels = v
			}
		case "ring-safety-ms":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RingSafetyMs = v
			}
		case "ptp-enabled":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.PTPEnabled = v
			}
		case "connection-timeout-ms":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.ConnectionTimeoutMs = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.DeviceChannels < 1 || c.DeviceChannels > 128 {
		return fmt.Errorf("device-channels must be between 1 and 128, got %d", c.DeviceChannels)
	}
	if c.RingSafetyMs < 1 {
		return fmt.Errorf("ring-safety-ms must be positive, got %d", c.RingSafetyMs)
	}
	if c.ConnectionTimeoutMs < 1 {
		return fmt.Errorf("connection-timeout-ms must be positive, got %d", c.ConnectionTimeoutMs)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// SlogHandler returns a slog.Handler configured with the configured format and level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
