package config

import (
	"log/slog"
	"testing"
)

func TestDefaults(t *testing.T) {
	for _, env := range []string{
		"AES67_DATA_DIR", "AES67_STATUS_ADDR", "AES67_DEVICE_CHANNELS",
		"AES67_RING_SAFETY_MS", "AES67_PTP_ENABLED", "AES67_CONNECTION_TIMEOUT_MS",
		"AES67_LOG_LEVEL", "AES67_LOG_FORMAT",
	} {
		t.Setenv(env, "")
	}

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.StatusAddr != defaultStatusAddr {
		t.Errorf("StatusAddr = %q, want %q", cfg.StatusAddr, defaultStatusAddr)
	}
	if cfg.DeviceChannels != defaultDeviceChannels {
		t.Errorf("DeviceChannels = %d, want %d", cfg.DeviceChannels, defaultDeviceChannels)
	}
	if cfg.RingSafetyMs != defaultRingSafetyMs {
		t.Errorf("RingSafetyMs = %d, want %d", cfg.RingSafetyMs, defaultRingSafetyMs)
	}
	if !cfg.PTPEnabled {
		t.Errorf("PTPEnabled = false, want true")
	}
	if cfg.ConnectionTimeoutMs != defaultConnectionTimeoutMs {
		t.Errorf("ConnectionTimeoutMs = %d, want %d", cfg.ConnectionTimeoutMs, defaultConnectionTimeoutMs)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.LogFormat != defaultLogFormat {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, defaultLogFormat)
	}
}

func TestEnvVarOverride(t *testing.T) {
	t.Setenv("AES67_STATUS_ADDR", ":9090")
	t.Setenv("AES67_DATA_DIR", "/tmp/aes67bridge-test")
	t.Setenv("AES67_LOG_LEVEL", "debug")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.StatusAddr != ":9090" {
		t.Errorf("StatusAddr = %q, want :9090", cfg.StatusAddr)
	}
	if cfg.DataDir != "/tmp/aes67bridge-test" {
		t.Errorf("DataDir = %q, want /tmp/aes67bridge-test", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	t.Setenv("AES67_STATUS_ADDR", ":9090")
	t.Setenv("AES67_LOG_LEVEL", "debug")

	cfg, err := Load([]string{"--status-addr", ":3000", "--log-level", "warn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.StatusAddr != ":3000" {
		t.Errorf("StatusAddr = %q, want :3000 (CLI should override env)", cfg.StatusAddr)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidDeviceChannels(t *testing.T) {
	_, err := Load([]string{"--device-channels", "200"})
	if err == nil {
		t.Fatal("expected error for device-channels out of range, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	_, err := Load([]string{"--log-level", "verbose"})
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateInvalidLogFormat(t *testing.T) {
	_, err := Load([]string{"--log-format", "xml"})
	if err == nil {
		t.Fatal("expected error for invalid log format, got nil")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
