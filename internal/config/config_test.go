package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
device:
  mode: bluetooth
  address: "AA:BB:CC:DD:EE:FF"
  bufferSize: 500
alerts:
  enabled: true
  thresholds:
    maxVoltage: 25
storage:
  dataDirectory: /tmp/fnbmon
chart:
  width: 800
  height: 400
`)

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if config.Settings.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", config.Settings.LogLevel)
	}
	if config.Device.Mode != "bluetooth" {
		t.Errorf("Mode = %q, want bluetooth", config.Device.Mode)
	}
	if config.Device.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Address = %q", config.Device.Address)
	}
	if config.Device.BufferSize != 500 {
		t.Errorf("BufferSize = %d, want 500", config.Device.BufferSize)
	}
	if config.Alerts.Thresholds.MaxVoltage != 25 {
		t.Errorf("MaxVoltage = %v, want 25", config.Alerts.Thresholds.MaxVoltage)
	}

	// Unset thresholds keep their defaults.
	if config.Alerts.Thresholds.MaxCurrent != 6 {
		t.Errorf("MaxCurrent = %v, want default 6", config.Alerts.Thresholds.MaxCurrent)
	}
	if config.Storage.DataDirectory != "/tmp/fnbmon" {
		t.Errorf("DataDirectory = %q", config.Storage.DataDirectory)
	}
	if config.Chart.Width != 800 || config.Chart.Height != 400 {
		t.Errorf("Chart = %dx%d, want 800x400", config.Chart.Width, config.Chart.Height)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoadInvalidMode(t *testing.T) {
	path := writeConfig(t, "device:\n  mode: serial\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for invalid mode")
	}
}

func TestLoadInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, "settings:\n  logLevel: verbose\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for invalid log level")
	}
}

func TestDefault(t *testing.T) {
	config := Default()

	if config.Device.Mode != "auto" {
		t.Errorf("Mode = %q, want auto", config.Device.Mode)
	}
	if !config.Alerts.Enabled {
		t.Error("Alerts.Enabled = false, want true")
	}
	if config.Alerts.Thresholds.MaxVoltage != 21 {
		t.Errorf("MaxVoltage = %v, want 21", config.Alerts.Thresholds.MaxVoltage)
	}
	if err := config.validate(); err != nil {
		t.Errorf("validate() error on defaults: %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		level, err := Settings{LogLevel: tt.in}.SlogLevel()
		if err != nil {
			t.Errorf("SlogLevel(%q) error: %v", tt.in, err)
			continue
		}
		if level != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, level, tt.want)
		}
	}
}
