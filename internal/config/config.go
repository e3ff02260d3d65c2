// Package config loads the application configuration from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fnb-tools/fnbmon/internal/alerts"
	"github.com/fnb-tools/fnbmon/internal/meter"
)

// Config is the main application configuration.
type Config struct {
	Settings Settings `yaml:"settings"`
	Device   Device   `yaml:"device"`
	Alerts   Alerts   `yaml:"alerts"`
	Storage  Storage  `yaml:"storage"`
	Chart    Chart    `yaml:"chart"`
}

// Settings holds global application settings.
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Device selects and tunes the meter connection.
type Device struct {
	Mode       string `yaml:"mode"`       // auto, usb or bluetooth
	Address    string `yaml:"address"`    // optional Bluetooth MAC pin
	BufferSize int    `yaml:"bufferSize"` // reading history capacity
}

// Alerts configures threshold monitoring.
type Alerts struct {
	Enabled    bool              `yaml:"enabled"`
	Thresholds alerts.Thresholds `yaml:"thresholds"`
}

// Storage configures session persistence.
type Storage struct {
	DataDirectory string `yaml:"dataDirectory"`
}

// Chart configures session plot rendering.
type Chart struct {
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	FontPath string `yaml:"fontPath"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Settings: Settings{LogLevel: "info"},
		Device:   Device{Mode: string(meter.ModeAuto)},
		Alerts: Alerts{
			Enabled:    true,
			Thresholds: alerts.DefaultThresholds(),
		},
		Storage: Storage{DataDirectory: "data"},
	}
}

// Load reads and validates the configuration file at path. Settings not
// present in the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch meter.ConnectionMode(c.Device.Mode) {
	case meter.ModeAuto, meter.ModeUSB, meter.ModeBluetooth:
	default:
		return fmt.Errorf("invalid device mode '%s'", c.Device.Mode)
	}

	if _, err := c.Settings.SlogLevel(); err != nil {
		return err
	}

	if c.Device.BufferSize < 0 {
		return fmt.Errorf("invalid buffer size %d", c.Device.BufferSize)
	}
	return nil
}

// SlogLevel parses the configured log level.
func (s Settings) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(s.LogLevel) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level '%s'", s.LogLevel)
	}
}
