package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// NoCaptureEnv disables output capture when set to a truthy value.
const NoCaptureEnv = "TALLY_NOCAPTURE"

// Config represents the tally configuration
type Config struct {
	Capture         *bool         `yaml:"capture,omitempty"`
	CaptureTee      *bool         `yaml:"captureTee,omitempty"`
	Verbosity       int           `yaml:"verbosity,omitempty"`
	NoColor         *bool         `yaml:"noColor,omitempty"`
	Descriptions    *bool         `yaml:"descriptions,omitempty"`
	Reporters       []string      `yaml:"reporters,omitempty"`       // Structured reporters: json, junit, tap
	OutputDir       string        `yaml:"outputDir,omitempty"`       // Directory for reporter files
	Durations       int           `yaml:"durations,omitempty"`       // Number of slowest tests to list
	MaxCaptureBytes int           `yaml:"maxCaptureBytes,omitempty"` // 0 keeps everything
	History         string        `yaml:"history,omitempty"`         // SQLite path, empty disables
	Notify          NotifyConfig  `yaml:"notify,omitempty"`
	Metrics         MetricsConfig `yaml:"metrics,omitempty"`
}

// NotifyConfig configures run notifications
type NotifyConfig struct {
	On           string `yaml:"on,omitempty"` // always, failure, success, recovery
	SlackWebhook string `yaml:"slackWebhook,omitempty"`
	SlackChannel string `yaml:"slackChannel,omitempty"`
	TeamsWebhook string `yaml:"teamsWebhook,omitempty"`
}

// MetricsConfig configures metrics export
type MetricsConfig struct {
	Format string `yaml:"format,omitempty"` // json, prometheus
	File   string `yaml:"file,omitempty"`
}

func boolPtr(b bool) *bool {
	return &b
}

// BoolPtr is exported version of boolPtr for external use
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetCapture returns the capture setting, defaulting to true
func (c *Config) GetCapture() bool {
	return getBool(c.Capture, true)
}

// GetCaptureTee returns the tee setting, defaulting to false
func (c *Config) GetCaptureTee() bool {
	return getBool(c.CaptureTee, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// GetDescriptions returns whether short descriptions name tests, defaulting to true
func (c *Config) GetDescriptions() bool {
	return getBool(c.Descriptions, true)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".tally.yaml",
	".tally.yml",
	"tally.yaml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c

	if other.Verbosity != 0 {
		result.Verbosity = other.Verbosity
	}
	if other.OutputDir != "" {
		result.OutputDir = other.OutputDir
	}
	if other.Durations > 0 {
		result.Durations = other.Durations
	}
	if other.MaxCaptureBytes > 0 {
		result.MaxCaptureBytes = other.MaxCaptureBytes
	}
	if other.History != "" {
		result.History = other.History
	}

	// Boolean flags - only override if explicitly set in other config
	if other.Capture != nil {
		result.Capture = other.Capture
	}
	if other.CaptureTee != nil {
		result.CaptureTee = other.CaptureTee
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}
	if other.Descriptions != nil {
		result.Descriptions = other.Descriptions
	}

	if len(other.Reporters) > 0 {
		result.Reporters = other.Reporters
	}

	if other.Notify.On != "" {
		result.Notify.On = other.Notify.On
	}
	if other.Notify.SlackWebhook != "" {
		result.Notify.SlackWebhook = other.Notify.SlackWebhook
	}
	if other.Notify.SlackChannel != "" {
		result.Notify.SlackChannel = other.Notify.SlackChannel
	}
	if other.Notify.TeamsWebhook != "" {
		result.Notify.TeamsWebhook = other.Notify.TeamsWebhook
	}
	if other.Metrics.Format != "" {
		result.Metrics.Format = other.Metrics.Format
	}
	if other.Metrics.File != "" {
		result.Metrics.File = other.Metrics.File
	}

	return &result
}

// ApplyEnv applies environment overrides. A truthy TALLY_NOCAPTURE turns
// capture off regardless of the file.
func (c *Config) ApplyEnv(getenv func(string) string) *Config {
	result := *c
	if NoCaptureFromEnv(getenv) {
		result.Capture = boolPtr(false)
	}
	return &result
}

// NoCaptureFromEnv reports whether TALLY_NOCAPTURE asks for capture to be off.
func NoCaptureFromEnv(getenv func(string) string) bool {
	if getenv == nil {
		getenv = os.Getenv
	}
	v := strings.TrimSpace(getenv(NoCaptureEnv))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		// Any non-boolean value counts as set.
		return true
	}
	return b
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
