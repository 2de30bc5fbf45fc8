// Package config handles process configuration loading from YAML files,
// environment variables, and command-line flags.
// Precedence: CLI flags > environment variables > config file > embedded > defaults.
//
// User-facing preferences (polling rate, pinned and graphed sensors) live in
// the settings document, not here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "500ms", "1.5s", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all process configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Settings SettingsConfig `yaml:"settings"`
	Provider ProviderConfig `yaml:"provider"`
	History  HistoryConfig  `yaml:"history"`
	Recorder RecorderConfig `yaml:"recorder"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// SettingsConfig locates the user settings document.
type SettingsConfig struct {
	// Path of appSettings.json. Empty means the per-user default.
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// ProviderConfig tunes the hardware collectors.
type ProviderConfig struct {
	RefreshTimeout Duration `yaml:"refresh_timeout"`
	ThermalTTL     Duration `yaml:"thermal_ttl"`
	// Disabled lists collector names that are not registered.
	Disabled []string `yaml:"disabled"`
}

// HistoryConfig holds graph history settings.
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

// RecorderConfig holds the SQLite sample recorder settings.
type RecorderConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DBPath        string   `yaml:"db_path"`
	BatchSize     int      `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// Collectors known to the composition root. Used to validate Disabled.
var Collectors = []string{"cpu", "memory", "storage", "network", "gpu-nvidia", "hwmon"}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
		Settings: SettingsConfig{
			Watch: true,
		},
		Provider: ProviderConfig{
			RefreshTimeout: Duration{1500 * time.Millisecond},
			ThermalTTL:     Duration{500 * time.Millisecond},
		},
		History: HistoryConfig{
			Capacity: 30,
		},
		Recorder: RecorderConfig{
			Enabled:       false,
			DBPath:        "./samples.db",
			BatchSize:     100,
			FlushInterval: Duration{30 * time.Second},
		},
	}
}

// CLIOverrides holds values from command-line flags.
// Zero values are treated as "not set" and skipped.
type CLIOverrides struct {
	LogLevel     string
	SettingsPath string
	Record       bool
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value  → use that path ("" means no external file)
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	var filePath string
	if len(configPath) > 0 {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.SettingsPath != "" {
		cfg.Settings.Path = cli.SettingsPath
	}
	if cli.Record {
		cfg.Recorder.Enabled = true
	}

	return cfg, nil
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed. The result loads back through
// LoadLayered unchanged.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies SPECTROMETER_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	if level := os.Getenv("SPECTROMETER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if file := os.Getenv("SPECTROMETER_LOG_FILE"); file != "" {
		cfg.Logging.File = file
	}
	if path := os.Getenv("SPECTROMETER_SETTINGS"); path != "" {
		cfg.Settings.Path = path
	}
	if disabled := os.Getenv("SPECTROMETER_DISABLED_COLLECTORS"); disabled != "" {
		cfg.Provider.Disabled = splitList(disabled)
	}
	if v := os.Getenv("SPECTROMETER_RECORDER_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing SPECTROMETER_RECORDER_ENABLED: %w", err)
		}
		cfg.Recorder.Enabled = enabled
	}
	if path := os.Getenv("SPECTROMETER_RECORDER_DB"); path != "" {
		cfg.Recorder.DBPath = path
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsDisabled reports whether the named collector is switched off.
func (c *Config) IsDisabled(collector string) bool {
	for _, name := range c.Provider.Disabled {
		if strings.EqualFold(name, collector) {
			return true
		}
	}
	return false
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("log level must be one of debug, info, warn, error (got: %q)", c.Logging.Level))
	}
	if c.Provider.RefreshTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("provider refresh timeout must be positive"))
	}
	if c.Provider.ThermalTTL.Duration < 0 {
		errs = append(errs, fmt.Errorf("thermal cache TTL must not be negative"))
	}
	for _, name := range c.Provider.Disabled {
		if !knownCollector(name) {
			errs = append(errs, fmt.Errorf("unknown collector %q in provider.disabled", name))
		}
	}
	if c.History.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("history capacity must be positive"))
	}
	if c.Recorder.Enabled {
		if c.Recorder.DBPath == "" {
			errs = append(errs, fmt.Errorf("recorder db_path is required when the recorder is enabled"))
		}
		if c.Recorder.BatchSize <= 0 {
			errs = append(errs, fmt.Errorf("recorder batch size must be positive"))
		}
	}
	return multierr.Combine(errs...)
}

func knownCollector(name string) bool {
	for _, known := range Collectors {
		if strings.EqualFold(name, known) {
			return true
		}
	}
	return false
}
