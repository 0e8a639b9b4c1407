// Package config loads chkrelease configuration from file and environment.
// The config file is optional; flags override everything.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level"`
	Path       string            `mapstructure:"path" yaml:"path"`
	Components map[string]string `mapstructure:"components" yaml:"components,omitempty"`
}

// HistoryConfig configures run-history recording.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Path          string `mapstructure:"path" yaml:"path"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
}

// Config represents the application configuration.
type Config struct {
	// Totals enables the end-of-run counters report.
	Totals bool `mapstructure:"totals" yaml:"totals"`

	// Messy suppresses scratch-area cleanup for post-mortem inspection.
	Messy bool `mapstructure:"messy" yaml:"messy"`

	// Progress enables periodic and signal-driven progress snapshots.
	// Implies Totals.
	Progress bool `mapstructure:"progress" yaml:"progress"`

	// ProgressInterval is how many entries pass between periodic
	// progress snapshots.
	ProgressInterval int `mapstructure:"progress_interval" yaml:"progress_interval"`

	// Untracked lists live files that are not archive members.
	Untracked bool `mapstructure:"untracked" yaml:"untracked"`

	// ScratchDir overrides the parent directory for the scratch area.
	ScratchDir string `mapstructure:"scratch_dir" yaml:"scratch_dir"`

	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/chkrelease/config.yaml
//   - $HOME/.config/chkrelease/config.yaml
//
// Environment variables are prefixed with CHKRELEASE_
// (e.g., CHKRELEASE_TOTALS).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "chkrelease"))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "chkrelease"))

	v.SetEnvPrefix("CHKRELEASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.HasPrefix(cfg.History.Path, "~") {
		cfg.History.Path = filepath.Join(homeDir, cfg.History.Path[1:])
	}

	return &cfg, nil
}

// SetDefaults registers every config default on the given viper instance.
// Shared between Load and the CLI's own viper so flag-only runs see the
// same values.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("totals", false)
	v.SetDefault("messy", false)
	v.SetDefault("progress", false)
	v.SetDefault("progress_interval", DefaultProgressInterval)
	v.SetDefault("untracked", false)
	v.SetDefault("scratch_dir", "")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.components", map[string]string{
		"audit":   "info",
		"archive": "info",
		"scratch": "warn",
	})
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "chkrelease"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "chkrelease"), nil
}

// HistoryDir returns the run-history directory path. An explicit path
// from the config wins; otherwise records live next to the config file.
func HistoryDir(cfg *Config) (string, error) {
	if cfg != nil && cfg.History.Path != "" {
		return cfg.History.Path, nil
	}

	configDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "history"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a default config file if none exists.
// Returns nil if a config file already exists.
func WriteDefault() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configDir, err := ConfigDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# chkrelease configuration

# Print end-of-run counter totals to stderr
totals: false

# Keep the scratch area after the run (post-mortem inspection)
messy: false

# Periodic and signal-driven progress snapshots (implies totals)
progress: false

# Entries between periodic progress snapshots
progress_interval: %d

# Report live files that are not archive members
untracked: false

# Parent directory for the per-run scratch area (empty means system temp dir)
scratch_dir: ""

# Run-history recording
history:
  enabled: true
  # Record directory (empty means $XDG_CONFIG_HOME/chkrelease/history)
  path: ""
  retention_days: %d

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means $XDG_STATE_HOME/chkrelease/chkrelease.log)
  path: ""
  # Per-component log levels
  components:
    audit: info
    archive: info
    scratch: warn
`, DefaultProgressInterval, DefaultRetentionDays)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}
