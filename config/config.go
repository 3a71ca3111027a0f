// Package config loads toolpack configuration from an optional YAML file and
// TOOLPACK_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "toolpack"

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
)

const (
	defaultHomeDirName      = ".toolpack"
	defaultHTTPTimeout      = 5 * time.Minute
	defaultInvokeTimeout    = 10 * time.Minute
	defaultDownloadAttempts = 3
	defaultLogLevel         = "info"
)

// Config holds the final configuration. File values are applied first and
// environment variables override them; remaining zero values get defaults.
type Config struct {
	ConfigFilePath string `yaml:"-" envconfig:"CONFIG_FILE"`

	Home        string `yaml:"home" envconfig:"HOME_DIR"`
	Manifest    string `yaml:"manifest" envconfig:"MANIFEST"`
	StoreDriver string `yaml:"store" envconfig:"STORE"`
	StorePath   string `yaml:"store_path" envconfig:"STORE_PATH"`
	PackagesDir string `yaml:"packages_dir" envconfig:"PACKAGES_DIR"`
	HistoryPath string `yaml:"history_path" envconfig:"HISTORY_PATH"`

	HTTPTimeout      time.Duration `yaml:"http_timeout" envconfig:"HTTP_TIMEOUT"`
	InvokeTimeout    time.Duration `yaml:"invoke_timeout" envconfig:"INVOKE_TIMEOUT"`
	DownloadAttempts int           `yaml:"download_attempts" envconfig:"DOWNLOAD_ATTEMPTS"`

	OtelExporterOtlpEndpoint string `yaml:"otel_exporter_otlp_endpoint" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpInsecure bool   `yaml:"otel_exporter_otlp_insecure" envconfig:"OTEL_EXPORTER_OTLP_INSECURE"`

	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// ParsedLogLevel returns the slog.Level based on the configured LogLevel string.
func (c *Config) ParsedLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads TOOLPACK_CONFIG_FILE (when set), then applies environment
// overrides and defaults.
func Load() (*Config, error) {
	var initial Config
	if err := envconfig.Process(EnvPrefix, &initial); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}

	cfg := Config{}
	if path := strings.TrimSpace(initial.ConfigFilePath); path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path from environment
		if err != nil {
			return nil, fmt.Errorf("config: reading config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing config file '%s': %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if strings.TrimSpace(c.Home) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("config: resolve user home: %w", err)
		}
		c.Home = filepath.Join(home, defaultHomeDirName)
	}
	if c.StoreDriver == "" {
		c.StoreDriver = StoreSQLite
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if c.StorePath == "" {
		c.StorePath = c.DefaultStorePath(c.StoreDriver)
	}
	if c.PackagesDir == "" {
		c.PackagesDir = filepath.Join(c.Home, "packages")
	}
	if c.HistoryPath == "" {
		c.HistoryPath = filepath.Join(c.Home, "history.jsonl")
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.InvokeTimeout <= 0 {
		c.InvokeTimeout = defaultInvokeTimeout
	}
	if c.DownloadAttempts <= 0 {
		c.DownloadAttempts = defaultDownloadAttempts
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	return nil
}

// DefaultStorePath returns the alias store location for driver under Home.
func (c *Config) DefaultStorePath(driver string) string {
	if driver == StoreFile {
		return filepath.Join(c.Home, "files.json")
	}
	return filepath.Join(c.Home, "toolpack.db")
}

// SettingsPath returns the user settings file.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Home, "settings.yaml")
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreSQLite, StoreFile:
	default:
		return fmt.Errorf("config: unknown store driver %q (want %s or %s)", c.StoreDriver, StoreSQLite, StoreFile)
	}
	return nil
}
