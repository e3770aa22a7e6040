package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // Deployment tag: "dev", "test", "prod" - isolates job natural keys
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	ConfigStore ConfigStoreConfig `toml:"configstore"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
}

// SQLiteConfig represents SQLite-specific configuration
type SQLiteConfig struct {
	Path          string `toml:"path"`            // Database file path
	CacheSizeMB   int    `toml:"cache_size_mb"`   // Page cache size in MB
	BusyTimeoutMS int    `toml:"busy_timeout_ms"` // Lock wait timeout in milliseconds
	WALMode       bool   `toml:"wal_mode"`        // Enable write-ahead logging
}

// ConfigStoreConfig describes the remote configuration service connection.
// An empty Addr selects the in-memory client (no remote side).
type ConfigStoreConfig struct {
	Addr           string `toml:"addr"`            // Config service address, e.g. "http://localhost:8848"
	Namespace      string `toml:"namespace"`       // Namespace isolating documents between deployments
	Group          string `toml:"group"`           // Document group (default: "DEFAULT_GROUP")
	DataID         string `toml:"data_id"`         // Primary document data id for property reads
	Format         string `toml:"format"`          // Primary document format: "json" or "yaml"
	TimeoutMS      int    `toml:"timeout_ms"`      // Remote fetch timeout in milliseconds
	RequestsPerSec int    `toml:"requests_per_sec"` // Rate limit for remote get/publish calls
}

// SchedulerConfig contains scheduler and executor tuning
type SchedulerConfig struct {
	DefaultJobGroup      string `toml:"default_job_group"`      // Group assigned when a job declares none
	DefaultRetryCount    int    `toml:"default_retry_count"`    // Retries after the first attempt
	DefaultRetryInterval int    `toml:"default_retry_interval"` // Seconds between retries
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for log lines
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in cadence.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "dev",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/cadence.db",
				CacheSizeMB:   64,
				BusyTimeoutMS: 5000,
				WALMode:       true,
			},
		},
		ConfigStore: ConfigStoreConfig{
			Addr:           "", // Empty: run against the in-memory client
			Namespace:      "public",
			Group:          "DEFAULT_GROUP",
			DataID:         "cadence.properties.json",
			Format:         "json",
			TimeoutMS:      3000,
			RequestsPerSec: 10,
		},
		Scheduler: SchedulerConfig{
			DefaultJobGroup:      "DEFAULT",
			DefaultRetryCount:    3,
			DefaultRetryInterval: 60,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files, later files
// overriding earlier ones. Priority: env > last file > ... > first file > defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configuration invariants that would otherwise surface
// late as runtime faults.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.ConfigStore.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("invalid configstore format: %s (must be json or yaml)", c.ConfigStore.Format)
	}
	if c.ConfigStore.TimeoutMS <= 0 {
		return fmt.Errorf("invalid configstore timeout: %d", c.ConfigStore.TimeoutMS)
	}
	return nil
}

// ConfigStoreTimeout returns the remote fetch timeout as a duration.
func (c *Config) ConfigStoreTimeout() time.Duration {
	return time.Duration(c.ConfigStore.TimeoutMS) * time.Millisecond
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment tag (highest priority: CADENCE_ENV, fallback: GO_ENV)
	if env := os.Getenv("CADENCE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("CADENCE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CADENCE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if path := os.Getenv("CADENCE_SQLITE_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}

	// Config store connection
	if addr := os.Getenv("CADENCE_CONFIGSTORE_ADDR"); addr != "" {
		config.ConfigStore.Addr = addr
	}
	if ns := os.Getenv("CADENCE_CONFIGSTORE_NAMESPACE"); ns != "" {
		config.ConfigStore.Namespace = ns
	}
	if group := os.Getenv("CADENCE_CONFIGSTORE_GROUP"); group != "" {
		config.ConfigStore.Group = group
	}
	if dataID := os.Getenv("CADENCE_CONFIGSTORE_DATA_ID"); dataID != "" {
		config.ConfigStore.DataID = dataID
	}
	if format := os.Getenv("CADENCE_CONFIGSTORE_FORMAT"); format != "" {
		config.ConfigStore.Format = format
	}

	// Logging configuration
	if level := os.Getenv("CADENCE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("CADENCE_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("CADENCE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
