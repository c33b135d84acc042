package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDispatchTimeout applies when a DispatchConfig with a zero
// timeout is handed straight to a constructor, bypassing defaults().
const DefaultDispatchTimeout = 5 * time.Second

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	RetryQueue RetryQueueConfig `yaml:"retry_queue"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	APIKey       string        `yaml:"api_key"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// DispatchConfig covers the outbound leg: the printer backend endpoints,
// the key they expect, and the per-request timeout.
type DispatchConfig struct {
	// Endpoints accepts a JSON array, a bracket-wrapped single URL, or a
	// comma-separated list. Parsed once at startup.
	Endpoints string        `yaml:"endpoints"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

type RetryQueueConfig struct {
	DrainInterval time.Duration `yaml:"drain_interval"`
	ReplaySpacing time.Duration `yaml:"replay_spacing"`
	MaxEntries    int           `yaml:"max_entries"`
}

type SchedulerConfig struct {
	PollInterval         time.Duration `yaml:"poll_interval"`
	BatchSize            int           `yaml:"batch_size"`
	MaxRetries           int           `yaml:"max_retries"`
	RetryResetDelay      time.Duration `yaml:"retry_reset_delay"`
	RequireColorForMixed bool          `yaml:"require_color_for_mixed"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:          "./data/dispatch.db",
			RetentionDays: 30,
		},
		Dispatch: DispatchConfig{
			Timeout: 5 * time.Second,
		},
		RetryQueue: RetryQueueConfig{
			DrainInterval: 30 * time.Second,
			ReplaySpacing: 1 * time.Second,
			MaxEntries:    1000,
		},
		Scheduler: SchedulerConfig{
			PollInterval:    5 * time.Second,
			BatchSize:       10,
			MaxRetries:      3,
			RetryResetDelay: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()

	if v := os.Getenv("DISPATCH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("DISPATCH_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("DISPATCH_PRINTER_ENDPOINTS"); v != "" {
		cfg.Dispatch.Endpoints = v
	}

	if v := os.Getenv("DISPATCH_PRINTER_API_KEY"); v != "" {
		cfg.Dispatch.APIKey = v
	}

	if v := os.Getenv("DISPATCH_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Dispatch.Timeout = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("DISPATCH_SERVER_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}

	if v := os.Getenv("DISPATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Database.RetentionDays < 0 {
		return fmt.Errorf("retention days must be non-negative")
	}

	if c.Dispatch.Timeout <= 0 {
		return fmt.Errorf("dispatch timeout must be positive")
	}

	if c.RetryQueue.DrainInterval <= 0 {
		return fmt.Errorf("retry queue drain interval must be positive")
	}

	if c.RetryQueue.ReplaySpacing < 0 {
		return fmt.Errorf("retry queue replay spacing must be non-negative")
	}

	if c.RetryQueue.MaxEntries < 1 {
		return fmt.Errorf("retry queue max entries must be at least 1")
	}

	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler poll interval must be positive")
	}

	if c.Scheduler.BatchSize < 1 {
		return fmt.Errorf("scheduler batch size must be at least 1")
	}

	if c.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative")
	}

	if c.Scheduler.RetryResetDelay < 0 {
		return fmt.Errorf("retry reset delay must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}
