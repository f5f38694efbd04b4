// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the client configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Data      DataConfig
	Server    ServerConfig
	Device    DeviceConfig
	Sync      SyncConfig
	Downloads DownloadConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds local data storage configuration.
type DataConfig struct {
	// BasePath is the directory that holds the local database and images.
	BasePath string
}

// ServerConfig holds the remote ListenUp server connection settings.
type ServerConfig struct {
	// BaseURL is the server root, e.g. "https://listenup.example.com".
	BaseURL string
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
	// RequestsPerSecond throttles outbound sync traffic per endpoint family.
	RequestsPerSecond float64
	// Burst is the rate limiter burst size.
	Burst int
	// Token is the bearer token presented on every request.
	Token string
}

// DeviceConfig identifies this installation to the server.
// Listening events carry both fields so multi-device history reads sensibly.
type DeviceConfig struct {
	ID   string
	Name string
}

// SyncConfig holds sync engine tuning.
type SyncConfig struct {
	// PageSize is the number of items requested per pull page.
	PageSize int
	// PushBatchSize bounds how many pending operations one push cycle drains.
	PushBatchSize int
	// MaxPhaseRetries is how many times a transient phase failure is retried
	// before the cycle surfaces an error.
	MaxPhaseRetries int
}

// DownloadConfig holds image download worker tuning.
type DownloadConfig struct {
	// Interval between download queue sweeps.
	Interval time.Duration
	// BatchSize is the number of tasks claimed per sweep.
	BatchSize int
	// MaxAttempts before a failed task stops being retried.
	MaxAttempts int
	// Retention is how long completed tasks are kept before purging.
	Retention time.Duration
	// Concurrency is the number of simultaneous downloads per sweep.
	Concurrency int
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for local data storage")
	serverURL := flag.String("server-url", "", "ListenUp server base URL")
	serverTimeout := flag.String("server-timeout", "", "Per-request HTTP timeout (default: 30s)")
	deviceName := flag.String("device-name", "", "Human-readable device name")
	pageSize := flag.String("sync-page-size", "", "Items per pull page (default: 100)")
	pushBatchSize := flag.String("push-batch-size", "", "Pending operations drained per push cycle (default: 200)")
	maxRetries := flag.String("sync-max-retries", "", "Transient phase retries per sync cycle (default: 3)")
	downloadInterval := flag.String("download-interval", "", "Download queue sweep interval (default: 30s)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", defaultDataPath()),
		},
		Server: ServerConfig{
			BaseURL:           getConfigValue(*serverURL, "SERVER_URL", ""),
			Timeout:           getDurationConfigValue(*serverTimeout, "SERVER_TIMEOUT", 30*time.Second),
			RequestsPerSecond: 5.0,
			Burst:             10,
			Token:             getConfigValue("", "SERVER_TOKEN", ""),
		},
		Device: DeviceConfig{
			ID:   getConfigValue("", "DEVICE_ID", ""),
			Name: getConfigValue(*deviceName, "DEVICE_NAME", defaultDeviceName()),
		},
		Sync: SyncConfig{
			PageSize:        getIntConfigValue(*pageSize, "SYNC_PAGE_SIZE", 100),
			PushBatchSize:   getIntConfigValue(*pushBatchSize, "PUSH_BATCH_SIZE", 200),
			MaxPhaseRetries: getIntConfigValue(*maxRetries, "SYNC_MAX_RETRIES", 3),
		},
		Downloads: DownloadConfig{
			Interval:    getDurationConfigValue(*downloadInterval, "DOWNLOAD_INTERVAL", 30*time.Second),
			BatchSize:   getIntConfigValue("", "DOWNLOAD_BATCH_SIZE", 10),
			MaxAttempts: getIntConfigValue("", "DOWNLOAD_MAX_ATTEMPTS", 5),
			Retention:   getDurationConfigValue("", "DOWNLOAD_RETENTION", 7*24*time.Hour),
			Concurrency: getIntConfigValue("", "DOWNLOAD_CONCURRENCY", 4),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present and sane.
func (c *Config) Validate() error {
	if c.Data.BasePath == "" {
		return errors.New("data path is required (set DATA_PATH or --data-path)")
	}
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > 500 {
		return fmt.Errorf("sync page size must be between 1 and 500, got %d", c.Sync.PageSize)
	}
	if c.Sync.PushBatchSize <= 0 {
		return fmt.Errorf("push batch size must be positive, got %d", c.Sync.PushBatchSize)
	}
	return nil
}

// defaultDataPath returns the platform default data directory.
func defaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".listenup")
}

// defaultDeviceName falls back to the hostname.
func defaultDeviceName() string {
	host, err := os.Hostname()
	if err != nil {
		return "listenup-client"
	}
	return host
}

// getConfigValue returns the first non-empty value: flag, env var, default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue is getConfigValue for integers. Unparseable values fall
// through to the default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	raw := getConfigValue(flagValue, envKey, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// getDurationConfigValue is getConfigValue for durations.
func getDurationConfigValue(flagValue, envKey string, defaultValue time.Duration) time.Duration {
	raw := getConfigValue(flagValue, envKey, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}

// loadEnvFile loads KEY=VALUE pairs from a file into the environment.
// Existing environment variables are not overwritten.
func loadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)

		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}
