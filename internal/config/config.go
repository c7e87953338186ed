// Package config contains everything related to configuration
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	BaseURL              string
	CredentialsPath      string
	SettingsPath         string
	HistoryPath          string
	LogPath              string
	LogLevel             string
	HistoryRetentionDays int
	PruneInterval        time.Duration
}

// Default values
const (
	defaultBaseURL              = "https://claude.ai"
	defaultHistoryRetentionDays = 90
	defaultPruneInterval        = 24 * time.Hour
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	envPaths := getEnvPaths()
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		BaseURL:              getEnvString("CLAUDE_MONITOR_BASE_URL", defaultBaseURL),
		CredentialsPath:      getEnvString("CLAUDE_MONITOR_CREDENTIALS_PATH", defaultConfigFile("credentials.json")),
		SettingsPath:         getEnvString("CLAUDE_MONITOR_SETTINGS_PATH", defaultConfigFile("settings.json")),
		HistoryPath:          getEnvString("CLAUDE_MONITOR_HISTORY_PATH", defaultConfigFile("usage_history.db")),
		LogPath:              getEnvString("CLAUDE_MONITOR_LOG_PATH", ""),
		LogLevel:             getEnvString("CLAUDE_MONITOR_LOG_LEVEL", "info"),
		HistoryRetentionDays: getEnvInt("CLAUDE_MONITOR_RETENTION_DAYS", defaultHistoryRetentionDays),
		PruneInterval:        getEnvDuration("CLAUDE_MONITOR_PRUNE_INTERVAL", defaultPruneInterval),
	}

	if cfg.HistoryRetentionDays <= 0 {
		cfg.HistoryRetentionDays = defaultHistoryRetentionDays
	}

	// Ensure state directories exist
	for _, path := range []string{cfg.CredentialsPath, cfg.SettingsPath, cfg.HistoryPath} {
		if err := ensureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory locations
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "claude-monitor", ".env"),
		)
	}

	return paths
}

// defaultConfigFile returns a file path inside the default config directory.
func defaultConfigFile(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".config", "claude-monitor", name)
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
