// Package main is the entry point for the claude-monitor daemon. It loads
// configuration, starts the background services and logs usage events until
// it receives a termination signal.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xikxp1/claude-monitor/internal/config"
	"github.com/xikxp1/claude-monitor/internal/logger"
	"github.com/xikxp1/claude-monitor/internal/monitor"
	"github.com/xikxp1/claude-monitor/internal/version"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && (os.Args[1] == "-v" || os.Args[1] == "--version") {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Handle help flag
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		printUsage()
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run contains the main application logic, separated for cleaner error handling.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Setup(cfg.LogLevel, cfg.LogPath); err != nil {
		return err
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing log file: %v\n", closeErr)
		}
	}()

	logger.Info("starting claude-monitor", "version", version.GetVersion())

	mgr, err := monitor.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	defer func() {
		if closeErr := mgr.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing services: %v\n", closeErr)
		}
	}()

	if !mgr.IsConfigured() {
		logger.Warn("no credentials configured; refresh loop is idle",
			"credentials_path", cfg.CredentialsPath)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case event := <-mgr.Events():
			logEvent(event)

		case sig := <-sigChan:
			logger.Info("shutting down", "signal", sig.String())
			return nil
		}
	}
}

func logEvent(event monitor.ManagerEvent) {
	switch e := event.(type) {
	case monitor.UsageUpdatedEvent:
		logger.Info("usage updated",
			"summary", e.Snapshot.Summary(),
			"next_refresh", time.UnixMilli(e.NextRefreshAt).Format(time.RFC3339))

	case monitor.RefreshErrorEvent:
		logger.Error("refresh failed", "message", e.Message, "error", e.Error)

	case monitor.SettingsChangedEvent:
		logger.Info("settings reloaded",
			"enabled", e.AutoRefresh.Enabled,
			"interval_minutes", e.AutoRefresh.IntervalMinutes)

	case monitor.ErrorEvent:
		logger.Error("service error", "service", e.Service, "error", e.Error)
	}
}

// printUsage prints the command-line usage information.
func printUsage() {
	fmt.Println(`claude-monitor - Claude usage quota monitor

Usage:
  claude-monitor [flags]

Flags:
  -h, --help      Show this help message
  -v, --version   Show version information

Environment Variables:
  CLAUDE_MONITOR_BASE_URL          API base URL (default: https://claude.ai)
  CLAUDE_MONITOR_CREDENTIALS_PATH  Credentials file path
  CLAUDE_MONITOR_SETTINGS_PATH     Settings file path
  CLAUDE_MONITOR_HISTORY_PATH      Usage history database path
  CLAUDE_MONITOR_LOG_PATH          Log file path (default: stderr only)
  CLAUDE_MONITOR_LOG_LEVEL         Log level: debug, info, warn, error
  CLAUDE_MONITOR_RETENTION_DAYS    History retention in days (default: 90)
  CLAUDE_MONITOR_PRUNE_INTERVAL    History prune interval (default: 24h)

Configuration:
  The application looks for .env files in the following locations:
  - Current directory
  - ~/.config/claude-monitor/.env

For more information, visit: https://github.com/xikxp1/claude-monitor`)
}
