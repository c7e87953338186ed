// Package state holds the shared mutable configuration for the refresh
// loop: credentials, polling preferences, notification rules and fired
// state. All access goes through this package; nothing else shares mutable
// references across goroutines.
package state

import (
	"sync"

	"github.com/xikxp1/claude-monitor/internal/models"
)

// AutoRefreshConfig is read by the refresher on each loop iteration and
// written by user-facing commands. Every effective write signals a restart.
type AutoRefreshConfig struct {
	OrganizationID  string `json:"organization_id,omitempty"`
	SessionToken    string `json:"-"`
	Enabled         bool   `json:"enabled"`
	IntervalMinutes int    `json:"interval_minutes"`
	// HourlyEnabled additionally schedules a fetch shortly after each hour
	// boundary, when hourly quota counters reset.
	HourlyEnabled bool `json:"hourly_refresh_enabled"`
}

// DefaultAutoRefreshConfig enables polling every five minutes with no
// credentials configured.
func DefaultAutoRefreshConfig() AutoRefreshConfig {
	return AutoRefreshConfig{Enabled: true, IntervalMinutes: 5}
}

// HasCredentials reports whether both organization id and session token are
// set. They are always set or cleared together.
func (c AutoRefreshConfig) HasCredentials() bool {
	return c.OrganizationID != "" && c.SessionToken != ""
}

// AppState guards the mutable configuration with a single lock and exposes
// a single-slot restart channel. Signals coalesce: issuing the same change
// twice wakes a sleeping refresher once.
type AppState struct {
	mu         sync.RWMutex
	config     AutoRefreshConfig
	settings   models.NotificationSettings
	notifState models.NotificationState

	restart chan struct{}
}

// New creates app state with defaults.
func New() *AppState {
	return &AppState{
		config:   DefaultAutoRefreshConfig(),
		settings: models.DefaultNotificationSettings(),
		restart:  make(chan struct{}, 1),
	}
}

// Restart returns the channel the refresher sleeps on. A receive means the
// configuration changed and any pending timer or backoff must be abandoned.
func (s *AppState) Restart() <-chan struct{} {
	return s.restart
}

// Signal wakes the refresher without changing configuration. Used by the
// wake detector and by external settings-file edits.
func (s *AppState) Signal() {
	select {
	case s.restart <- struct{}{}:
	default:
	}
}

// Config returns a consistent copy of the auto-refresh configuration.
func (s *AppState) Config() AutoRefreshConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// SetCredentials stores credentials and signals a restart. A no-op write
// (same credentials) does not signal.
func (s *AppState) SetCredentials(orgID, sessionToken string) {
	s.mu.Lock()
	changed := s.config.OrganizationID != orgID || s.config.SessionToken != sessionToken
	s.config.OrganizationID = orgID
	s.config.SessionToken = sessionToken
	s.mu.Unlock()

	if changed {
		s.Signal()
	}
}

// ClearCredentials removes credentials and signals a restart, which parks
// the refresher in its idle state.
func (s *AppState) ClearCredentials() {
	s.mu.Lock()
	changed := s.config.HasCredentials()
	s.config.OrganizationID = ""
	s.config.SessionToken = ""
	s.mu.Unlock()

	if changed {
		s.Signal()
	}
}

// SetAutoRefresh updates the polling preferences and signals a restart when
// they changed. Idempotent: repeating the same values produces one
// effective state and no extra wake.
func (s *AppState) SetAutoRefresh(enabled bool, intervalMinutes int) {
	s.mu.Lock()
	changed := s.config.Enabled != enabled || s.config.IntervalMinutes != intervalMinutes
	s.config.Enabled = enabled
	s.config.IntervalMinutes = intervalMinutes
	s.mu.Unlock()

	if changed {
		s.Signal()
	}
}

// SetHourlyRefresh toggles the hour-boundary schedule and signals a restart
// on an effective change.
func (s *AppState) SetHourlyRefresh(enabled bool) {
	s.mu.Lock()
	changed := s.config.HourlyEnabled != enabled
	s.config.HourlyEnabled = enabled
	s.mu.Unlock()

	if changed {
		s.Signal()
	}
}

// NotificationSettings returns a copy of the current alert configuration.
func (s *AppState) NotificationSettings() models.NotificationSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetNotificationSettings replaces the alert configuration. No restart is
// signalled: rule changes take effect on the next evaluation cycle.
func (s *AppState) SetNotificationSettings(settings models.NotificationSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// NotificationState returns a deep copy of the fired-state.
func (s *AppState) NotificationState() models.NotificationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifState.Clone()
}

// SetNotificationState replaces the fired-state after an evaluation cycle.
func (s *AppState) SetNotificationState(st models.NotificationState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifState = st.Clone()
}
