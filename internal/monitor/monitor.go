// Package monitor wires the stores, the refresh loop and the notification
// pipeline together behind one facade.
package monitor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xikxp1/claude-monitor/internal/api"
	"github.com/xikxp1/claude-monitor/internal/config"
	"github.com/xikxp1/claude-monitor/internal/credentials"
	"github.com/xikxp1/claude-monitor/internal/history"
	"github.com/xikxp1/claude-monitor/internal/logger"
	"github.com/xikxp1/claude-monitor/internal/models"
	"github.com/xikxp1/claude-monitor/internal/notify"
	"github.com/xikxp1/claude-monitor/internal/refresher"
	"github.com/xikxp1/claude-monitor/internal/settings"
	"github.com/xikxp1/claude-monitor/internal/state"
	"github.com/xikxp1/claude-monitor/internal/validation"
	"github.com/xikxp1/claude-monitor/internal/wake"
)

type (
	// UsageUpdatedEvent is emitted after a successful fetch.
	UsageUpdatedEvent struct {
		Snapshot *models.UsageSnapshot
		// NextRefreshAt is the scheduled next fetch as unix milliseconds.
		NextRefreshAt int64
	}

	// RefreshErrorEvent is emitted when a fetch fails in a way the user
	// should see.
	RefreshErrorEvent struct {
		Message string
		Error   error
	}

	// SettingsChangedEvent is emitted after settings were edited outside
	// this process and reloaded.
	SettingsChangedEvent struct {
		AutoRefresh   state.AutoRefreshConfig
		Notifications models.NotificationSettings
	}

	// ErrorEvent is emitted when a background component fails.
	ErrorEvent struct {
		Service string
		Error   error
	}
)

// ManagerEvent is the interface implemented by all manager events.
type ManagerEvent interface {
	isManagerEvent()
}

func (UsageUpdatedEvent) isManagerEvent()    {}
func (RefreshErrorEvent) isManagerEvent()    {}
func (SettingsChangedEvent) isManagerEvent() {}
func (ErrorEvent) isManagerEvent()           {}

// Manager orchestrates the stores, the refresh supervisor and event routing.
type Manager struct {
	mu          sync.RWMutex
	cfg         *config.Config
	appState    *state.AppState
	credStore   credentials.Store
	settings    *settings.Service
	archive     *history.Store
	supervisor  *refresher.Supervisor
	wakeMon     *wake.Detector
	eventChan   chan ManagerEvent
	stopChan    chan struct{}
	subscribers []chan<- ManagerEvent
}

// NewManager creates a manager with the real API client as fetcher.
func NewManager(cfg *config.Config) (*Manager, error) {
	return newManager(cfg, api.NewClient(cfg.BaseURL))
}

func newManager(cfg *config.Config, fetcher refresher.Fetcher) (*Manager, error) {
	m := &Manager{
		cfg:       cfg,
		appState:  state.New(),
		eventChan: make(chan ManagerEvent, 100),
		stopChan:  make(chan struct{}),
	}

	var err error
	m.credStore, err = credentials.NewFileStore(cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}

	m.settings, err = settings.New(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize settings: %w", err)
	}

	m.archive, err = history.New(cfg.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history: %w", err)
	}

	m.loadInitialState()

	sink := &notify.DesktopSink{}
	m.supervisor = refresher.New(fetcher, m.appState, m.settings, m.archive, sink, refresher.DefaultConfig())
	m.supervisor.Start()

	m.wakeMon = wake.New(m.appState.Signal)
	m.wakeMon.Start()

	go m.routeEvents()
	go m.pruneLoop()

	return m, nil
}

// loadInitialState seeds shared state from the stores.
func (m *Manager) loadInitialState() {
	doc := m.settings.Get()
	m.appState.SetAutoRefresh(doc.AutoRefresh.Enabled, doc.AutoRefresh.IntervalMinutes)
	m.appState.SetHourlyRefresh(doc.AutoRefresh.HourlyEnabled)
	m.appState.SetNotificationSettings(doc.Notifications)
	m.appState.SetNotificationState(doc.NotificationState)

	creds, err := m.credStore.Load()
	if err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			logger.Warn("failed to load credentials", "error", err)
		}
		return
	}
	m.appState.SetCredentials(creds.OrganizationID, creds.SessionToken)
}

// routeEvents routes events from background services to subscribers.
func (m *Manager) routeEvents() {
	for {
		select {
		case event := <-m.supervisor.Events():
			m.handleRefresherEvent(event)

		case event := <-m.settings.Events():
			m.handleSettingsEvent(event)

		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) handleRefresherEvent(event refresher.Event) {
	switch event.Type {
	case refresher.EventUsageUpdated:
		m.broadcast(UsageUpdatedEvent{
			Snapshot:      event.Snapshot,
			NextRefreshAt: event.NextRefreshAt,
		})

	case refresher.EventRefreshError:
		m.broadcast(RefreshErrorEvent{
			Message: event.Message,
			Error:   event.Error,
		})
	}
}

func (m *Manager) handleSettingsEvent(event settings.Event) {
	switch event.Type {
	case settings.EventChanged:
		doc := m.settings.Get()
		m.appState.SetAutoRefresh(doc.AutoRefresh.Enabled, doc.AutoRefresh.IntervalMinutes)
		m.appState.SetHourlyRefresh(doc.AutoRefresh.HourlyEnabled)
		m.appState.SetNotificationSettings(doc.Notifications)
		m.broadcast(SettingsChangedEvent{
			AutoRefresh:   doc.AutoRefresh,
			Notifications: doc.Notifications,
		})

	case settings.EventError:
		m.broadcast(ErrorEvent{
			Service: "settings",
			Error:   event.Error,
		})
	}
}

// pruneLoop periodically trims the snapshot archive.
func (m *Manager) pruneLoop() {
	m.pruneHistory()

	ticker := time.NewTicker(m.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.pruneHistory()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) pruneHistory() {
	pruned, err := m.archive.Prune(m.cfg.HistoryRetentionDays)
	if err != nil {
		logger.Error("failed to prune usage history", "error", err)
		return
	}
	if pruned > 0 {
		logger.Info("pruned usage history", "rows", pruned)
	}
}

// SetCredentials validates, persists and activates new credentials. The
// refresh loop picks them up and fetches immediately.
func (m *Manager) SetCredentials(orgID, sessionToken string) error {
	if err := validation.ValidateOrgID(orgID); err != nil {
		return err
	}
	if err := validation.ValidateSessionToken(sessionToken); err != nil {
		return err
	}

	if err := m.credStore.Save(&credentials.Credentials{
		OrganizationID: orgID,
		SessionToken:   sessionToken,
	}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	m.appState.SetCredentials(orgID, sessionToken)
	return nil
}

// ClearCredentials removes stored credentials and stops refreshing.
func (m *Manager) ClearCredentials() error {
	if err := m.credStore.Delete(); err != nil {
		return err
	}
	m.appState.ClearCredentials()
	return nil
}

// IsConfigured reports whether credentials are available.
func (m *Manager) IsConfigured() bool {
	return m.appState.Config().HasCredentials()
}

// AutoRefresh returns the current auto-refresh preferences.
func (m *Manager) AutoRefresh() state.AutoRefreshConfig {
	cfg := m.appState.Config()
	cfg.SessionToken = ""
	return cfg
}

// SetAutoRefresh persists and applies new polling preferences. The hourly
// toggle is left untouched.
func (m *Manager) SetAutoRefresh(enabled bool, intervalMinutes int) error {
	if intervalMinutes <= 0 {
		intervalMinutes = state.DefaultAutoRefreshConfig().IntervalMinutes
	}

	cfg := m.settings.AutoRefresh()
	cfg.Enabled = enabled
	cfg.IntervalMinutes = intervalMinutes
	if err := m.settings.SetAutoRefresh(cfg); err != nil {
		return err
	}

	m.appState.SetAutoRefresh(enabled, intervalMinutes)
	return nil
}

// SetHourlyRefresh persists and applies the hour-boundary schedule toggle.
func (m *Manager) SetHourlyRefresh(enabled bool) error {
	cfg := m.settings.AutoRefresh()
	cfg.HourlyEnabled = enabled
	if err := m.settings.SetAutoRefresh(cfg); err != nil {
		return err
	}

	m.appState.SetHourlyRefresh(enabled)
	return nil
}

// NotificationSettings returns the current notification settings.
func (m *Manager) NotificationSettings() models.NotificationSettings {
	return m.appState.NotificationSettings()
}

// SetNotificationSettings persists and applies new notification settings.
// Changing them does not restart the polling loop.
func (m *Manager) SetNotificationSettings(ns models.NotificationSettings) error {
	if err := m.settings.SetNotifications(ns); err != nil {
		return err
	}
	m.appState.SetNotificationSettings(ns)
	return nil
}

// RefreshNow triggers an immediate fetch.
func (m *Manager) RefreshNow() {
	m.supervisor.RefreshNow()
}

// Snapshot returns the most recent usage snapshot, or nil.
func (m *Manager) Snapshot() *models.UsageSnapshot {
	return m.supervisor.Snapshot()
}

// Status returns what the refresh loop is currently doing.
func (m *Manager) Status() refresher.Status {
	return m.supervisor.Status()
}

// UsageHistory returns archived snapshots for a preset range.
func (m *Manager) UsageHistory(preset string) ([]history.Record, error) {
	return m.archive.QueryPreset(preset)
}

// UsageStats returns per-dimension statistics for a preset range.
func (m *Manager) UsageStats(preset string) (*history.Stats, error) {
	return m.archive.Stats(preset)
}

// broadcast sends an event to all subscribers.
func (m *Manager) broadcast(event ManagerEvent) {
	// Send to main event channel
	select {
	case m.eventChan <- event:
	default:
	}

	// Send to subscribers
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Events returns the main event channel.
func (m *Manager) Events() <-chan ManagerEvent {
	return m.eventChan
}

// Subscribe creates a channel for receiving manager events.
func (m *Manager) Subscribe() chan ManagerEvent {
	ch := make(chan ManagerEvent, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan ManagerEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Close shuts down the manager and all its services.
func (m *Manager) Close() error {
	close(m.stopChan)

	m.mu.Lock()
	for _, sub := range m.subscribers {
		close(sub)
	}
	m.subscribers = nil
	m.mu.Unlock()

	var errs []error

	if err := m.wakeMon.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := m.supervisor.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := m.settings.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := m.archive.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
