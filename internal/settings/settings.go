// Package settings persists user preferences and notification bookkeeping
// as a single JSON document, reloading it when another process edits the
// file.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/xikxp1/claude-monitor/internal/logger"
	"github.com/xikxp1/claude-monitor/internal/models"
	"github.com/xikxp1/claude-monitor/internal/state"
)

// Document is the on-disk settings layout. The session token never appears
// here; it lives in the credentials store.
type Document struct {
	AutoRefresh       state.AutoRefreshConfig     `json:"auto_refresh"`
	Notifications     models.NotificationSettings `json:"notifications"`
	NotificationState models.NotificationState    `json:"notification_state"`
	Version           int                         `json:"version,omitempty"`
}

func defaultDocument() Document {
	return Document{
		AutoRefresh:   state.DefaultAutoRefreshConfig(),
		Notifications: models.DefaultNotificationSettings(),
		Version:       1,
	}
}

// Event signals a settings change.
type Event struct {
	Type  EventType
	Error error
}

// EventType defines the type of settings event.
type EventType int

const (
	EventLoaded EventType = iota
	EventChanged
	EventError
)

// Service owns the settings file and watches it for external edits.
type Service struct {
	mu            sync.RWMutex
	doc           Document
	filePath      string
	watcher       *fsnotify.Watcher
	onChange      func(Document)
	eventChan     chan Event
	stopChan      chan struct{}
	debounceTimer *time.Timer
}

// New loads (or creates) the settings file and starts watching it.
func New(filePath string) (*Service, error) {
	s := &Service{
		doc:       defaultDocument(),
		filePath:  filePath,
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	if err := s.load(); err != nil {
		if os.IsNotExist(err) {
			if err := s.save(); err != nil {
				return nil, fmt.Errorf("failed to create settings file: %w", err)
			}
		} else {
			// Corrupt settings fall back to defaults rather than
			// blocking startup.
			logger.Warn("failed to load settings, using defaults", "error", err)
			s.doc = defaultDocument()
		}
	}

	if err := s.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}

	s.sendEvent(Event{Type: EventLoaded})

	return s, nil
}

// Events returns the event channel for subscribing to settings changes.
func (s *Service) Events() <-chan Event {
	return s.eventChan
}

// OnChange registers a callback invoked after an external file change is
// reloaded.
func (s *Service) OnChange(fn func(Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Get returns a copy of the current document.
func (s *Service) Get() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// AutoRefresh returns the current auto-refresh preferences.
func (s *Service) AutoRefresh() state.AutoRefreshConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.AutoRefresh
}

// SetAutoRefresh persists new auto-refresh preferences. The session token
// field is never written to disk.
func (s *Service) SetAutoRefresh(cfg state.AutoRefreshConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.SessionToken = ""
	s.doc.AutoRefresh = cfg
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Notifications returns the current notification settings.
func (s *Service) Notifications() models.NotificationSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Notifications
}

// SetNotifications persists new notification settings.
func (s *Service) SetNotifications(ns models.NotificationSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Notifications = ns
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// NotificationState returns the persisted notification bookkeeping.
func (s *Service) NotificationState() models.NotificationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.NotificationState.Clone()
}

// SetNotificationState persists notification bookkeeping after an
// evaluation pass.
func (s *Service) SetNotificationState(st models.NotificationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.NotificationState = st.Clone()
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func (s *Service) copyLocked() Document {
	doc := s.doc
	doc.NotificationState = s.doc.NotificationState.Clone()
	return doc
}

// load reads the settings file into memory.
func (s *Service) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	doc := defaultDocument()
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse settings file: %w", err)
	}
	doc.AutoRefresh.SessionToken = ""
	if doc.AutoRefresh.IntervalMinutes <= 0 {
		doc.AutoRefresh.IntervalMinutes = state.DefaultAutoRefreshConfig().IntervalMinutes
	}

	s.doc = doc
	return nil
}

// save writes the settings file (public version).
func (s *Service) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes the settings file (must hold lock).
func (s *Service) saveLocked() error {
	doc := s.doc
	doc.AutoRefresh.SessionToken = ""
	doc.Version = 1

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	// Write to temp file first, then rename
	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpFile, s.filePath); err != nil {
		if removeErr := os.Remove(tmpFile); removeErr != nil {
			logger.Error("failed to remove temp file", "error", removeErr)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// startWatcher starts the file system watcher.
func (s *Service) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	// Watch the directory (to catch file creation/deletion)
	dir := filepath.Dir(s.filePath)
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go s.watchLoop()
	return nil
}

// watchLoop handles file system events with debouncing.
func (s *Service) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			// Only care about our settings file
			if filepath.Base(event.Name) != filepath.Base(s.filePath) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// Debounce rapid changes. Close may stop the timer
				// concurrently, so writes go through the lock.
				s.mu.Lock()
				if s.debounceTimer != nil {
					s.debounceTimer.Stop()
				}
				s.debounceTimer = time.AfterFunc(debounceInterval, func() {
					s.handleFileChange()
				})
				s.mu.Unlock()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventError, Error: err})

		case <-s.stopChan:
			return
		}
	}
}

// handleFileChange reloads settings after an external edit.
func (s *Service) handleFileChange() {
	s.mu.Lock()
	err := s.load()
	var doc Document
	if err == nil {
		doc = s.copyLocked()
	}
	onChange := s.onChange
	s.mu.Unlock()

	if err != nil {
		s.sendEvent(Event{Type: EventError, Error: err})
		return
	}

	s.sendEvent(Event{Type: EventChanged})

	if onChange != nil {
		onChange(doc)
	}
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Service) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest event
		select {
		case <-s.eventChan:
		default:
		}
		select {
		case s.eventChan <- event:
		default:
		}
	}
}

// Close stops the file watcher and cleans up resources.
func (s *Service) Close() error {
	close(s.stopChan)

	s.mu.Lock()
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.mu.Unlock()

	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
