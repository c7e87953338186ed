// Package refresher runs the background polling loop that keeps usage data
// fresh, applying exponential backoff when the API rate limits us.
package refresher

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/xikxp1/claude-monitor/internal/api"
	"github.com/xikxp1/claude-monitor/internal/history"
	"github.com/xikxp1/claude-monitor/internal/logger"
	"github.com/xikxp1/claude-monitor/internal/models"
	"github.com/xikxp1/claude-monitor/internal/notify"
	"github.com/xikxp1/claude-monitor/internal/settings"
	"github.com/xikxp1/claude-monitor/internal/state"
)

// Fetcher retrieves a usage snapshot for an organization.
type Fetcher interface {
	Fetch(ctx context.Context, orgID, sessionToken string) (*models.UsageSnapshot, error)
}

var _ Fetcher = (*api.Client)(nil)

// Event represents a refresher event.
type Event struct {
	Type EventType
	// Snapshot is set for EventUsageUpdated.
	Snapshot *models.UsageSnapshot
	// NextRefreshAt is the scheduled next fetch as unix milliseconds, set
	// for EventUsageUpdated.
	NextRefreshAt int64
	// Message is a user-facing description, set for EventRefreshError.
	Message string
	Error   error
}

// EventType defines the type of refresher event.
type EventType int

const (
	// EventUsageUpdated indicates a successful fetch.
	EventUsageUpdated EventType = iota
	// EventRefreshError indicates a failed fetch worth surfacing.
	EventRefreshError
)

// Status describes what the polling loop is currently doing.
type Status int

const (
	StatusIdle Status = iota
	StatusWaiting
	StatusFetching
	StatusBackoff
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusWaiting:
		return "waiting"
	case StatusFetching:
		return "fetching"
	case StatusBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Config holds configuration for the supervisor.
type Config struct {
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		InitialBackoff:    30 * time.Second,
		MaxBackoff:        300 * time.Second,
		BackoffMultiplier: 2,
	}
}

// BackoffDelay returns the delay before retry number attempt (1-based).
func (c Config) BackoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		delay *= c.BackoffMultiplier
		if delay >= float64(c.MaxBackoff) {
			return c.MaxBackoff
		}
	}
	if delay > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	return time.Duration(delay)
}

// Supervisor owns the polling loop. It reads credentials and preferences
// from shared state, fetches usage, archives snapshots, evaluates
// notifications and publishes events.
type Supervisor struct {
	fetcher  Fetcher
	appState *state.AppState
	settings *settings.Service
	archive  *history.Store
	sink     notify.Sink
	config   Config

	mu       sync.RWMutex
	status   Status
	failures int
	snapshot *models.UsageSnapshot

	eventChan   chan Event
	refreshChan chan struct{}
	stopChan    chan struct{}
	doneChan    chan struct{}
}

// New creates a supervisor. The settings service, archive and sink are
// optional; nil disables persistence, history or delivery respectively.
func New(fetcher Fetcher, appState *state.AppState, svc *settings.Service, archive *history.Store, sink notify.Sink, config Config) *Supervisor {
	if config.InitialBackoff == 0 {
		config = DefaultConfig()
	}

	return &Supervisor{
		fetcher:     fetcher,
		appState:    appState,
		settings:    svc,
		archive:     archive,
		sink:        sink,
		config:      config,
		eventChan:   make(chan Event, 100),
		refreshChan: make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
}

// Start launches the polling loop.
func (s *Supervisor) Start() {
	go s.run()
}

// Events returns the event channel.
func (s *Supervisor) Events() <-chan Event {
	return s.eventChan
}

// Status returns what the loop is currently doing.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Failures returns the consecutive rate-limited attempt count.
func (s *Supervisor) Failures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}

// Snapshot returns the most recent successful snapshot, or nil.
func (s *Supervisor) Snapshot() *models.UsageSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// RefreshNow asks the loop to fetch as soon as possible, skipping any
// pending wait. Multiple calls coalesce into a single fetch.
func (s *Supervisor) RefreshNow() {
	select {
	case s.refreshChan <- struct{}{}:
	default:
	}
}

// Close stops the polling loop and waits for it to exit. An in-flight
// fetch is allowed to finish first.
func (s *Supervisor) Close() error {
	close(s.stopChan)
	<-s.doneChan
	return nil
}

func (s *Supervisor) run() {
	defer close(s.doneChan)

	// Credentials seeded before Start leave a stale wakeup pending; the
	// first iteration reads fresh config anyway.
	select {
	case <-s.appState.Restart():
	default:
	}

	for {
		cfg := s.appState.Config()
		if !cfg.Enabled || !cfg.HasCredentials() {
			s.setStatus(StatusIdle)
			select {
			case <-s.appState.Restart():
				continue
			case <-s.refreshChan:
				// Manual refresh works even with auto-refresh disabled.
				if cfg = s.appState.Config(); cfg.HasCredentials() {
					s.fetchOnce(cfg)
				}
				continue
			case <-s.stopChan:
				return
			}
		}

		s.fetchOnce(cfg)

		// Settings may have changed during the fetch.
		cfg = s.appState.Config()
		delay, inBackoff := s.nextDelay(cfg)
		if inBackoff {
			s.setStatus(StatusBackoff)
		} else {
			s.setStatus(StatusWaiting)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-s.appState.Restart():
			timer.Stop()
		case <-s.refreshChan:
			timer.Stop()
		case <-s.stopChan:
			timer.Stop()
			return
		}
	}
}

// fetchOnce performs a single fetch and fans out the result. The fetch is
// never cancelled once started.
func (s *Supervisor) fetchOnce(cfg state.AutoRefreshConfig) {
	s.setStatus(StatusFetching)

	snap, err := s.fetcher.Fetch(context.Background(), cfg.OrganizationID, cfg.SessionToken)
	if err != nil {
		if api.IsRateLimited(err) {
			s.mu.Lock()
			s.failures++
			attempt := s.failures
			s.mu.Unlock()
			logger.Warn("usage fetch rate limited", "attempt", attempt)
			return
		}

		s.mu.Lock()
		s.failures = 0
		s.mu.Unlock()
		logger.Error("usage fetch failed", "error", err)
		s.sendEvent(Event{
			Type:    EventRefreshError,
			Message: api.UserMessage(err),
			Error:   err,
		})
		return
	}

	now := time.Now()

	s.mu.Lock()
	s.failures = 0
	s.snapshot = snap
	s.mu.Unlock()

	if s.archive != nil {
		if err := s.archive.Append(snap, now); err != nil {
			logger.Error("failed to archive usage snapshot", "error", err)
		}
	}

	s.evaluateNotifications(snap, now)

	delay, _ := s.nextDelay(s.appState.Config())
	next := now.Add(delay)
	s.sendEvent(Event{
		Type:          EventUsageUpdated,
		Snapshot:      snap,
		NextRefreshAt: next.UnixMilli(),
	})
}

func (s *Supervisor) evaluateNotifications(snap *models.UsageSnapshot, now time.Time) {
	ns := s.appState.NotificationSettings()
	st := s.appState.NotificationState()

	messages, newState := notify.Evaluate(snap, ns, st, now)

	s.appState.SetNotificationState(newState)
	if s.settings != nil {
		if err := s.settings.SetNotificationState(newState); err != nil {
			logger.Error("failed to persist notification state", "error", err)
		}
	}

	for _, msg := range messages {
		if s.sink == nil {
			continue
		}
		if err := s.sink.Notify(msg.Title, msg.Body); err != nil {
			logger.Error("failed to deliver notification",
				"dimension", msg.Dimension, "error", err)
		}
	}
}

func (s *Supervisor) nextDelay(cfg state.AutoRefreshConfig) (time.Duration, bool) {
	s.mu.RLock()
	failures := s.failures
	s.mu.RUnlock()

	// Backoff takes precedence over both schedules.
	if failures > 0 {
		return s.config.BackoffDelay(failures), true
	}

	delay := s.interval(cfg)
	if cfg.HourlyEnabled {
		if h := hourlyDelay(time.Now()); h < delay {
			delay = h
		}
	}
	return delay, false
}

const (
	// hourlyInitialGap keeps the fetch clear of the exact hour boundary so
	// the API has refreshed its own hourly counters.
	hourlyInitialGap = 5 * time.Second
	hourlyJitterMax  = 55 * time.Second
)

// hourlyDelay returns the wait until shortly after the next hour boundary,
// with jitter so clients don't all hit the API at the same instant.
func hourlyDelay(now time.Time) time.Duration {
	boundary := now.Truncate(time.Hour).Add(time.Hour)
	jitter := time.Duration(rand.Int63n(int64(hourlyJitterMax) + 1))
	return boundary.Sub(now) + hourlyInitialGap + jitter
}

func (s *Supervisor) interval(cfg state.AutoRefreshConfig) time.Duration {
	minutes := cfg.IntervalMinutes
	if minutes <= 0 {
		minutes = state.DefaultAutoRefreshConfig().IntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Supervisor) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest
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
