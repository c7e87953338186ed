// Package wake detects that the machine slept by watching for ticks that
// arrive much later than scheduled. After a resume the refresh loop should
// fetch immediately instead of waiting out a stale timer.
package wake

import (
	"time"

	"github.com/xikxp1/claude-monitor/internal/logger"
)

const (
	defaultCheckInterval = 30 * time.Second
	defaultTolerance     = 30 * time.Second
)

// Detector periodically checks the clock and invokes a callback when a
// tick arrives far later than scheduled.
type Detector struct {
	onWake    func()
	interval  time.Duration
	tolerance time.Duration
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// New creates a detector that calls onWake after a suspected sleep/resume.
func New(onWake func()) *Detector {
	return &Detector{
		onWake:    onWake,
		interval:  defaultCheckInterval,
		tolerance: defaultTolerance,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start launches the background check loop.
func (d *Detector) Start() {
	go d.run()
}

// Close stops the detector.
func (d *Detector) Close() error {
	close(d.stopChan)
	<-d.doneChan
	return nil
}

func (d *Detector) run() {
	defer close(d.doneChan)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	expected := time.Now().Add(d.interval)
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			if overdue(expected, now, d.tolerance) {
				logger.Info("system wake detected", "delay", now.Sub(expected))
				if d.onWake != nil {
					d.onWake()
				}
			}
			expected = now.Add(d.interval)

		case <-d.stopChan:
			return
		}
	}
}

// overdue reports whether a tick arrived past its scheduled time by more
// than the tolerance. Timer ticks are delayed across a system suspend, so
// a large overshoot means the machine was asleep.
func overdue(scheduled, actual time.Time, tolerance time.Duration) bool {
	return actual.Sub(scheduled) > tolerance
}
