// Package notify evaluates usage snapshots against notification rules and
// delivers the resulting alerts.
package notify

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xikxp1/claude-monitor/internal/models"
)

// resetDropPoints is the utilization drop treated as a quota rollover. The
// comparison is strictly greater-than: a drop of exactly 20 points is not a
// reset.
const resetDropPoints = 20.0

// Trigger identifies which rule produced an event.
type Trigger int

const (
	TriggerInterval Trigger = iota
	TriggerThreshold
	TriggerTimeRemaining
)

// Event is a single rule firing for one dimension.
type Event struct {
	Dimension models.Dimension
	Trigger   Trigger
	// Value is the interval level or threshold in percent, or the
	// time-remaining trigger in minutes.
	Value int
}

// Message is the coalesced notification for one dimension in one cycle.
// All triggers that fired together produce a single OS notification.
type Message struct {
	Dimension models.Dimension
	Title     string
	Body      string
	Events    []Event
}

// Evaluate compares a snapshot against the configured rules and prior
// fired-state. It is pure: no I/O, deterministic given now. Returns the
// coalesced messages to deliver and the replacement state.
func Evaluate(snapshot *models.UsageSnapshot, settings models.NotificationSettings, st models.NotificationState, now time.Time) ([]Message, models.NotificationState) {
	if !settings.Enabled || snapshot == nil {
		return nil, st
	}

	newState := st.Clone()

	// Rollover detection runs before any crossing check so thresholds can
	// fire again right after a quota reset.
	for _, dim := range models.Dimensions() {
		period := snapshot.Period(dim)
		if period == nil {
			continue
		}
		if newState.LastUtilization(dim)-period.Utilization > resetDropPoints {
			newState.ClearDimension(dim)
		}
	}

	var messages []Message
	for _, dim := range models.Dimensions() {
		period := snapshot.Period(dim)
		if period == nil {
			continue
		}

		rule := settings.Rule(dim)
		events := evaluateDimension(dim, period, rule, &newState, now)
		if len(events) > 0 {
			messages = append(messages, coalesce(dim, period.Utilization, events))
		}

		newState.SetLastUtilization(dim, period.Utilization)
	}

	return messages, newState
}

// evaluateDimension runs the interval, threshold and time-remaining checks
// for one dimension, recording fired-keys in state as it goes.
func evaluateDimension(dim models.Dimension, period *models.UsagePeriod, rule models.NotificationRule, st *models.NotificationState, now time.Time) []Event {
	var events []Event

	current := period.Utilization
	last := st.LastUtilization(dim)

	if rule.IntervalEnabled && rule.IntervalPercent > 0 {
		if level, ok := crossedIntervalLevel(current, last, rule.IntervalPercent); ok {
			events = append(events, Event{Dimension: dim, Trigger: TriggerInterval, Value: level})
		}
	}

	if rule.ThresholdEnabled {
		thresholds := slices.Clone(rule.Thresholds)
		slices.Sort(thresholds)
		for _, threshold := range thresholds {
			key := models.ThresholdKey(dim, threshold)
			if current >= float64(threshold) && last < float64(threshold) && !st.HasFired(key) {
				events = append(events, Event{Dimension: dim, Trigger: TriggerThreshold, Value: threshold})
				st.FiredThresholds = append(st.FiredThresholds, key)
			}
		}
	}

	if rule.TimeRemainingEnabled {
		if resetTime, ok := period.ResetTime(); ok {
			remaining := resetTime.Sub(now)
			if remaining > 0 {
				minutesLeft := int(remaining.Minutes())
				for _, minutes := range rule.TimeRemainingMinutes {
					key := models.TimeRemainingKey(dim, minutes)
					if minutesLeft <= minutes && !st.HasFired(key) {
						events = append(events, Event{Dimension: dim, Trigger: TriggerTimeRemaining, Value: minutes})
						st.FiredTimeRemaining = append(st.FiredTimeRemaining, key)
					}
				}
			}
		}
	}

	return events
}

// crossedIntervalLevel reports the interval level reached when the current
// level exceeds the last one. Only the final crossed level is reported,
// never the intermediate ones.
func crossedIntervalLevel(current, last float64, percent int) (int, bool) {
	p := float64(percent)
	currentLevel := int(current/p) * percent
	lastLevel := int(last/p) * percent

	if currentLevel > lastLevel && currentLevel > 0 {
		return currentLevel, true
	}
	return 0, false
}

// coalesce folds every trigger that fired for a dimension into one message.
func coalesce(dim models.Dimension, utilization float64, events []Event) Message {
	parts := make([]string, 0, len(events))
	for _, ev := range events {
		switch ev.Trigger {
		case TriggerInterval:
			parts = append(parts, fmt.Sprintf("reached %d%%", ev.Value))
		case TriggerThreshold:
			parts = append(parts, fmt.Sprintf("crossed %d%% threshold", ev.Value))
		case TriggerTimeRemaining:
			parts = append(parts, fmt.Sprintf("resets in < %s", formatMinutes(ev.Value)))
		}
	}

	return Message{
		Dimension: dim,
		Title:     fmt.Sprintf("%s Usage Alert", dim.Label()),
		Body:      fmt.Sprintf("Usage %s (%.0f%% used)", strings.Join(parts, " and "), utilization),
		Events:    events,
	}
}

// formatMinutes renders a minute count as "45m", "2h" or "1h 30m".
func formatMinutes(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	rest := minutes % 60
	if rest == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, rest)
}
