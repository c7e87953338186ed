package models

import (
	"fmt"
	"slices"
	"strings"
)

// NotificationRule configures the alert triggers for one usage dimension.
type NotificationRule struct {
	IntervalEnabled      bool  `json:"interval_enabled"`
	IntervalPercent      int   `json:"interval_percent"`
	ThresholdEnabled     bool  `json:"threshold_enabled"`
	Thresholds           []int `json:"thresholds"`
	TimeRemainingEnabled bool  `json:"time_remaining_enabled"`
	TimeRemainingMinutes []int `json:"time_remaining_minutes"`
}

// DefaultNotificationRule returns the default rule: thresholds at 80 and 90
// enabled, interval and time-remaining triggers configured but off.
func DefaultNotificationRule() NotificationRule {
	return NotificationRule{
		IntervalEnabled:      false,
		IntervalPercent:      10,
		ThresholdEnabled:     true,
		Thresholds:           []int{80, 90},
		TimeRemainingEnabled: false,
		TimeRemainingMinutes: []int{30, 60},
	}
}

// NotificationSettings holds the user-editable alert configuration, one rule
// per dimension. Changes take effect on the next evaluation cycle.
type NotificationSettings struct {
	Enabled        bool             `json:"enabled"`
	FiveHour       NotificationRule `json:"five_hour"`
	SevenDay       NotificationRule `json:"seven_day"`
	SevenDaySonnet NotificationRule `json:"seven_day_sonnet"`
	SevenDayOpus   NotificationRule `json:"seven_day_opus"`
}

// DefaultNotificationSettings returns settings with alerts enabled and the
// default rule for every dimension.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Enabled:        true,
		FiveHour:       DefaultNotificationRule(),
		SevenDay:       DefaultNotificationRule(),
		SevenDaySonnet: DefaultNotificationRule(),
		SevenDayOpus:   DefaultNotificationRule(),
	}
}

// Rule returns the rule configured for a dimension.
func (ns NotificationSettings) Rule(d Dimension) NotificationRule {
	switch d {
	case DimFiveHour:
		return ns.FiveHour
	case DimSevenDay:
		return ns.SevenDay
	case DimSevenDaySonnet:
		return ns.SevenDaySonnet
	case DimSevenDayOpus:
		return ns.SevenDayOpus
	default:
		return NotificationRule{}
	}
}

// ThresholdKey is the fired-key recorded when a threshold alert is sent.
func ThresholdKey(d Dimension, threshold int) string {
	return fmt.Sprintf("%s:%d", d, threshold)
}

// TimeRemainingKey is the fired-key recorded when a time-remaining alert is
// sent.
func TimeRemainingKey(d Dimension, minutes int) string {
	return fmt.Sprintf("%s:time:%d", d, minutes)
}

// NotificationState tracks which alerts have fired so none repeats until a
// quota rollover clears it. Mutated only by the evaluator; persisted across
// restarts.
type NotificationState struct {
	FiveHourLast       float64  `json:"five_hour_last"`
	SevenDayLast       float64  `json:"seven_day_last"`
	SevenDaySonnetLast float64  `json:"seven_day_sonnet_last"`
	SevenDayOpusLast   float64  `json:"seven_day_opus_last"`
	FiredThresholds    []string `json:"fired_thresholds"`
	FiredTimeRemaining []string `json:"fired_time_remaining"`
}

// LastUtilization returns the last observed utilization for a dimension.
func (st NotificationState) LastUtilization(d Dimension) float64 {
	switch d {
	case DimFiveHour:
		return st.FiveHourLast
	case DimSevenDay:
		return st.SevenDayLast
	case DimSevenDaySonnet:
		return st.SevenDaySonnetLast
	case DimSevenDayOpus:
		return st.SevenDayOpusLast
	default:
		return 0
	}
}

// SetLastUtilization records the observed utilization for a dimension.
func (st *NotificationState) SetLastUtilization(d Dimension, value float64) {
	switch d {
	case DimFiveHour:
		st.FiveHourLast = value
	case DimSevenDay:
		st.SevenDayLast = value
	case DimSevenDaySonnet:
		st.SevenDaySonnetLast = value
	case DimSevenDayOpus:
		st.SevenDayOpusLast = value
	}
}

// HasFired reports whether a fired-key was already recorded.
func (st NotificationState) HasFired(key string) bool {
	return slices.Contains(st.FiredThresholds, key) ||
		slices.Contains(st.FiredTimeRemaining, key)
}

// ClearDimension removes the high-water mark and every fired-key belonging
// to a single dimension, leaving other dimensions untouched.
func (st *NotificationState) ClearDimension(d Dimension) {
	st.SetLastUtilization(d, 0)

	prefix := string(d) + ":"
	st.FiredThresholds = slices.DeleteFunc(st.FiredThresholds, func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
	timePrefix := string(d) + ":time:"
	st.FiredTimeRemaining = slices.DeleteFunc(st.FiredTimeRemaining, func(key string) bool {
		return strings.HasPrefix(key, timePrefix)
	})
}

// Clone returns a deep copy of the state.
func (st NotificationState) Clone() NotificationState {
	out := st
	out.FiredThresholds = slices.Clone(st.FiredThresholds)
	out.FiredTimeRemaining = slices.Clone(st.FiredTimeRemaining)
	return out
}
