// Package models defines the shared data types for usage metering and
// notifications.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Dimension identifies one of the independently metered usage windows.
type Dimension string

const (
	DimFiveHour       Dimension = "five_hour"
	DimSevenDay       Dimension = "seven_day"
	DimSevenDaySonnet Dimension = "seven_day_sonnet"
	DimSevenDayOpus   Dimension = "seven_day_opus"
)

// Dimensions returns every metered dimension in evaluation order.
func Dimensions() []Dimension {
	return []Dimension{DimFiveHour, DimSevenDay, DimSevenDaySonnet, DimSevenDayOpus}
}

// Label returns the human-readable name used in notification titles.
func (d Dimension) Label() string {
	switch d {
	case DimFiveHour:
		return "5 Hour"
	case DimSevenDay:
		return "7 Day"
	case DimSevenDaySonnet:
		return "Sonnet (7 Day)"
	case DimSevenDayOpus:
		return "Opus (7 Day)"
	default:
		return "Unknown"
	}
}

// UsagePeriod holds utilization info for a single metered window.
type UsagePeriod struct {
	// Utilization is the percentage of the window's quota consumed.
	Utilization float64 `json:"utilization"`
	// ResetsAt is an RFC 3339 timestamp, or nil when the API omits it.
	ResetsAt *string `json:"resets_at"`
}

// ResetTime parses ResetsAt. ok is false when the field is absent or
// malformed.
func (p *UsagePeriod) ResetTime() (time.Time, bool) {
	if p == nil || p.ResetsAt == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, *p.ResetsAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// UsageSnapshot is the result of one successful metering API call.
// Dimensions absent from the payload stay nil, never zero. A snapshot is
// immutable once constructed.
type UsageSnapshot struct {
	FiveHour       *UsagePeriod `json:"five_hour"`
	SevenDay       *UsagePeriod `json:"seven_day"`
	SevenDaySonnet *UsagePeriod `json:"seven_day_sonnet"`
	SevenDayOpus   *UsagePeriod `json:"seven_day_opus"`
}

// Period returns the usage period for a dimension, nil when absent.
func (s *UsageSnapshot) Period(d Dimension) *UsagePeriod {
	if s == nil {
		return nil
	}
	switch d {
	case DimFiveHour:
		return s.FiveHour
	case DimSevenDay:
		return s.SevenDay
	case DimSevenDaySonnet:
		return s.SevenDaySonnet
	case DimSevenDayOpus:
		return s.SevenDayOpus
	default:
		return nil
	}
}

// Summary renders a one-line overview of the snapshot, suitable for a tray
// tooltip or log line.
func (s *UsageSnapshot) Summary() string {
	if s == nil {
		return "Claude Monitor"
	}

	var parts []string
	if s.FiveHour != nil {
		parts = append(parts, fmt.Sprintf("5h: %.0f%%", s.FiveHour.Utilization))
	}
	if s.SevenDay != nil {
		parts = append(parts, fmt.Sprintf("7d: %.0f%%", s.SevenDay.Utilization))
	}
	if s.SevenDaySonnet != nil {
		parts = append(parts, fmt.Sprintf("Sonnet: %.0f%%", s.SevenDaySonnet.Utilization))
	}
	if s.SevenDayOpus != nil {
		parts = append(parts, fmt.Sprintf("Opus: %.0f%%", s.SevenDayOpus.Utilization))
	}

	if len(parts) == 0 {
		return "Claude Monitor"
	}
	return strings.Join(parts, " | ")
}
