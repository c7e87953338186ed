package models

import (
	"encoding/json"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestUsageSnapshot_JSONRoundTrip(t *testing.T) {
	payload := `{"five_hour":{"utilization":42.5,"resets_at":"2025-06-01T12:00:00Z"},"seven_day":{"utilization":10,"resets_at":null},"seven_day_sonnet":null,"seven_day_opus":null}`

	var snap UsageSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if snap.FiveHour == nil || snap.FiveHour.Utilization != 42.5 {
		t.Errorf("five_hour not parsed: %+v", snap.FiveHour)
	}
	if snap.SevenDay == nil || snap.SevenDay.ResetsAt != nil {
		t.Errorf("seven_day resets_at should be nil: %+v", snap.SevenDay)
	}
	if snap.SevenDaySonnet != nil || snap.SevenDayOpus != nil {
		t.Error("absent dimensions must stay nil")
	}

	out, err := json.Marshal(&snap)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var again UsageSnapshot
	if err := json.Unmarshal(out, &again); err != nil {
		t.Fatalf("re-unmarshal failed: %v", err)
	}
	if again.FiveHour.Utilization != snap.FiveHour.Utilization {
		t.Error("utilization did not round-trip")
	}
	if *again.FiveHour.ResetsAt != *snap.FiveHour.ResetsAt {
		t.Error("resets_at did not round-trip")
	}
}

func TestUsageSnapshot_AbsentDimensionNotDefaulted(t *testing.T) {
	var snap UsageSnapshot
	if err := json.Unmarshal([]byte(`{"five_hour":{"utilization":5,"resets_at":null}}`), &snap); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, d := range []Dimension{DimSevenDay, DimSevenDaySonnet, DimSevenDayOpus} {
		if snap.Period(d) != nil {
			t.Errorf("dimension %s should be nil when absent", d)
		}
	}
}

func TestUsagePeriod_ResetTime(t *testing.T) {
	tests := []struct {
		name     string
		period   *UsagePeriod
		wantOK   bool
		wantTime time.Time
	}{
		{
			name:     "valid timestamp",
			period:   &UsagePeriod{ResetsAt: strPtr("2025-06-01T12:00:00Z")},
			wantOK:   true,
			wantTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		{name: "nil resets_at", period: &UsagePeriod{}, wantOK: false},
		{name: "malformed", period: &UsagePeriod{ResetsAt: strPtr("yesterday")}, wantOK: false},
		{name: "nil period", period: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.period.ResetTime()
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.wantTime) {
				t.Errorf("time = %v, want %v", got, tt.wantTime)
			}
		})
	}
}

func TestUsageSnapshot_Summary(t *testing.T) {
	snap := &UsageSnapshot{
		FiveHour: &UsagePeriod{Utilization: 42.4},
		SevenDay: &UsagePeriod{Utilization: 80.6},
	}
	got := snap.Summary()
	want := "5h: 42% | 7d: 81%"
	if got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}

	var empty *UsageSnapshot
	if empty.Summary() != "Claude Monitor" {
		t.Errorf("nil snapshot summary = %q", empty.Summary())
	}
	if (&UsageSnapshot{}).Summary() != "Claude Monitor" {
		t.Error("empty snapshot should fall back to app name")
	}
}

func TestDimension_Label(t *testing.T) {
	labels := map[Dimension]string{
		DimFiveHour:       "5 Hour",
		DimSevenDay:       "7 Day",
		DimSevenDaySonnet: "Sonnet (7 Day)",
		DimSevenDayOpus:   "Opus (7 Day)",
		Dimension("bogus"): "Unknown",
	}
	for d, want := range labels {
		if got := d.Label(); got != want {
			t.Errorf("Label(%s) = %q, want %q", d, got, want)
		}
	}
}
