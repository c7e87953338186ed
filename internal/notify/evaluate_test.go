package notify

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/xikxp1/claude-monitor/internal/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func snapshotWith(dim models.Dimension, utilization float64, resetsAt *string) *models.UsageSnapshot {
	period := &models.UsagePeriod{Utilization: utilization, ResetsAt: resetsAt}
	snap := &models.UsageSnapshot{}
	switch dim {
	case models.DimFiveHour:
		snap.FiveHour = period
	case models.DimSevenDay:
		snap.SevenDay = period
	case models.DimSevenDaySonnet:
		snap.SevenDaySonnet = period
	case models.DimSevenDayOpus:
		snap.SevenDayOpus = period
	}
	return snap
}

func settingsWithRule(dim models.Dimension, rule models.NotificationRule) models.NotificationSettings {
	settings := models.NotificationSettings{Enabled: true}
	switch dim {
	case models.DimFiveHour:
		settings.FiveHour = rule
	case models.DimSevenDay:
		settings.SevenDay = rule
	case models.DimSevenDaySonnet:
		settings.SevenDaySonnet = rule
	case models.DimSevenDayOpus:
		settings.SevenDayOpus = rule
	}
	return settings
}

func eventValues(messages []Message) []int {
	var values []int
	for _, m := range messages {
		for _, ev := range m.Events {
			values = append(values, ev.Value)
		}
	}
	return values
}

func TestEvaluate_DisabledSettings(t *testing.T) {
	snap := snapshotWith(models.DimFiveHour, 95, nil)
	settings := models.DefaultNotificationSettings()
	settings.Enabled = false

	messages, newState := Evaluate(snap, settings, models.NotificationState{}, testNow)

	if len(messages) != 0 {
		t.Errorf("disabled settings produced %d messages", len(messages))
	}
	if newState.FiveHourLast != 0 {
		t.Error("disabled settings must leave state untouched")
	}
}

func TestEvaluate_AbsentDimensionSkipped(t *testing.T) {
	snap := &models.UsageSnapshot{}
	messages, newState := Evaluate(snap, models.DefaultNotificationSettings(), models.NotificationState{}, testNow)

	if len(messages) != 0 {
		t.Errorf("empty snapshot produced %d messages", len(messages))
	}
	if newState.FiveHourLast != 0 {
		t.Error("absent dimension must not update its high-water mark")
	}
}

func TestEvaluate_ThresholdFiresOnce(t *testing.T) {
	rule := models.DefaultNotificationRule() // thresholds {80, 90}
	settings := settingsWithRule(models.DimFiveHour, rule)

	st := models.NotificationState{}

	// Below threshold: nothing.
	messages, st := Evaluate(snapshotWith(models.DimFiveHour, 45, nil), settings, st, testNow)
	if len(messages) != 0 {
		t.Fatalf("cycle at 45%% fired %d messages", len(messages))
	}

	// Crosses 80: one threshold event.
	messages, st = Evaluate(snapshotWith(models.DimFiveHour, 82, nil), settings, st, testNow)
	if len(messages) != 1 || len(messages[0].Events) != 1 {
		t.Fatalf("crossing 80 should fire exactly one event, got %+v", messages)
	}
	if messages[0].Events[0].Trigger != TriggerThreshold || messages[0].Events[0].Value != 80 {
		t.Errorf("event = %+v, want threshold 80", messages[0].Events[0])
	}

	// Still above 80: no repeat.
	messages, st = Evaluate(snapshotWith(models.DimFiveHour, 84, nil), settings, st, testNow)
	if len(messages) != 0 {
		t.Errorf("repeat cycle above 80 fired %d messages", len(messages))
	}

	if !st.HasFired(models.ThresholdKey(models.DimFiveHour, 80)) {
		t.Error("fired-key for 80 not recorded")
	}
}

func TestEvaluate_MultipleThresholdsInOneJump(t *testing.T) {
	settings := settingsWithRule(models.DimSevenDay, models.DefaultNotificationRule())

	messages, st := Evaluate(snapshotWith(models.DimSevenDay, 95, nil), settings, models.NotificationState{}, testNow)

	if len(messages) != 1 {
		t.Fatalf("expected one coalesced message, got %d", len(messages))
	}
	values := eventValues(messages)
	if len(values) != 2 || values[0] != 80 || values[1] != 90 {
		t.Errorf("events = %v, want thresholds fired ascending [80 90]", values)
	}
	if !strings.Contains(messages[0].Body, "crossed 80% threshold and crossed 90% threshold") {
		t.Errorf("body %q should list both triggers", messages[0].Body)
	}
	if st.LastUtilization(models.DimSevenDay) != 95 {
		t.Errorf("high-water mark = %v, want 95", st.LastUtilization(models.DimSevenDay))
	}
}

func TestEvaluate_ResetScenario(t *testing.T) {
	// Utilization 0 -> 45 -> 82 -> 35 with thresholds {80,90}, interval off.
	settings := settingsWithRule(models.DimFiveHour, models.DefaultNotificationRule())
	st := models.NotificationState{}

	messages, st := Evaluate(snapshotWith(models.DimFiveHour, 45, nil), settings, st, testNow)
	if len(messages) != 0 {
		t.Fatal("45% must not fire")
	}

	messages, st = Evaluate(snapshotWith(models.DimFiveHour, 82, nil), settings, st, testNow)
	if len(eventValues(messages)) != 1 || eventValues(messages)[0] != 80 {
		t.Fatalf("82%% should fire threshold 80 once, got %+v", messages)
	}

	// Drop of 47 points: rollover. No spurious event, state cleared.
	messages, st = Evaluate(snapshotWith(models.DimFiveHour, 35, nil), settings, st, testNow)
	if len(messages) != 0 {
		t.Errorf("the drop itself fired %d messages", len(messages))
	}
	if st.HasFired(models.ThresholdKey(models.DimFiveHour, 80)) {
		t.Error("rollover must clear fired thresholds")
	}
	if st.LastUtilization(models.DimFiveHour) != 35 {
		t.Errorf("high-water mark = %v, want 35 after the post-reset cycle", st.LastUtilization(models.DimFiveHour))
	}

	// Threshold can fire again after the rollover.
	messages, _ = Evaluate(snapshotWith(models.DimFiveHour, 85, nil), settings, st, testNow)
	if len(eventValues(messages)) != 1 || eventValues(messages)[0] != 80 {
		t.Errorf("threshold should re-fire after reset, got %+v", messages)
	}
}

func TestEvaluate_ResetBoundaryIsStrict(t *testing.T) {
	settings := settingsWithRule(models.DimFiveHour, models.DefaultNotificationRule())

	st := models.NotificationState{
		FiveHourLast:    85,
		FiredThresholds: []string{models.ThresholdKey(models.DimFiveHour, 80)},
	}

	// Exactly 20 points down: not a reset.
	_, newState := Evaluate(snapshotWith(models.DimFiveHour, 65, nil), settings, st, testNow)
	if !newState.HasFired(models.ThresholdKey(models.DimFiveHour, 80)) {
		t.Error("a drop of exactly 20 points must not clear fired state")
	}

	// 20.5 points down: reset.
	_, newState = Evaluate(snapshotWith(models.DimFiveHour, 64.5, nil), settings, st, testNow)
	if newState.HasFired(models.ThresholdKey(models.DimFiveHour, 80)) {
		t.Error("a drop of more than 20 points must clear fired state")
	}
}

func TestEvaluate_ResetClearsOnlyOneDimension(t *testing.T) {
	settings := models.DefaultNotificationSettings()
	st := models.NotificationState{
		FiveHourLast: 85,
		SevenDayLast: 85,
		FiredThresholds: []string{
			models.ThresholdKey(models.DimFiveHour, 80),
			models.ThresholdKey(models.DimSevenDay, 80),
		},
	}

	snap := &models.UsageSnapshot{
		FiveHour: &models.UsagePeriod{Utilization: 10}, // 75-point drop
		SevenDay: &models.UsagePeriod{Utilization: 84}, // steady
	}

	_, newState := Evaluate(snap, settings, st, testNow)

	if newState.HasFired(models.ThresholdKey(models.DimFiveHour, 80)) {
		t.Error("five_hour fired-keys should be cleared by its rollover")
	}
	if !newState.HasFired(models.ThresholdKey(models.DimSevenDay, 80)) {
		t.Error("seven_day fired-keys must survive a five_hour rollover")
	}
}

func TestEvaluate_IntervalSingleEventPerJump(t *testing.T) {
	// interval_percent=10, 12% -> 47%: exactly one event at level 40.
	rule := models.NotificationRule{IntervalEnabled: true, IntervalPercent: 10}
	settings := settingsWithRule(models.DimFiveHour, rule)

	st := models.NotificationState{FiveHourLast: 12}
	messages, _ := Evaluate(snapshotWith(models.DimFiveHour, 47, nil), settings, st, testNow)

	values := eventValues(messages)
	if len(values) != 1 || values[0] != 40 {
		t.Fatalf("events = %v, want a single interval event at 40", values)
	}
	if messages[0].Events[0].Trigger != TriggerInterval {
		t.Error("event should be an interval trigger")
	}
	if !strings.Contains(messages[0].Body, "reached 40%") {
		t.Errorf("body %q should mention the level reached", messages[0].Body)
	}
}

func TestEvaluate_IntervalMonotonicity(t *testing.T) {
	// For monotonically increasing utilization the number of interval
	// events equals floor(final/p) - floor(initial/p), each at a strict
	// multiple of p.
	const p = 10
	rule := models.NotificationRule{IntervalEnabled: true, IntervalPercent: p}
	settings := settingsWithRule(models.DimFiveHour, rule)

	sequence := []float64{3, 8, 14, 14.5, 27, 38, 43, 48, 57, 62, 78}
	st := models.NotificationState{FiveHourLast: sequence[0]}

	var fired []int
	for _, u := range sequence[1:] {
		var messages []Message
		messages, st = Evaluate(snapshotWith(models.DimFiveHour, u, nil), settings, st, testNow)
		for _, v := range eventValues(messages) {
			if v%p != 0 {
				t.Errorf("interval event at %d is not a multiple of %d", v, p)
			}
			fired = append(fired, v)
		}
	}

	want := int(sequence[len(sequence)-1]/p) - int(sequence[0]/p)
	if len(fired) != want {
		t.Errorf("fired %d interval events %v, want %d", len(fired), fired, want)
	}
}

func TestEvaluate_IntervalNoEventAtZeroLevel(t *testing.T) {
	rule := models.NotificationRule{IntervalEnabled: true, IntervalPercent: 50}
	settings := settingsWithRule(models.DimFiveHour, rule)

	messages, _ := Evaluate(snapshotWith(models.DimFiveHour, 30, nil), settings, models.NotificationState{}, testNow)
	if len(messages) != 0 {
		t.Errorf("level 0 must never fire, got %+v", messages)
	}
}

func TestEvaluate_TimeRemaining(t *testing.T) {
	resetsAt := testNow.Add(25 * time.Minute).Format(time.RFC3339)
	rule := models.NotificationRule{
		TimeRemainingEnabled: true,
		TimeRemainingMinutes: []int{30, 60},
	}
	settings := settingsWithRule(models.DimFiveHour, rule)

	messages, st := Evaluate(snapshotWith(models.DimFiveHour, 50, &resetsAt), settings, models.NotificationState{}, testNow)

	// 25 minutes left is under both the 30 and 60 minute triggers.
	values := eventValues(messages)
	if len(values) != 2 {
		t.Fatalf("events = %v, want both time triggers", values)
	}
	if !st.HasFired(models.TimeRemainingKey(models.DimFiveHour, 30)) ||
		!st.HasFired(models.TimeRemainingKey(models.DimFiveHour, 60)) {
		t.Error("time fired-keys not recorded")
	}

	// Next cycle: no repeats.
	messages, _ = Evaluate(snapshotWith(models.DimFiveHour, 50, &resetsAt), settings, st, testNow)
	if len(messages) != 0 {
		t.Errorf("time triggers repeated: %+v", messages)
	}
}

func TestEvaluate_TimeRemaining_PastResetIgnored(t *testing.T) {
	resetsAt := testNow.Add(-5 * time.Minute).Format(time.RFC3339)
	rule := models.NotificationRule{
		TimeRemainingEnabled: true,
		TimeRemainingMinutes: []int{30},
	}
	settings := settingsWithRule(models.DimFiveHour, rule)

	messages, _ := Evaluate(snapshotWith(models.DimFiveHour, 50, &resetsAt), settings, models.NotificationState{}, testNow)
	if len(messages) != 0 {
		t.Errorf("past reset time fired %d messages", len(messages))
	}
}

func TestEvaluate_TimeRemaining_IndependentOfUtilization(t *testing.T) {
	resetsAt := testNow.Add(20 * time.Minute).Format(time.RFC3339)
	rule := models.NotificationRule{
		TimeRemainingEnabled: true,
		TimeRemainingMinutes: []int{30},
	}
	settings := settingsWithRule(models.DimFiveHour, rule)

	// High prior utilization, no change: countdown still fires.
	st := models.NotificationState{FiveHourLast: 50}
	messages, _ := Evaluate(snapshotWith(models.DimFiveHour, 50, &resetsAt), settings, st, testNow)
	if len(eventValues(messages)) != 1 {
		t.Errorf("countdown trigger should be independent of utilization, got %+v", messages)
	}
}

func TestEvaluate_CoalescedMessage(t *testing.T) {
	resetsAt := testNow.Add(25 * time.Minute).Format(time.RFC3339)
	rule := models.NotificationRule{
		IntervalEnabled:      true,
		IntervalPercent:      10,
		ThresholdEnabled:     true,
		Thresholds:           []int{80},
		TimeRemainingEnabled: true,
		TimeRemainingMinutes: []int{30},
	}
	settings := settingsWithRule(models.DimSevenDayOpus, rule)

	st := models.NotificationState{SevenDayOpusLast: 50}
	messages, _ := Evaluate(snapshotWith(models.DimSevenDayOpus, 85, &resetsAt), settings, st, testNow)

	if len(messages) != 1 {
		t.Fatalf("all triggers for one dimension must coalesce into one message, got %d", len(messages))
	}
	msg := messages[0]
	if msg.Title != "Opus (7 Day) Usage Alert" {
		t.Errorf("title = %q", msg.Title)
	}
	want := "Usage reached 80% and crossed 80% threshold and resets in < 30m (85% used)"
	if msg.Body != want {
		t.Errorf("body = %q, want %q", msg.Body, want)
	}
	if len(msg.Events) != 3 {
		t.Errorf("events = %+v, want all three triggers", msg.Events)
	}
}

func TestEvaluate_HighWaterMarkAlwaysUpdated(t *testing.T) {
	settings := settingsWithRule(models.DimFiveHour, models.NotificationRule{})

	_, st := Evaluate(snapshotWith(models.DimFiveHour, 33, nil), settings, models.NotificationState{}, testNow)
	if st.FiveHourLast != 33 {
		t.Errorf("high-water mark = %v, want 33 even with every trigger disabled", st.FiveHourLast)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	settings := models.DefaultNotificationSettings()
	snap := snapshotWith(models.DimSevenDay, 91, nil)
	st := models.NotificationState{SevenDayLast: 70}

	m1, s1 := Evaluate(snap, settings, st, testNow)
	m2, s2 := Evaluate(snap, settings, st, testNow)

	if fmt.Sprintf("%+v", m1) != fmt.Sprintf("%+v", m2) {
		t.Error("identical inputs must produce identical messages")
	}
	if fmt.Sprintf("%+v", s1) != fmt.Sprintf("%+v", s2) {
		t.Error("identical inputs must produce identical state")
	}
}

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{30, "30m"},
		{59, "59m"},
		{60, "1h"},
		{90, "1h 30m"},
		{120, "2h"},
		{150, "2h 30m"},
	}
	for _, tt := range tests {
		if got := formatMinutes(tt.minutes); got != tt.want {
			t.Errorf("formatMinutes(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}
