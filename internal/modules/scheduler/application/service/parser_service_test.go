package service_test

import (
	"testing"
	"time"

	"NotaLink/internal/modules/scheduler/application/service"
	"NotaLink/internal/modules/scheduler/domain/entity"
)

// 2024-01-01 is a Monday.
var refNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func parseAt(t *testing.T, text string) *service.ParseResult {
	t.Helper()
	return service.NewParserService().ParseAt(text, refNow)
}

func TestRelativeReminderIsOneTime(t *testing.T) {
	res := parseAt(t, "remind me in 30 minutes to stand up")

	if res.TriggerType != entity.TriggerOnce {
		t.Fatalf("expected one-time trigger, got %d", res.TriggerType)
	}
	if res.TriggerAt == nil || !res.TriggerAt.Equal(refNow.Add(30*time.Minute)) {
		t.Fatalf("expected trigger at now+30m, got %v", res.TriggerAt)
	}
	if res.ActionType != entity.ActionSendMessage {
		t.Fatalf("expected send_message action, got %d", res.ActionType)
	}
	if res.Payload.Message != "stand up" {
		t.Fatalf("expected extracted message, got %q", res.Payload.Message)
	}
	if res.Confidence < 0.85 {
		t.Fatalf("expected confidence >= 0.85, got %v", res.Confidence)
	}
}

func TestWeeklySummaryBecomesCronAIPrompt(t *testing.T) {
	res := parseAt(t, "every Monday at 9am send me a summary")

	if res.TriggerType != entity.TriggerCron {
		t.Fatalf("expected cron trigger, got %d", res.TriggerType)
	}
	if res.CronExpr != "0 9 * * 1" {
		t.Fatalf("expected Monday 09:00 expression, got %q", res.CronExpr)
	}
	if res.ActionType != entity.ActionAIPrompt {
		t.Fatalf("summary cue should infer ai_prompt, got %d", res.ActionType)
	}
	if res.Confidence < 0.9 {
		t.Fatalf("expected confidence >= 0.9, got %v", res.Confidence)
	}
}

func TestDailyRecurrenceWithEveningClock(t *testing.T) {
	res := parseAt(t, "every day at 8:30pm remind me to journal")

	if res.TriggerType != entity.TriggerCron || res.CronExpr != "30 20 * * *" {
		t.Fatalf("expected daily 20:30 cron, got type=%d expr=%q", res.TriggerType, res.CronExpr)
	}
	if res.Confidence != 0.95 {
		t.Fatalf("recurring shape should score 0.95, got %v", res.Confidence)
	}
	if res.Payload.Message != "journal" {
		t.Fatalf("expected extracted message, got %q", res.Payload.Message)
	}
}

func TestFixedIntervalShape(t *testing.T) {
	res := parseAt(t, "every 15 minutes check the build status")

	if res.TriggerType != entity.TriggerInterval {
		t.Fatalf("expected interval trigger, got %d", res.TriggerType)
	}
	if res.EverySeconds != 900 {
		t.Fatalf("expected 900s interval, got %d", res.EverySeconds)
	}
	if res.Payload.Message != "check the build status" {
		t.Fatalf("expected extracted message, got %q", res.Payload.Message)
	}
}

func TestClockForms(t *testing.T) {
	cases := []struct {
		text string
		want time.Time
	}{
		{"remind me at 5pm to call Alex", time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC)},
		{"remind me at 17:30 to close the report", time.Date(2024, 1, 1, 17, 30, 0, 0, time.UTC)},
		{"remind me at noon to eat", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		// 9am 已经过了，滚到明天
		{"remind me at 9am to water the plants", time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)},
		{"remind me at midnight to sleep", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		res := parseAt(t, tc.text)
		if res.TriggerType != entity.TriggerOnce || res.TriggerAt == nil {
			t.Fatalf("%q: expected one-time trigger, got %+v", tc.text, res)
		}
		if !res.TriggerAt.Equal(tc.want) {
			t.Fatalf("%q: expected %v, got %v", tc.text, tc.want, res.TriggerAt)
		}
	}
}

func TestNamedWeekdayOneTime(t *testing.T) {
	res := parseAt(t, "on friday at 3pm remind me to submit the timesheet")
	want := time.Date(2024, 1, 5, 15, 0, 0, 0, time.UTC)
	if res.TriggerAt == nil || !res.TriggerAt.Equal(want) {
		t.Fatalf("expected next Friday 15:00, got %v", res.TriggerAt)
	}

	// 参考时刻是周一 10:00，周一 9am 已过，应当落到下周一
	res = parseAt(t, "on monday at 9am remind me about standup")
	want = time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	if res.TriggerAt == nil || !res.TriggerAt.Equal(want) {
		t.Fatalf("expected next Monday 09:00, got %v", res.TriggerAt)
	}
}

func TestGenericScheduleShapeScoresLower(t *testing.T) {
	res := parseAt(t, "schedule a digest for tomorrow at noon")

	want := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	if res.TriggerAt == nil || !res.TriggerAt.Equal(want) {
		t.Fatalf("expected tomorrow noon, got %v", res.TriggerAt)
	}
	if res.Confidence != 0.85 {
		t.Fatalf("generic schedule shape should score 0.85, got %v", res.Confidence)
	}
	if res.ActionType != entity.ActionAIPrompt {
		t.Fatalf("digest cue should infer ai_prompt, got %d", res.ActionType)
	}
}

func TestWebhookCueWithURL(t *testing.T) {
	res := parseAt(t, "every 2 hours post to https://example.com/build webhook")

	if res.TriggerType != entity.TriggerInterval || res.EverySeconds != 7200 {
		t.Fatalf("expected 2h interval, got type=%d every=%d", res.TriggerType, res.EverySeconds)
	}
	if res.ActionType != entity.ActionWebhook {
		t.Fatalf("expected webhook action, got %d", res.ActionType)
	}
	if res.Payload.URL != "https://example.com/build" {
		t.Fatalf("expected URL extracted, got %q", res.Payload.URL)
	}
}

func TestRunCommandCue(t *testing.T) {
	res := parseAt(t, "every day at 6am run backup-notes")

	if res.TriggerType != entity.TriggerCron || res.CronExpr != "0 6 * * *" {
		t.Fatalf("expected daily 06:00 cron, got %q", res.CronExpr)
	}
	if res.ActionType != entity.ActionCommand || res.Payload.Command != "backup-notes" {
		t.Fatalf("expected command action, got type=%d cmd=%q", res.ActionType, res.Payload.Command)
	}
}

func TestUnresolvableTextRejectedWithExamples(t *testing.T) {
	for _, text := range []string{"please do the thing", "hello there", ""} {
		res := parseAt(t, text)
		if res.Confidence > 0.2 {
			t.Fatalf("%q: expected near-zero confidence, got %v", text, res.Confidence)
		}
		if len(res.Examples) == 0 {
			t.Fatalf("%q: rejection must carry example phrasings", text)
		}
	}
}
