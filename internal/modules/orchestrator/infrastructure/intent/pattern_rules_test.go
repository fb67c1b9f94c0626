package intent_test

import (
	"testing"

	"NotaLink/internal/modules/orchestrator/infrastructure/intent"
)

func TestScheduleIntentMatches(t *testing.T) {
	m := intent.NewMatcher()

	for _, text := range []string{
		"Remind me in 30 minutes to stretch",
		"every Monday at 9am send me a summary",
		"Schedule a database backup for 5pm",
		"please remind me at 17:30 to call mom",
	} {
		match, ok := m.Match(text)
		if !ok {
			t.Fatalf("expected %q to match a rule", text)
		}
		if match.Rule.Capability != "schedule_task" {
			t.Fatalf("expected %q to route to schedule_task, got %q", text, match.Rule.Capability)
		}
		if got := match.Args["text"]; got != text {
			t.Fatalf("expected original text as arg, got %v", got)
		}
	}
}

func TestListAndCancelIntents(t *testing.T) {
	m := intent.NewMatcher()

	match, ok := m.Match("list my reminders")
	if !ok || match.Rule.Capability != "list_tasks" {
		t.Fatalf("expected list_tasks, got %+v", match)
	}

	match, ok = m.Match("cancel task TK42abc")
	if !ok || match.Rule.Capability != "cancel_task" {
		t.Fatalf("expected cancel_task, got %+v", match)
	}
	if got := match.Args["task_id"]; got != "TK42abc" {
		t.Fatalf("expected task id to keep original case, got %v", got)
	}
}

func TestSessionControlPhrases(t *testing.T) {
	m := intent.NewMatcher()

	cases := map[string]string{
		"pause":       intent.ControlPause,
		"Resume":      intent.ControlResume,
		"End session": intent.ControlEnd,
		"bye.":        intent.ControlEnd,
	}
	for text, want := range cases {
		match, ok := m.Match(text)
		if !ok {
			t.Fatalf("expected %q to match session control", text)
		}
		if match.Rule.Action != intent.ActionSessionControl || match.Rule.Control != want {
			t.Fatalf("expected %q to map to control %q, got %+v", text, want, match.Rule)
		}
	}
}

func TestCapabilityListingIntent(t *testing.T) {
	m := intent.NewMatcher()

	match, ok := m.Match("what can you do?")
	if !ok || match.Rule.Action != intent.ActionListCapabilities {
		t.Fatalf("expected capability listing, got %+v", match)
	}
}

func TestNotebookIntents(t *testing.T) {
	m := intent.NewMatcher()

	match, ok := m.Match("open notebook NBtravel")
	if !ok || match.Rule.Capability != "open_notebook" {
		t.Fatalf("expected open_notebook, got %+v", match)
	}
	if got := match.Args["notebook_id"]; got != "NBtravel" {
		t.Fatalf("expected notebook id NBtravel, got %v", got)
	}

	if match, ok = m.Match("list notebooks"); !ok || match.Rule.Capability != "list_notebooks" {
		t.Fatalf("expected list_notebooks, got %+v", match)
	}
}

func TestResearchMissionIntent(t *testing.T) {
	m := intent.NewMatcher()

	match, ok := m.Match("deploy a research mission on quantum risk models.")
	if !ok || match.Rule.Capability != "research_mission" {
		t.Fatalf("expected research_mission, got %+v", match)
	}
	if got := match.Args["topic"]; got != "quantum risk models" {
		t.Fatalf("expected trimmed topic, got %v", got)
	}
}

func TestUnmatchedTextFallsThrough(t *testing.T) {
	m := intent.NewMatcher()

	for _, text := range []string{
		"what's the weather in Tokyo",
		"can you continue the story",
		"",
		"   ",
	} {
		if match, ok := m.Match(text); ok {
			t.Fatalf("expected %q to fall through, matched %q", text, match.Rule.Name)
		}
	}
}
