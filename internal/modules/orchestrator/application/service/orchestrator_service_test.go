package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	capabilityService "NotaLink/internal/modules/capability/application/service"
	"NotaLink/internal/modules/capability/domain/capability"
	"NotaLink/internal/modules/capability/infrastructure/budget"
	capabilityPersistence "NotaLink/internal/modules/capability/infrastructure/persistence"
	"NotaLink/internal/modules/orchestrator/application/service"
	"NotaLink/internal/modules/orchestrator/domain/responder"
	"NotaLink/internal/modules/orchestrator/infrastructure/intent"
	"NotaLink/internal/modules/orchestrator/infrastructure/pipeline"
	sessionService "NotaLink/internal/modules/session/application/service"
	"NotaLink/internal/modules/session/domain/entity"
	sessionPersistence "NotaLink/internal/modules/session/infrastructure/persistence"
)

type fakeResponder struct {
	mu    sync.Mutex
	calls int
	reply string
}

func (f *fakeResponder) Respond(ctx context.Context, req *responder.Request) (*responder.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &responder.Result{Text: f.reply}, nil
}

func (f *fakeResponder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	orch     service.OrchestratorService
	sessions sessionService.SessionService
	resp     *fakeResponder
}

func newTestEnv(t *testing.T, defs ...capability.Definition) *testEnv {
	t.Helper()

	caps := capabilityService.NewCapabilityService(
		capabilityPersistence.NewMemoryEntitlementRepository(),
		capabilityPersistence.NewMemoryUsageRepository(),
		capabilityPersistence.NewMemoryAuditOutboxRepository(),
		budget.NewMemoryCounter(),
		100,
		time.Second,
	)
	for _, def := range defs {
		if err := caps.Register(def); err != nil {
			t.Fatalf("register capability: %v", err)
		}
	}

	sessionRepo := sessionPersistence.NewMemorySessionRepository()
	messageRepo := sessionPersistence.NewMemoryMessageRepository()
	sessions := sessionService.NewSessionService(sessionRepo, messageRepo, 50, time.Hour, 24*time.Hour)

	resp := &fakeResponder{reply: "model reply"}
	pipe, err := pipeline.NewTurnPipeline(messageRepo, caps, resp, 5, time.Second)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	return &testEnv{
		orch:     service.NewOrchestratorService(intent.NewMatcher(), pipe, caps, sessions),
		sessions: sessions,
		resp:     resp,
	}
}

func (e *testEnv) openSession(t *testing.T, userID string) *entity.Session {
	t.Helper()
	sess, _, err := e.sessions.GetOrCreate(context.Background(), userID, "telegram")
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return sess
}

func TestPatternRuleBypassesResponder(t *testing.T) {
	var gotText string
	env := newTestEnv(t, capability.Definition{
		Name:        "schedule_task",
		Description: "schedule a reminder",
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			gotText = inv.StringArg("text")
			return &capability.Result{Content: "Scheduled, I will remind you."}, nil
		},
	})
	sess := env.openSession(t, "user-1")

	out, err := env.orch.HandleTurn(context.Background(), &service.TurnInput{
		UserID:    "user-1",
		SessionID: sess.SessionID,
		Channel:   "telegram",
		Text:      "Remind me in 30 minutes to stretch",
	})
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if !out.Direct || out.Reply != "Scheduled, I will remind you." {
		t.Fatalf("expected direct capability reply, got %+v", out)
	}
	if gotText != "Remind me in 30 minutes to stretch" {
		t.Fatalf("capability should receive the raw utterance, got %q", gotText)
	}
	if env.resp.callCount() != 0 {
		t.Fatalf("responder must not be consulted on a rule match, got %d calls", env.resp.callCount())
	}
}

func TestSessionControlPausesSession(t *testing.T) {
	env := newTestEnv(t)
	sess := env.openSession(t, "user-1")

	out, err := env.orch.HandleTurn(context.Background(), &service.TurnInput{
		UserID:    "user-1",
		SessionID: sess.SessionID,
		Channel:   "telegram",
		Text:      "pause",
	})
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if !out.Direct || out.Reply == "" {
		t.Fatalf("expected direct confirmation, got %+v", out)
	}

	got, err := env.sessions.Get(context.Background(), sess.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != entity.StatusPaused {
		t.Fatalf("expected session paused, got status %d", got.Status)
	}
	if env.resp.callCount() != 0 {
		t.Fatalf("session control must not consult the responder")
	}
}

func TestCapabilityListingHidesPremium(t *testing.T) {
	noop := func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
		return &capability.Result{Content: "ok"}, nil
	}
	env := newTestEnv(t,
		capability.Definition{Name: "free_echo", Description: "echo text back", Handler: noop},
		capability.Definition{Name: "deep_research", Description: "premium research", Premium: true, Handler: noop},
	)
	sess := env.openSession(t, "user-1")

	out, err := env.orch.HandleTurn(context.Background(), &service.TurnInput{
		UserID:    "user-1",
		SessionID: sess.SessionID,
		Channel:   "telegram",
		Text:      "what can you do?",
	})
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if !strings.Contains(out.Reply, "free_echo") {
		t.Fatalf("expected free capability in listing, got %q", out.Reply)
	}
	if strings.Contains(out.Reply, "deep_research") {
		t.Fatalf("premium capability must be hidden from free users, got %q", out.Reply)
	}
}

func TestUnmatchedTextGoesToResponder(t *testing.T) {
	env := newTestEnv(t)
	sess := env.openSession(t, "user-1")

	out, err := env.orch.HandleTurn(context.Background(), &service.TurnInput{
		UserID:    "user-1",
		SessionID: sess.SessionID,
		Channel:   "telegram",
		Text:      "tell me a joke",
	})
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if out.Direct {
		t.Fatalf("free-form text must not look like a rule match: %+v", out)
	}
	if out.Reply != "model reply" {
		t.Fatalf("expected responder text, got %q", out.Reply)
	}
	if env.resp.callCount() != 1 {
		t.Fatalf("expected one responder round trip, got %d", env.resp.callCount())
	}
}

func TestBlockedCapabilityTurnsIntoFriendlyReply(t *testing.T) {
	env := newTestEnv(t, capability.Definition{
		Name:        "schedule_task",
		Description: "schedule a reminder",
		Premium:     true,
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			t.Fatalf("handler must not run for a blocked capability")
			return nil, nil
		},
	})
	sess := env.openSession(t, "user-1")

	out, err := env.orch.HandleTurn(context.Background(), &service.TurnInput{
		UserID:    "user-1",
		SessionID: sess.SessionID,
		Channel:   "telegram",
		Text:      "remind me at 5pm to stretch",
	})
	if err != nil {
		t.Fatalf("blocked capability must not fail the turn: %v", err)
	}
	if !out.Direct || !strings.Contains(out.Reply, "premium") {
		t.Fatalf("expected a friendly entitlement message, got %+v", out)
	}
}
