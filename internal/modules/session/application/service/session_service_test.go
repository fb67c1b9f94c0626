package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"NotaLink/internal/modules/session/application/service"
	"NotaLink/internal/modules/session/domain/entity"
	"NotaLink/internal/modules/session/domain/repository"
	"NotaLink/internal/modules/session/infrastructure/persistence"
	"NotaLink/pkg/util"
	"NotaLink/pkg/xerr"
)

func newTestService(historyLimit int) (service.SessionService, repository.SessionRepository, repository.MessageRepository) {
	sessionRepo := persistence.NewMemorySessionRepository()
	messageRepo := persistence.NewMemoryMessageRepository()
	svc := service.NewSessionService(sessionRepo, messageRepo, historyLimit, time.Hour, 24*time.Hour)
	return svc, sessionRepo, messageRepo
}

func TestGetOrCreateIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(50)

	first, created, err := svc.GetOrCreate(ctx, "U1001", "telegram")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created {
		t.Fatalf("expected first call to create a session")
	}
	if first.SessionID == "" {
		t.Fatalf("expected session id, got empty")
	}

	second, created, err := svc.GetOrCreate(ctx, "U1001", "telegram")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if created {
		t.Fatalf("expected second call to reuse the session")
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("expected same session, got %s and %s", first.SessionID, second.SessionID)
	}

	other, created, err := svc.GetOrCreate(ctx, "U1001", "webhook")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created {
		t.Fatalf("expected new session for a different channel")
	}
	if other.SessionID == first.SessionID {
		t.Fatalf("expected distinct sessions per channel")
	}
}

func TestAppendMessageKeepsBoundedHistory(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(5)

	sess, _, err := svc.GetOrCreate(ctx, "U1001", "telegram")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	for i := 0; i < 8; i++ {
		msg := &entity.SessionMessage{Role: entity.RoleUser, Content: fmt.Sprintf("msg-%d", i)}
		if err := svc.AppendMessage(ctx, sess.SessionID, msg); err != nil {
			t.Fatalf("AppendMessage %d failed: %v", i, err)
		}
	}

	history, err := svc.History(ctx, sess.SessionID, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected history capped at 5, got %d", len(history))
	}
	if history[0].Content != "msg-3" {
		t.Fatalf("expected oldest surviving message msg-3, got %s", history[0].Content)
	}
	if history[4].Content != "msg-7" {
		t.Fatalf("expected newest message msg-7, got %s", history[4].Content)
	}
}

func TestEndIsTerminal(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(50)

	sess, _, err := svc.GetOrCreate(ctx, "U1001", "telegram")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if err := svc.End(ctx, sess.SessionID); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if err := svc.Resume(ctx, sess.SessionID); !errors.Is(err, xerr.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded on resume, got %v", err)
	}
	if err := svc.Pause(ctx, sess.SessionID); !errors.Is(err, xerr.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded on pause, got %v", err)
	}
	msg := &entity.SessionMessage{Role: entity.RoleUser, Content: "hello"}
	if err := svc.AppendMessage(ctx, sess.SessionID, msg); !errors.Is(err, xerr.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded on append, got %v", err)
	}

	// 重复结束幂等
	if err := svc.End(ctx, sess.SessionID); err != nil {
		t.Fatalf("expected repeated End to succeed, got %v", err)
	}

	// 结束后同一用户+渠道重新发起会话得到新会话
	fresh, created, err := svc.GetOrCreate(ctx, "U1001", "telegram")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created || fresh.SessionID == sess.SessionID {
		t.Fatalf("expected a fresh session after end")
	}
}

func TestPauseKeepsSessionReusable(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(50)

	sess, _, err := svc.GetOrCreate(ctx, "U1001", "telegram")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if err := svc.Pause(ctx, sess.SessionID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	got, err := svc.Get(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != entity.StatusPaused {
		t.Fatalf("expected paused status, got %d", got.Status)
	}

	// 暂停的会话仍按存活处理，不新建
	same, created, err := svc.GetOrCreate(ctx, "U1001", "telegram")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if created || same.SessionID != sess.SessionID {
		t.Fatalf("expected paused session to be reused")
	}

	if err := svc.Resume(ctx, sess.SessionID); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	got, err = svc.Get(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != entity.StatusActive {
		t.Fatalf("expected active status after resume, got %d", got.Status)
	}
}

func TestNotebookBindingSetSemantics(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(50)

	sess, _, err := svc.GetOrCreate(ctx, "U1001", "telegram")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if err := svc.BindNotebook(ctx, sess.SessionID, "NB1"); err != nil {
		t.Fatalf("BindNotebook failed: %v", err)
	}
	if err := svc.BindNotebook(ctx, sess.SessionID, "NB1"); err != nil {
		t.Fatalf("expected duplicate bind to be a no-op, got %v", err)
	}

	got, err := svc.Get(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Notebooks) != 1 || got.Notebooks[0] != "NB1" {
		t.Fatalf("expected single NB1 binding, got %v", got.Notebooks)
	}

	if err := svc.UnbindNotebook(ctx, sess.SessionID, "NB9"); err != nil {
		t.Fatalf("expected unbinding an absent notebook to be a no-op, got %v", err)
	}
	if err := svc.UnbindNotebook(ctx, sess.SessionID, "NB1"); err != nil {
		t.Fatalf("UnbindNotebook failed: %v", err)
	}
	got, err = svc.Get(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Notebooks) != 0 {
		t.Fatalf("expected no bindings, got %v", got.Notebooks)
	}
}

func TestSessionVars(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(50)

	sess, _, err := svc.GetOrCreate(ctx, "U1001", "telegram")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if err := svc.SetVar(ctx, sess.SessionID, "lang", "zh"); err != nil {
		t.Fatalf("SetVar failed: %v", err)
	}
	value, ok, err := svc.GetVar(ctx, sess.SessionID, "lang")
	if err != nil || !ok || value != "zh" {
		t.Fatalf("expected lang=zh, got value=%q ok=%v err=%v", value, ok, err)
	}

	_, ok, err = svc.GetVar(ctx, sess.SessionID, "missing")
	if err != nil {
		t.Fatalf("GetVar failed: %v", err)
	}
	if ok {
		t.Fatalf("expected missing var to report ok=false")
	}
}

func TestSweepIdleEndsAndPurges(t *testing.T) {
	ctx := context.Background()
	svc, sessionRepo, messageRepo := newTestService(50)

	now := time.Now()

	// 空闲超时的存活会话
	idle := &entity.Session{
		SessionID:    util.GenerateSessionID(),
		UserID:       "U1001",
		Channel:      "telegram",
		Status:       entity.StatusActive,
		StartedAt:    now.Add(-3 * time.Hour),
		LastActiveAt: now.Add(-2 * time.Hour),
	}
	if err := sessionRepo.Create(ctx, idle); err != nil {
		t.Fatalf("seed idle session: %v", err)
	}

	// 早已结束、超过保留期的会话
	endedAt := now.Add(-48 * time.Hour)
	stale := &entity.Session{
		SessionID:    util.GenerateSessionID(),
		UserID:       "U1002",
		Channel:      "telegram",
		Status:       entity.StatusEnded,
		StartedAt:    now.Add(-72 * time.Hour),
		LastActiveAt: endedAt,
		EndedAt:      &endedAt,
	}
	if err := sessionRepo.Create(ctx, stale); err != nil {
		t.Fatalf("seed stale session: %v", err)
	}
	if err := messageRepo.Append(ctx, &entity.SessionMessage{SessionID: stale.SessionID, Role: entity.RoleUser, Content: "old"}); err != nil {
		t.Fatalf("seed stale message: %v", err)
	}

	// 活跃会话不受影响
	fresh, _, err := svc.GetOrCreate(ctx, "U1003", "telegram")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	ended, purged, err := svc.SweepIdle(ctx)
	if err != nil {
		t.Fatalf("SweepIdle failed: %v", err)
	}
	if ended != 1 {
		t.Fatalf("expected 1 session ended, got %d", ended)
	}
	if purged != 1 {
		t.Fatalf("expected 1 session purged, got %d", purged)
	}

	got, err := svc.Get(ctx, idle.SessionID)
	if err != nil {
		t.Fatalf("Get idle session: %v", err)
	}
	if got.Status != entity.StatusEnded {
		t.Fatalf("expected idle session ended, got status %d", got.Status)
	}

	if _, err := svc.Get(ctx, stale.SessionID); !errors.Is(err, xerr.ErrSessionNotFound) {
		t.Fatalf("expected stale session purged, got %v", err)
	}
	count, err := messageRepo.CountBySession(ctx, stale.SessionID)
	if err != nil {
		t.Fatalf("CountBySession failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected stale session messages purged, got %d", count)
	}

	if _, err := svc.Get(ctx, fresh.SessionID); err != nil {
		t.Fatalf("expected fresh session untouched, got %v", err)
	}
}

func TestGetUnknownSession(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(50)

	if _, err := svc.Get(ctx, "SEdoesnotexist"); !errors.Is(err, xerr.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
