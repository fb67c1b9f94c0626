package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	capabilityService "NotaLink/internal/modules/capability/application/service"
	"NotaLink/internal/modules/capability/domain/capability"
	"NotaLink/internal/modules/capability/infrastructure/budget"
	capabilityPersistence "NotaLink/internal/modules/capability/infrastructure/persistence"
	"NotaLink/internal/modules/orchestrator/domain/responder"
	"NotaLink/internal/modules/orchestrator/infrastructure/pipeline"
	sessionEntity "NotaLink/internal/modules/session/domain/entity"
	sessionRepository "NotaLink/internal/modules/session/domain/repository"
	sessionPersistence "NotaLink/internal/modules/session/infrastructure/persistence"
)

// scriptedResponder 按调用序号回放脚本，并保留每次请求供断言
type scriptedResponder struct {
	mu       sync.Mutex
	calls    int
	requests []*responder.Request
	script   func(call int, req *responder.Request) (*responder.Result, error)
}

func (f *scriptedResponder) Respond(ctx context.Context, req *responder.Request) (*responder.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	return f.script(f.calls, req)
}

func (f *scriptedResponder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func countingCapability(name string, content string, calls *int) capability.Definition {
	return capability.Definition{
		Name:        name,
		Description: "test capability",
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			*calls++
			return &capability.Result{Content: content}, nil
		},
	}
}

func newTestPipeline(t *testing.T, resp responder.Responder, maxCalls int, defs ...capability.Definition) (*pipeline.TurnPipeline, sessionRepository.MessageRepository) {
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

	msgRepo := sessionPersistence.NewMemoryMessageRepository()
	p, err := pipeline.NewTurnPipeline(msgRepo, caps, resp, maxCalls, time.Second)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p, msgRepo
}

func turnRequest(text string) *pipeline.TurnRequest {
	return &pipeline.TurnRequest{
		UserID:    "user-1",
		SessionID: "SEtest01",
		Channel:   "telegram",
		Text:      text,
	}
}

func TestFinalTextWithoutTools(t *testing.T) {
	resp := &scriptedResponder{script: func(call int, req *responder.Request) (*responder.Result, error) {
		return &responder.Result{Text: "hello there"}, nil
	}}
	var calls int
	p, _ := newTestPipeline(t, resp, 5, countingCapability("lookup", "data", &calls))

	res, err := p.Execute(context.Background(), turnRequest("hi"))
	if err != nil || res.Err != nil {
		t.Fatalf("execute failed: %v / %v", err, res.Err)
	}
	if res.Reply != "hello there" {
		t.Fatalf("unexpected reply %q", res.Reply)
	}
	if res.RoundTrips != 1 {
		t.Fatalf("expected single round trip, got %d", res.RoundTrips)
	}
	if res.Fallback || len(res.ToolsUsed) != 0 || calls != 0 {
		t.Fatalf("no tools should have run: %+v calls=%d", res, calls)
	}
}

func TestLoopStopsWhenResponderReturnsText(t *testing.T) {
	resp := &scriptedResponder{script: func(call int, req *responder.Request) (*responder.Result, error) {
		if call == 1 {
			return &responder.Result{ToolCalls: []responder.ToolCall{{ID: "c1", Name: "lookup"}}}, nil
		}
		return &responder.Result{Text: "done early"}, nil
	}}
	var calls int
	p, _ := newTestPipeline(t, resp, 5, countingCapability("lookup", "data", &calls))

	res, err := p.Execute(context.Background(), turnRequest("look something up"))
	if err != nil || res.Err != nil {
		t.Fatalf("execute failed: %v / %v", err, res.Err)
	}
	if res.Reply != "done early" || res.Fallback {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.RoundTrips != 2 || calls != 1 {
		t.Fatalf("expected 2 round trips and 1 capability call, got %d / %d", res.RoundTrips, calls)
	}
}

func TestToolLoopBoundedByBudget(t *testing.T) {
	const maxCalls = 3

	resp := &scriptedResponder{script: func(call int, req *responder.Request) (*responder.Result, error) {
		if len(req.Tools) == 0 {
			// 强制格式化往返不再提供工具
			return &responder.Result{Text: "all wrapped up"}, nil
		}
		return &responder.Result{ToolCalls: []responder.ToolCall{
			{ID: fmt.Sprintf("c%d", call), Name: "lookup"},
		}}, nil
	}}
	var calls int
	p, _ := newTestPipeline(t, resp, maxCalls, countingCapability("lookup", "data", &calls))

	res, err := p.Execute(context.Background(), turnRequest("keep digging"))
	if err != nil || res.Err != nil {
		t.Fatalf("execute failed: %v / %v", err, res.Err)
	}
	if calls != maxCalls {
		t.Fatalf("expected exactly %d capability calls, got %d", maxCalls, calls)
	}
	if res.RoundTrips > maxCalls+1 {
		t.Fatalf("round trips %d exceed bound %d", res.RoundTrips, maxCalls+1)
	}
	if res.Reply != "all wrapped up" || res.Fallback {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.ToolsUsed) != maxCalls {
		t.Fatalf("expected %d tools used, got %v", maxCalls, res.ToolsUsed)
	}
}

func TestOverRequestedCallsAnsweredNotExecuted(t *testing.T) {
	resp := &scriptedResponder{script: func(call int, req *responder.Request) (*responder.Result, error) {
		if call == 1 {
			return &responder.Result{ToolCalls: []responder.ToolCall{
				{ID: "c1", Name: "lookup"},
				{ID: "c2", Name: "lookup"},
				{ID: "c3", Name: "lookup"},
			}}, nil
		}
		return &responder.Result{Text: "ok"}, nil
	}}
	var calls int
	p, _ := newTestPipeline(t, resp, 2, countingCapability("lookup", "data", &calls))

	res, err := p.Execute(context.Background(), turnRequest("fan out"))
	if err != nil || res.Err != nil {
		t.Fatalf("execute failed: %v / %v", err, res.Err)
	}
	if calls != 2 {
		t.Fatalf("expected budget to stop third call, got %d executions", calls)
	}
	if res.RoundTrips != 2 {
		t.Fatalf("expected request round plus format round, got %d", res.RoundTrips)
	}

	// 第二次往返（格式化）应当能看到第三个调用被拒绝的工具消息
	format := resp.requests[1]
	var refused bool
	for _, m := range format.Messages {
		if m.Role == responder.RoleTool && m.ToolCallID == "c3" && strings.Contains(m.Content, "not executed") {
			refused = true
		}
	}
	if !refused {
		t.Fatalf("expected a not-executed tool message for the refused call")
	}
}

func TestFallbackWhenFormattingFails(t *testing.T) {
	resp := &scriptedResponder{script: func(call int, req *responder.Request) (*responder.Result, error) {
		if call == 1 {
			return &responder.Result{ToolCalls: []responder.ToolCall{{ID: "c1", Name: "lookup"}}}, nil
		}
		return nil, errors.New("responder unavailable")
	}}
	var calls int
	p, _ := newTestPipeline(t, resp, 1, countingCapability("lookup", "the answer is 42", &calls))

	res, err := p.Execute(context.Background(), turnRequest("find the answer"))
	if err != nil || res.Err != nil {
		t.Fatalf("fallback must not surface an error: %v / %v", err, res.Err)
	}
	if !res.Fallback {
		t.Fatalf("expected fallback reply, got %+v", res)
	}
	if !strings.Contains(res.Reply, "lookup") || !strings.Contains(res.Reply, "the answer is 42") {
		t.Fatalf("fallback should summarize gathered results, got %q", res.Reply)
	}
}

func TestResponderFailureNeverStallsTurn(t *testing.T) {
	resp := &scriptedResponder{script: func(call int, req *responder.Request) (*responder.Result, error) {
		return nil, errors.New("boom")
	}}
	var calls int
	p, _ := newTestPipeline(t, resp, 5, countingCapability("lookup", "data", &calls))

	res, err := p.Execute(context.Background(), turnRequest("hi"))
	if err != nil || res.Err != nil {
		t.Fatalf("turn must degrade, not fail: %v / %v", err, res.Err)
	}
	if !res.Fallback || res.Reply == "" {
		t.Fatalf("expected deterministic fallback reply, got %+v", res)
	}
	if resp.callCount() != 1 {
		t.Fatalf("a failed responder must not be retried in-loop, got %d calls", resp.callCount())
	}
}

func TestHistoryExcludesCurrentInboundMessage(t *testing.T) {
	var seen *responder.Request
	resp := &scriptedResponder{script: func(call int, req *responder.Request) (*responder.Result, error) {
		seen = req
		return &responder.Result{Text: "you said hi"}, nil
	}}
	var calls int
	p, msgRepo := newTestPipeline(t, resp, 5, countingCapability("lookup", "data", &calls))

	ctx := context.Background()
	now := time.Now()
	for i, m := range []sessionEntity.SessionMessage{
		{SessionID: "SEtest01", Role: sessionEntity.RoleUser, Content: "hi"},
		{SessionID: "SEtest01", Role: sessionEntity.RoleAssistant, Content: "hello"},
		{SessionID: "SEtest01", Role: sessionEntity.RoleUser, Content: "what did I just say?"},
	} {
		m.SentAt = now.Add(time.Duration(i) * time.Second)
		if err := msgRepo.Append(ctx, &m); err != nil {
			t.Fatalf("append history: %v", err)
		}
	}

	if _, err := p.Execute(ctx, turnRequest("what did I just say?")); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if seen == nil {
		t.Fatalf("responder was not called")
	}

	var currentCount int
	for _, m := range seen.Messages {
		if m.Role == responder.RoleUser && m.Content == "what did I just say?" {
			currentCount++
		}
	}
	if currentCount != 1 {
		t.Fatalf("inbound message must appear exactly once in the prompt, got %d", currentCount)
	}
	if first := seen.Messages[0]; first.Role != responder.RoleUser || first.Content != "hi" {
		t.Fatalf("expected history to lead the prompt, got %+v", first)
	}
}
