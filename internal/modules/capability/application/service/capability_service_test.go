package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"NotaLink/internal/modules/capability/application/service"
	"NotaLink/internal/modules/capability/domain/capability"
	"NotaLink/internal/modules/capability/domain/entity"
	"NotaLink/internal/modules/capability/domain/repository"
	"NotaLink/internal/modules/capability/infrastructure/budget"
	"NotaLink/internal/modules/capability/infrastructure/persistence"
	"NotaLink/pkg/xerr"
)

func newTestRegistry(defaultBudget int) (service.CapabilityService, repository.UsageRepository, repository.EntitlementRepository) {
	entRepo := persistence.NewMemoryEntitlementRepository()
	usageRepo := persistence.NewMemoryUsageRepository()
	auditRepo := persistence.NewMemoryAuditOutboxRepository()
	counter := budget.NewMemoryCounter()
	svc := service.NewCapabilityService(entRepo, usageRepo, auditRepo, counter, defaultBudget, 5*time.Second)
	return svc, usageRepo, entRepo
}

func echoDefinition(name string, premium bool, calls *int) capability.Definition {
	return capability.Definition{
		Name:        name,
		Description: "echo input back",
		Params: []capability.ParamSpec{
			{Name: "text", Type: capability.ParamString, Description: "text to echo", Required: true},
		},
		Premium: premium,
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			if calls != nil {
				*calls++
			}
			return &capability.Result{Content: inv.StringArg("text")}, nil
		},
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	svc, _, _ := newTestRegistry(100)

	if err := svc.Register(echoDefinition("echo", false, nil)); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := svc.Register(echoDefinition("echo", false, nil)); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestExecuteRunsHandlerAndRecordsUsage(t *testing.T) {
	ctx := context.Background()
	svc, usageRepo, _ := newTestRegistry(100)

	calls := 0
	if err := svc.Register(echoDefinition("echo", false, &calls)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	inv := &capability.Invocation{
		UserID:    "U1001",
		SessionID: "SE1",
		Channel:   "telegram",
		Args:      map[string]interface{}{"text": "hello"},
	}
	result, err := svc.Execute(ctx, "echo", inv)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Content != "hello" {
		t.Fatalf("expected echoed content, got %q", result.Content)
	}
	if calls != 1 {
		t.Fatalf("expected handler called once, got %d", calls)
	}

	records, err := usageRepo.ListByUser(ctx, "U1001", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one usage row, got %d", len(records))
	}
	if records[0].Outcome != entity.OutcomeOK {
		t.Fatalf("expected OK outcome, got %d", records[0].Outcome)
	}
}

func TestExecuteUnknownCapability(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestRegistry(100)

	inv := &capability.Invocation{UserID: "U1001", SessionID: "SE1"}
	if _, err := svc.Execute(ctx, "nope", inv); !errors.Is(err, xerr.ErrCapabilityNotFound) {
		t.Fatalf("expected ErrCapabilityNotFound, got %v", err)
	}
}

func TestPremiumBlockedBeforeHandler(t *testing.T) {
	ctx := context.Background()
	svc, usageRepo, _ := newTestRegistry(100)

	calls := 0
	if err := svc.Register(echoDefinition("web_search", true, &calls)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	inv := &capability.Invocation{UserID: "U1001", SessionID: "SE1", Args: map[string]interface{}{"text": "query"}}
	if _, err := svc.Execute(ctx, "web_search", inv); !errors.Is(err, xerr.ErrCapabilityForbidden) {
		t.Fatalf("expected ErrCapabilityForbidden, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected handler never called, got %d calls", calls)
	}

	records, err := usageRepo.ListByUser(ctx, "U1001", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one usage row for the blocked call, got %d", len(records))
	}
	if records[0].Outcome != entity.OutcomeForbidden {
		t.Fatalf("expected forbidden outcome, got %d", records[0].Outcome)
	}
}

func TestPremiumAllowedWithEntitlement(t *testing.T) {
	ctx := context.Background()
	svc, _, entRepo := newTestRegistry(100)

	calls := 0
	if err := svc.Register(echoDefinition("web_search", true, &calls)); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := entRepo.Upsert(ctx, &entity.Entitlement{UserID: "U1001", Premium: true}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	inv := &capability.Invocation{UserID: "U1001", SessionID: "SE1", Args: map[string]interface{}{"text": "query"}}
	if _, err := svc.Execute(ctx, "web_search", inv); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected handler called once, got %d", calls)
	}
}

func TestExpiredPremiumIsBlocked(t *testing.T) {
	ctx := context.Background()
	svc, _, entRepo := newTestRegistry(100)

	if err := svc.Register(echoDefinition("web_search", true, nil)); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	expired := time.Now().Add(-time.Hour)
	if err := entRepo.Upsert(ctx, &entity.Entitlement{UserID: "U1001", Premium: true, ExpiresAt: &expired}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	inv := &capability.Invocation{UserID: "U1001", SessionID: "SE1"}
	if _, err := svc.Execute(ctx, "web_search", inv); !errors.Is(err, xerr.ErrCapabilityForbidden) {
		t.Fatalf("expected ErrCapabilityForbidden for expired premium, got %v", err)
	}
}

func TestBudgetExhaustionBlocksHandler(t *testing.T) {
	ctx := context.Background()
	svc, usageRepo, _ := newTestRegistry(2)

	calls := 0
	if err := svc.Register(echoDefinition("echo", false, &calls)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	inv := &capability.Invocation{UserID: "U1001", SessionID: "SE1", Args: map[string]interface{}{"text": "hi"}}
	for i := 0; i < 2; i++ {
		if _, err := svc.Execute(ctx, "echo", inv); err != nil {
			t.Fatalf("Execute %d failed: %v", i, err)
		}
	}

	if _, err := svc.Execute(ctx, "echo", inv); !errors.Is(err, xerr.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected handler called twice only, got %d", calls)
	}

	records, err := usageRepo.ListByUser(ctx, "U1001", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected three usage rows including the blocked call, got %d", len(records))
	}
	if records[0].Outcome != entity.OutcomeQuota {
		t.Fatalf("expected newest row to be the quota block, got %d", records[0].Outcome)
	}
}

func TestFailedHandlerStillWritesOneUsageRow(t *testing.T) {
	ctx := context.Background()
	svc, usageRepo, _ := newTestRegistry(100)

	def := capability.Definition{
		Name:        "broken",
		Description: "always fails",
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			return nil, errors.New("backend unavailable")
		},
	}
	if err := svc.Register(def); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	inv := &capability.Invocation{UserID: "U1001", SessionID: "SE1"}
	if _, err := svc.Execute(ctx, "broken", inv); !errors.Is(err, xerr.ErrCapabilityFailed) {
		t.Fatalf("expected ErrCapabilityFailed, got %v", err)
	}

	records, err := usageRepo.ListByUser(ctx, "U1001", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one usage row, got %d", len(records))
	}
	if records[0].Outcome != entity.OutcomeHandlerError {
		t.Fatalf("expected handler_error outcome, got %d", records[0].Outcome)
	}
	if records[0].ErrMessage == "" {
		t.Fatalf("expected error message in usage row")
	}
}

func TestListHidesPremiumFromFreeUsers(t *testing.T) {
	ctx := context.Background()
	svc, _, entRepo := newTestRegistry(100)

	if err := svc.Register(echoDefinition("echo", false, nil)); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := svc.Register(echoDefinition("web_search", true, nil)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	free, err := svc.List(ctx, "U1001")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(free) != 1 || free[0].Name != "echo" {
		t.Fatalf("expected only echo for free user, got %v", free)
	}

	if err := entRepo.Upsert(ctx, &entity.Entitlement{UserID: "U1002", Premium: true}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	paid, err := svc.List(ctx, "U1002")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(paid) != 2 {
		t.Fatalf("expected both capabilities for premium user, got %v", paid)
	}
}

func TestCostWeightedBudgetConsumption(t *testing.T) {
	ctx := context.Background()
	svc, usageRepo, _ := newTestRegistry(4)

	calls := 0
	def := echoDefinition("digest", false, &calls)
	def.Cost = 3
	if err := svc.Register(def); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	inv := &capability.Invocation{UserID: "U1001", SessionID: "SE1", Args: map[string]interface{}{"text": "hi"}}
	if _, err := svc.Execute(ctx, "digest", inv); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	if _, err := svc.Execute(ctx, "digest", inv); !errors.Is(err, xerr.ErrQuotaExceeded) {
		t.Fatalf("expected second call to exceed the budget, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected handler called once, got %d", calls)
	}

	records, err := usageRepo.ListByUser(ctx, "U1001", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected two usage rows, got %d", len(records))
	}
	if records[1].Cost != 3 {
		t.Fatalf("expected cost 3 on the executed row, got %d", records[1].Cost)
	}
}

func TestListHidesCapabilitiesBeyondRemainingBudget(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestRegistry(3)

	cheap := echoDefinition("echo", false, nil)
	costly := echoDefinition("digest", false, nil)
	costly.Cost = 3
	if err := svc.Register(cheap); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := svc.Register(costly); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	both, err := svc.List(ctx, "U1001")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(both) != 2 {
		t.Fatalf("expected both capabilities before any spend, got %v", both)
	}

	inv := &capability.Invocation{UserID: "U1001", SessionID: "SE1", Args: map[string]interface{}{"text": "hi"}}
	if _, err := svc.Execute(ctx, "echo", inv); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	after, err := svc.List(ctx, "U1001")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(after) != 1 || after[0].Name != "echo" {
		t.Fatalf("expected only echo with 2 units left, got %v", after)
	}
}
