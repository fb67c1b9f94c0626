package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"NotaLink/internal/modules/capability/domain/capability"
	"NotaLink/internal/modules/capability/domain/entity"
	"NotaLink/internal/modules/capability/domain/repository"
	"NotaLink/internal/modules/capability/infrastructure/budget"
	"NotaLink/pkg/util"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const auditEventCapabilityInvoked = "capability_invoked"

type CapabilityService interface {
	// Register 注册能力，名称冲突返回错误（启动期由调用方 Fatal）
	Register(def capability.Definition) error
	// MustRegister Register 的启动期便捷形式，失败 Fatal
	MustRegister(def capability.Definition)
	// Descriptors 返回全部能力目录，给模型工具与 MCP 导出用
	Descriptors() []capability.Descriptor
	// List 返回用户可见的能力目录，未开通付费的用户看不到付费能力
	List(ctx context.Context, userID string) ([]capability.Descriptor, error)
	Get(name string) (*capability.Definition, bool)
	// Execute 执行一次能力调用：额度与权限在处理函数之前检查，
	// 每次调用恰好写一条台账并按能力声明的成本扣减额度，不做内部重试
	Execute(ctx context.Context, name string, inv *capability.Invocation) (*capability.Result, error)

	GetEntitlement(ctx context.Context, userID string) (*entity.Entitlement, error)
	Entitle(ctx context.Context, ent *entity.Entitlement) error
	Usage(ctx context.Context, userID string, limit int) ([]entity.UsageRecord, error)
}

type capabilityServiceImpl struct {
	mu   sync.RWMutex
	defs map[string]*capability.Definition

	entitlementRepo repository.EntitlementRepository
	usageRepo       repository.UsageRepository
	auditRepo       repository.AuditOutboxRepository
	counter         budget.Counter

	defaultBudget int
	callTimeout   time.Duration
}

func NewCapabilityService(
	entitlementRepo repository.EntitlementRepository,
	usageRepo repository.UsageRepository,
	auditRepo repository.AuditOutboxRepository,
	counter budget.Counter,
	defaultBudget int,
	callTimeout time.Duration,
) CapabilityService {
	return &capabilityServiceImpl{
		defs:            make(map[string]*capability.Definition),
		entitlementRepo: entitlementRepo,
		usageRepo:       usageRepo,
		auditRepo:       auditRepo,
		counter:         counter,
		defaultBudget:   defaultBudget,
		callTimeout:     callTimeout,
	}
}

func (s *capabilityServiceImpl) Register(def capability.Definition) error {
	if def.Name == "" {
		return errors.New("capability name is empty")
	}
	if def.Handler == nil {
		return errors.New("capability handler is nil: " + def.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.defs[def.Name]; exists {
		return errors.New("capability already registered: " + def.Name)
	}
	cp := def
	s.defs[def.Name] = &cp
	zlog.Info("capability registered",
		zap.String("name", def.Name),
		zap.Bool("premium", def.Premium),
		zap.Int("params", len(def.Params)))
	return nil
}

// MustRegister 启动期注册，冲突直接 Fatal
func (s *capabilityServiceImpl) MustRegister(def capability.Definition) {
	if err := s.Register(def); err != nil {
		zlog.Fatal("能力注册失败: " + err.Error())
	}
}

func (s *capabilityServiceImpl) Descriptors() []capability.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]capability.Descriptor, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *capabilityServiceImpl) List(ctx context.Context, userID string) ([]capability.Descriptor, error) {
	now := time.Now()
	ent, err := s.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}
	premiumOK := ent.PremiumActive(now)

	// 目录只展示当前剩余额度还够调用的能力
	limit := ent.BudgetLimit
	if limit <= 0 {
		limit = s.defaultBudget
	}
	remaining := int64(limit)
	if s.counter != nil && limit > 0 {
		used, err := s.counter.Peek(ctx, userID, now)
		if err != nil {
			zlog.Warn("budget counter unavailable", zap.String("user_id", userID), zap.Error(err))
		} else {
			remaining = int64(limit) - used
		}
	}

	all := s.Descriptors()
	out := make([]capability.Descriptor, 0, len(all))
	for _, d := range all {
		if d.Premium && !premiumOK {
			continue
		}
		if limit > 0 && int64(d.Cost) > remaining {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *capabilityServiceImpl) Get(name string) (*capability.Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[name]
	return def, ok
}

func (s *capabilityServiceImpl) Execute(ctx context.Context, name string, inv *capability.Invocation) (*capability.Result, error) {
	def, ok := s.Get(name)
	if !ok {
		return nil, xerr.ErrCapabilityNotFound
	}
	if inv == nil || inv.UserID == "" {
		return nil, xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}
	inv.Capability = name

	now := time.Now()
	cost := def.UnitCost()

	// 每次调用恰好消耗一次成本，拦截与失败同样计数
	count := int64(0)
	if s.counter != nil {
		c, err := s.counter.Incr(ctx, inv.UserID, int64(cost), now)
		if err != nil {
			// 计数器不可用时放行并告警，能力面不因额度后端故障而熔断
			zlog.Warn("budget counter unavailable", zap.String("user_id", inv.UserID), zap.Error(err))
		} else {
			count = c
		}
	}

	ent, err := s.GetEntitlement(ctx, inv.UserID)
	if err != nil {
		return nil, err
	}

	if def.Premium && !ent.PremiumActive(now) {
		s.record(ctx, inv, cost, entity.OutcomeForbidden, 0, "premium required")
		return nil, xerr.ErrCapabilityForbidden
	}

	limit := ent.BudgetLimit
	if limit <= 0 {
		limit = s.defaultBudget
	}
	if limit > 0 && count > int64(limit) {
		s.record(ctx, inv, cost, entity.OutcomeQuota, 0, "daily budget exhausted")
		return nil, xerr.ErrQuotaExceeded
	}

	cctx := ctx
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	started := time.Now()
	result, handlerErr := def.Handler(cctx, inv)
	elapsed := time.Since(started)

	if handlerErr != nil {
		zlog.Error("capability handler failed",
			zap.String("capability", name),
			zap.String("user_id", inv.UserID),
			zap.String("session_id", inv.SessionID),
			zap.Duration("elapsed", elapsed),
			zap.Error(handlerErr))
		s.record(ctx, inv, cost, entity.OutcomeHandlerError, elapsed.Milliseconds(), handlerErr.Error())
		return nil, xerr.ErrCapabilityFailed
	}

	zlog.Info("capability executed",
		zap.String("capability", name),
		zap.String("user_id", inv.UserID),
		zap.String("session_id", inv.SessionID),
		zap.Duration("elapsed", elapsed))
	s.record(ctx, inv, cost, entity.OutcomeOK, elapsed.Milliseconds(), "")
	if result == nil {
		result = &capability.Result{}
	}
	return result, nil
}

func (s *capabilityServiceImpl) GetEntitlement(ctx context.Context, userID string) (*entity.Entitlement, error) {
	if userID == "" {
		return nil, xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}
	ent, err := s.entitlementRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 无授权记录按免费档处理
			return &entity.Entitlement{UserID: userID, BudgetLimit: s.defaultBudget}, nil
		}
		zlog.Error(err.Error())
		return nil, xerr.ErrServerError
	}
	return ent, nil
}

func (s *capabilityServiceImpl) Entitle(ctx context.Context, ent *entity.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}
	if err := s.entitlementRepo.Upsert(ctx, ent); err != nil {
		zlog.Error(err.Error())
		return xerr.ErrServerError
	}
	zlog.Info("entitlement updated",
		zap.String("user_id", ent.UserID),
		zap.Bool("premium", ent.Premium),
		zap.Int("budget_limit", ent.BudgetLimit))
	return nil
}

func (s *capabilityServiceImpl) Usage(ctx context.Context, userID string, limit int) ([]entity.UsageRecord, error) {
	if userID == "" {
		return nil, xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}
	records, err := s.usageRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		zlog.Error(err.Error())
		return nil, xerr.ErrServerError
	}
	return records, nil
}

// record 写调用台账并排队审计事件，失败只告警不影响调用结果
func (s *capabilityServiceImpl) record(ctx context.Context, inv *capability.Invocation, cost int, outcome int, durationMs int64, errMsg string) {
	rec := &entity.UsageRecord{
		UserID:     inv.UserID,
		SessionID:  inv.SessionID,
		Capability: inv.Capability,
		Cost:       cost,
		Outcome:    outcome,
		DurationMs: durationMs,
		ErrMessage: errMsg,
		CreatedAt:  time.Now(),
	}
	if err := s.usageRepo.Record(ctx, rec); err != nil {
		zlog.Error("usage record write failed",
			zap.String("capability", inv.Capability),
			zap.String("user_id", inv.UserID),
			zap.Error(err))
	}

	if s.auditRepo == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"capability":  inv.Capability,
		"user_id":     inv.UserID,
		"session_id":  inv.SessionID,
		"channel":     inv.Channel,
		"cost":        cost,
		"outcome":     outcome,
		"duration_ms": durationMs,
		"error":       errMsg,
	})
	if err != nil {
		zlog.Warn("audit payload marshal failed", zap.Error(err))
		return
	}
	ev := &entity.AuditEvent{
		EventType:   auditEventCapabilityInvoked,
		UserID:      inv.UserID,
		DedupKey:    "cap-" + util.GenerateShortUUID(),
		PayloadJSON: string(payload),
	}
	if err := s.auditRepo.Enqueue(ctx, ev); err != nil {
		zlog.Warn("audit enqueue failed", zap.String("capability", inv.Capability), zap.Error(err))
	}
}
