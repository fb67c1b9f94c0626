package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	capabilityService "NotaLink/internal/modules/capability/application/service"
	"NotaLink/internal/modules/capability/domain/capability"
	"NotaLink/internal/modules/orchestrator/infrastructure/intent"
	"NotaLink/internal/modules/orchestrator/infrastructure/pipeline"
	sessionService "NotaLink/internal/modules/session/application/service"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"go.uber.org/zap"
)

// TurnInput 一次入站消息对应的编排输入
type TurnInput struct {
	UserID    string
	SessionID string
	Channel   string
	Text      string
}

// TurnOutput 编排结果
type TurnOutput struct {
	Reply     string
	ToolsUsed []string
	Direct    bool // 由确定性规则直接产生，未经过 Responder
	Fallback  bool
}

type OrchestratorService interface {
	// HandleTurn 处理一轮对话。同一会话内按到达顺序逐轮执行，
	// 不同会话并行；Responder 与能力调用期间不持有任何会话锁。
	HandleTurn(ctx context.Context, in *TurnInput) (*TurnOutput, error)
}

type orchestratorServiceImpl struct {
	dispatch *turnDispatcher
	rules    *intent.Matcher
	pipe     *pipeline.TurnPipeline
	caps     capabilityService.CapabilityService
	sessions sessionService.SessionService
}

// NewOrchestratorService rules 传 nil 表示关闭确定性意图规则
func NewOrchestratorService(
	rules *intent.Matcher,
	pipe *pipeline.TurnPipeline,
	caps capabilityService.CapabilityService,
	sessions sessionService.SessionService,
) OrchestratorService {
	return &orchestratorServiceImpl{
		dispatch: newTurnDispatcher(),
		rules:    rules,
		pipe:     pipe,
		caps:     caps,
		sessions: sessions,
	}
}

func (s *orchestratorServiceImpl) HandleTurn(ctx context.Context, in *TurnInput) (*TurnOutput, error) {
	if in == nil || in.SessionID == "" {
		return nil, xerr.ErrParam
	}

	var (
		out  *TurnOutput
		herr error
	)
	if err := s.dispatch.Do(ctx, in.SessionID, func() {
		out, herr = s.process(ctx, in)
	}); err != nil {
		return nil, err
	}
	return out, herr
}

func (s *orchestratorServiceImpl) process(ctx context.Context, in *TurnInput) (*TurnOutput, error) {
	if s.rules != nil {
		if m, ok := s.rules.Match(in.Text); ok {
			zlog.Info("turn matched intent rule",
				zap.String("session_id", in.SessionID),
				zap.String("rule", m.Rule.Name))
			return s.handleMatch(ctx, in, m)
		}
	}

	// 未配置模型时管线为空，只有固定指令可用
	if s.pipe == nil {
		zlog.Warn("turn pipeline unavailable", zap.String("session_id", in.SessionID))
		return &TurnOutput{
			Reply:    "The assistant model is not configured, so I can only handle fixed commands right now.",
			Fallback: true,
		}, nil
	}

	res, err := s.pipe.Execute(ctx, &pipeline.TurnRequest{
		UserID:    in.UserID,
		SessionID: in.SessionID,
		Channel:   in.Channel,
		Text:      in.Text,
	})
	if err != nil {
		zlog.Error("turn pipeline invoke failed",
			zap.String("session_id", in.SessionID), zap.Error(err))
		return nil, xerr.ErrServerError
	}
	if res.Err != nil {
		zlog.Error("turn pipeline failed",
			zap.String("session_id", in.SessionID), zap.Error(res.Err))
		return nil, xerr.ErrServerError
	}

	return &TurnOutput{
		Reply:     res.Reply,
		ToolsUsed: res.ToolsUsed,
		Fallback:  res.Fallback,
	}, nil
}

func (s *orchestratorServiceImpl) handleMatch(ctx context.Context, in *TurnInput, m *intent.Match) (*TurnOutput, error) {
	switch m.Rule.Action {
	case intent.ActionSessionControl:
		return s.handleSessionControl(ctx, in, m.Rule.Control)
	case intent.ActionListCapabilities:
		return s.handleCapabilityListing(ctx, in)
	default:
		return s.handleDirectCapability(ctx, in, m)
	}
}

func (s *orchestratorServiceImpl) handleDirectCapability(ctx context.Context, in *TurnInput, m *intent.Match) (*TurnOutput, error) {
	inv := &capability.Invocation{
		UserID:     in.UserID,
		SessionID:  in.SessionID,
		Channel:    in.Channel,
		Capability: m.Rule.Capability,
		Args:       m.Args,
	}
	res, err := s.caps.Execute(ctx, m.Rule.Capability, inv)
	if err != nil {
		return &TurnOutput{Reply: capabilityErrorReply(err), Direct: true}, nil
	}

	reply := res.Content
	if reply == "" {
		reply = "Done."
	}
	return &TurnOutput{Reply: reply, ToolsUsed: []string{m.Rule.Capability}, Direct: true}, nil
}

func (s *orchestratorServiceImpl) handleCapabilityListing(ctx context.Context, in *TurnInput) (*TurnOutput, error) {
	descs, err := s.caps.List(ctx, in.UserID)
	if err != nil {
		zlog.Error("turn capability listing failed",
			zap.String("user_id", in.UserID), zap.Error(err))
		return &TurnOutput{Reply: "I could not load the capability list right now. Please try again.", Direct: true}, nil
	}
	if len(descs) == 0 {
		return &TurnOutput{Reply: "No capabilities are available for your account yet.", Direct: true}, nil
	}

	var b strings.Builder
	b.WriteString("Here is what I can do:\n")
	for _, d := range descs {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	return &TurnOutput{Reply: strings.TrimRight(b.String(), "\n"), Direct: true}, nil
}

func (s *orchestratorServiceImpl) handleSessionControl(ctx context.Context, in *TurnInput, control string) (*TurnOutput, error) {
	var (
		err   error
		reply string
	)
	switch control {
	case intent.ControlPause:
		err = s.sessions.Pause(ctx, in.SessionID)
		reply = "Okay, pausing this conversation. Say \"resume\" whenever you want to pick it back up."
	case intent.ControlResume:
		err = s.sessions.Resume(ctx, in.SessionID)
		reply = "Welcome back, the conversation is active again."
	case intent.ControlEnd:
		err = s.sessions.End(ctx, in.SessionID)
		reply = "This conversation is now closed. Message me any time to start a new one."
	default:
		return nil, xerr.ErrParam
	}

	if err != nil {
		if errors.Is(err, xerr.ErrSessionEnded) {
			return &TurnOutput{Reply: "This conversation has already ended. Send a new message to start fresh.", Direct: true}, nil
		}
		zlog.Error("turn session control failed",
			zap.String("session_id", in.SessionID),
			zap.String("control", control),
			zap.Error(err))
		return nil, err
	}
	return &TurnOutput{Reply: reply, Direct: true}, nil
}

// capabilityErrorReply 把能力错误翻译成对用户友好的文案，不向用户暴露内部细节
func capabilityErrorReply(err error) string {
	switch {
	case errors.Is(err, xerr.ErrCapabilityForbidden):
		return "This capability requires a premium subscription."
	case errors.Is(err, xerr.ErrQuotaExceeded):
		return "You have reached today's usage limit for capabilities. Try again tomorrow."
	case errors.Is(err, xerr.ErrCapabilityNotFound):
		return "That capability is not available right now."
	default:
		return "Sorry, that did not work this time. Please try again."
	}
}
