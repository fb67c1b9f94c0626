package service

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"NotaLink/internal/modules/gateway/domain/channel"
	"NotaLink/internal/modules/gateway/domain/speech"
	orchestratorService "NotaLink/internal/modules/orchestrator/application/service"
	sessionService "NotaLink/internal/modules/session/application/service"
	"NotaLink/internal/modules/session/domain/entity"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"go.uber.org/zap"
)

// 会话变量：最近一次入站消息的通道回信地址
const routeVar = "route"

// 转写失败时附件与正文使用的占位文本
const audioPlaceholder = "[audio]"

// 瞬时发送失败的重试次数与首次退避
const (
	sendRetries     = 2
	sendBackoffBase = 200 * time.Millisecond
)

type GatewayService interface {
	// Register 注册通道适配器，仅限启动期调用；通道重名返回错误
	Register(adapter channel.ChannelAdapter) error
	// HandleInbound 处理一条归一化入站消息：转写语音、落会话、
	// 交编排器产出回复并送回原通道
	HandleInbound(ctx context.Context, msg *channel.InboundMessage) error
	// Send 把文本送往会话的来源通道。瞬时故障重试两次，
	// 发送成功后把助手消息写入会话历史（尽力而为的至少一次语义）。
	Send(ctx context.Context, sess *entity.Session, text string) error
	Channels() []string
	// StartAll / StopAll 管理所有适配器的生命周期
	StartAll(ctx context.Context) error
	StopAll()
}

type gatewayServiceImpl struct {
	mu       sync.RWMutex
	adapters map[string]channel.ChannelAdapter

	sessions    sessionService.SessionService
	orch        orchestratorService.OrchestratorService
	transcriber speech.Transcriber // 可为 nil，表示未配置语音转写
}

func NewGatewayService(
	sessions sessionService.SessionService,
	orch orchestratorService.OrchestratorService,
	transcriber speech.Transcriber,
) GatewayService {
	return &gatewayServiceImpl{
		adapters:    make(map[string]channel.ChannelAdapter),
		sessions:    sessions,
		orch:        orch,
		transcriber: transcriber,
	}
}

func (s *gatewayServiceImpl) Register(adapter channel.ChannelAdapter) error {
	if adapter == nil || adapter.Name() == "" {
		return errors.New("adapter is nil or unnamed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := adapter.Name()
	if _, exists := s.adapters[name]; exists {
		return errors.New("channel already registered: " + name)
	}
	adapter.SetHandler(s.inboundHandler(name))
	s.adapters[name] = adapter
	zlog.Info("channel adapter registered", zap.String("channel", name))
	return nil
}

func (s *gatewayServiceImpl) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.adapters))
	for name := range s.adapters {
		out = append(out, name)
	}
	return out
}

func (s *gatewayServiceImpl) StartAll(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, a := range s.adapters {
		if err := a.Start(ctx); err != nil {
			return errors.New("start channel " + name + ": " + err.Error())
		}
	}
	return nil
}

func (s *gatewayServiceImpl) StopAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.adapters {
		a.Stop()
	}
}

// inboundHandler 适配器回调。适配器的接收循环不等待整轮处理，
// 每条消息独立 goroutine，同会话的顺序由编排器的会话队列保证。
func (s *gatewayServiceImpl) inboundHandler(name string) channel.InboundHandler {
	return func(msg *channel.InboundMessage) {
		if msg == nil {
			return
		}
		msg.Channel = name
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := s.HandleInbound(ctx, msg); err != nil {
				zlog.Error("inbound message handling failed",
					zap.String("channel", name),
					zap.String("user_id", msg.UserID),
					zap.Error(err))
			}
		}()
	}
}

func (s *gatewayServiceImpl) HandleInbound(ctx context.Context, msg *channel.InboundMessage) error {
	if msg == nil || msg.UserID == "" || msg.Channel == "" {
		return xerr.ErrParam
	}
	if strings.TrimSpace(msg.Text) == "" && len(msg.Attachments) == 0 {
		return nil
	}

	s.transcribeAudio(ctx, msg)

	sess, created, err := s.sessions.GetOrCreate(ctx, msg.UserID, msg.Channel)
	if err != nil {
		zlog.Error("get or create session failed",
			zap.String("user_id", msg.UserID), zap.String("channel", msg.Channel), zap.Error(err))
		return err
	}
	if created {
		zlog.Info("session opened by inbound message",
			zap.String("session_id", sess.SessionID), zap.String("channel", msg.Channel))
	}

	// 记录回信地址，定时任务等无入站上下文的发送依赖它
	if msg.SenderID != "" && sess.Vars[routeVar] != msg.SenderID {
		if err := s.sessions.SetVar(ctx, sess.SessionID, routeVar, msg.SenderID); err != nil {
			zlog.Warn("save route var failed", zap.String("session_id", sess.SessionID), zap.Error(err))
		}
	}

	if err := s.sessions.AppendMessage(ctx, sess.SessionID, &entity.SessionMessage{
		SessionID:     sess.SessionID,
		Role:          entity.RoleUser,
		Content:       msg.Text,
		Attachments:   msg.Attachments,
		OriginChannel: msg.Channel,
		SentAt:        msg.ReceivedAt,
	}); err != nil {
		zlog.Error("append inbound message failed",
			zap.String("session_id", sess.SessionID), zap.Error(err))
		return err
	}

	out, err := s.orch.HandleTurn(ctx, &orchestratorService.TurnInput{
		UserID:    msg.UserID,
		SessionID: sess.SessionID,
		Channel:   msg.Channel,
		Text:      msg.Text,
	})
	if err != nil {
		zlog.Error("turn orchestration failed",
			zap.String("session_id", sess.SessionID), zap.Error(err))
		return err
	}
	if out == nil || out.Reply == "" {
		return nil
	}

	target := channel.SendTarget{
		UserID:   msg.UserID,
		SenderID: msg.SenderID,
		Metadata: msg.Metadata,
	}
	return s.deliver(ctx, sess, target, out.Reply)
}

// transcribeAudio 逐个转写音频附件。任何失败都以占位文本兜底，
// 消息继续流转。正文为空时用第一段转写结果补上。
func (s *gatewayServiceImpl) transcribeAudio(ctx context.Context, msg *channel.InboundMessage) {
	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		if att.Type != entity.AttachmentAudio || att.Transcript != "" {
			continue
		}
		transcript := audioPlaceholder
		if s.transcriber != nil {
			text, err := s.transcriber.Transcribe(ctx, att)
			if err != nil {
				zlog.Warn("audio transcription failed",
					zap.String("channel", msg.Channel), zap.Error(err))
			} else if strings.TrimSpace(text) != "" {
				transcript = text
			}
		}
		att.Transcript = transcript
		if strings.TrimSpace(msg.Text) == "" {
			msg.Text = transcript
		}
	}
}

func (s *gatewayServiceImpl) Send(ctx context.Context, sess *entity.Session, text string) error {
	if sess == nil || text == "" {
		return xerr.ErrParam
	}
	target := channel.SendTarget{UserID: sess.UserID, SenderID: sess.Vars[routeVar]}
	if target.SenderID == "" {
		target.SenderID = sess.UserID
	}
	return s.deliver(ctx, sess, target, text)
}

func (s *gatewayServiceImpl) deliver(ctx context.Context, sess *entity.Session, target channel.SendTarget, text string) error {
	s.mu.RLock()
	adapter, ok := s.adapters[sess.Channel]
	s.mu.RUnlock()
	if !ok {
		return xerr.ErrChannelNotFound
	}

	if err := s.sendWithRetry(ctx, adapter, target, text); err != nil {
		zlog.Error("reply delivery failed",
			zap.String("session_id", sess.SessionID),
			zap.String("channel", sess.Channel),
			zap.Error(err))
		return err
	}

	// 只有送达成功的回复才进入会话历史
	if err := s.sessions.AppendMessage(ctx, sess.SessionID, &entity.SessionMessage{
		SessionID:     sess.SessionID,
		Role:          entity.RoleAssistant,
		Content:       text,
		OriginChannel: sess.Channel,
		SentAt:        time.Now(),
	}); err != nil {
		zlog.Warn("append assistant reply failed",
			zap.String("session_id", sess.SessionID), zap.Error(err))
	}
	return nil
}

func (s *gatewayServiceImpl) sendWithRetry(ctx context.Context, adapter channel.ChannelAdapter, target channel.SendTarget, text string) error {
	reply := channel.OutboundReply{Text: text}

	var err error
	for attempt := 0; ; attempt++ {
		err = adapter.Send(ctx, target, reply)
		if err == nil {
			return nil
		}
		if attempt >= sendRetries || !transientSendError(err) {
			return err
		}

		backoff := sendBackoffBase << attempt
		zlog.Warn("transient send failure, retrying",
			zap.String("channel", adapter.Name()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// transientSendError 判定是否属于可重试的瞬时传输故障
func transientSendError(err error) bool {
	if errors.Is(err, xerr.ErrSendFailed) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
