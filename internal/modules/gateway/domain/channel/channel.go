package channel

import (
	"context"
	"time"

	"NotaLink/internal/modules/session/domain/entity"
)

// InboundMessage 通道适配器归一化后的入站消息
type InboundMessage struct {
	Channel     string              // 通道名，与会话的 channel 一致
	UserID      string              // 适配器解析出的统一用户标识
	SenderID    string              // 通道原生的回信地址（如 Telegram chat id）
	Text        string              // 正文，语音消息转写后也写入这里
	Attachments []entity.Attachment // 附件引用，封闭分类
	Metadata    map[string]string   // 通道原生的附加信息
	ReceivedAt  time.Time
}

// OutboundReply 出站回复
type OutboundReply struct {
	Text string
}

// SendTarget 出站路由。通道原生标识放在 SenderID/Metadata 中。
type SendTarget struct {
	UserID   string
	SenderID string
	Metadata map[string]string
}

// InboundHandler 入站回调，由网关服务注入
type InboundHandler func(msg *InboundMessage)

// ChannelAdapter 消息通道适配器。每个实现自理连接生命周期：
// Start 启动接收（阻塞的轮询或监听放在内部 goroutine），Stop 收尾。
// Send 失败时返回 xerr.ErrSendFailed 表示瞬时故障（可按策略重试），
// 其余错误视为永久失败，调用方立即上抛。
type ChannelAdapter interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
	SetHandler(h InboundHandler)
	Send(ctx context.Context, target SendTarget, reply OutboundReply) error
}
