package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"NotaLink/internal/config"
	"NotaLink/internal/modules/gateway/domain/channel"
	"NotaLink/internal/modules/session/domain/entity"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"go.uber.org/zap"
)

const channelName = "webhook"

// InboundPayload 云 API 风格的入站消息体
type InboundPayload struct {
	UserID   string `json:"userId"`
	From     string `json:"from"`
	Text     string `json:"text"`
	AudioURL string `json:"audioUrl,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// outboundPayload 回调消息体
type outboundPayload struct {
	UserID string `json:"userId"`
	To     string `json:"to"`
	Text   string `json:"text"`
	SentAt int64  `json:"sentAt"`
}

// Adapter Webhook 通道：入站由 HTTP 接口转交，出站回调到配置的地址，
// 请求体用共享令牌做 HMAC-SHA256 签名
type Adapter struct {
	verifyToken string
	callbackURL string
	handler     channel.InboundHandler
	client      *http.Client
}

func NewAdapter(conf config.GatewayWebhookConfig) *Adapter {
	return &Adapter{
		verifyToken: conf.VerifyToken,
		callbackURL: conf.CallbackURL,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *Adapter) Name() string { return channelName }

func (a *Adapter) SetHandler(h channel.InboundHandler) { a.handler = h }

// Start 无需自建监听，入站复用主 HTTP 服务
func (a *Adapter) Start(ctx context.Context) error { return nil }

func (a *Adapter) Stop() {}

// VerifyToken 入站校验，供 HTTP 接口使用
func (a *Adapter) VerifyToken(token string) bool {
	return a.verifyToken != "" && token == a.verifyToken
}

// HandleIncoming 将入站消息体归一化后交给网关
func (a *Adapter) HandleIncoming(p *InboundPayload) {
	if p == nil || a.handler == nil {
		return
	}

	msg := &channel.InboundMessage{
		UserID:     p.UserID,
		SenderID:   p.From,
		Text:       p.Text,
		ReceivedAt: time.Now(),
	}
	if p.AudioURL != "" {
		msg.Attachments = append(msg.Attachments, entity.Attachment{
			Type: entity.AttachmentAudio,
			URL:  p.AudioURL,
		})
	}
	if p.ImageURL != "" {
		msg.Attachments = append(msg.Attachments, entity.Attachment{
			Type: entity.AttachmentImage,
			URL:  p.ImageURL,
		})
	}

	a.handler(msg)
}

func (a *Adapter) Send(ctx context.Context, target channel.SendTarget, reply channel.OutboundReply) error {
	if a.callbackURL == "" {
		return fmt.Errorf("webhook callback url not configured")
	}

	body, err := json.Marshal(outboundPayload{
		UserID: target.UserID,
		To:     target.SenderID,
		Text:   reply.Text,
		SentAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.callbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature-256", "sha256="+a.sign(body))

	resp, err := a.client.Do(req)
	if err != nil {
		zlog.Warn("webhook callback failed", zap.String("url", a.callbackURL), zap.Error(err))
		return xerr.ErrSendFailed
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= 500:
		zlog.Warn("webhook callback rejected, retryable",
			zap.String("url", a.callbackURL), zap.Int("status", resp.StatusCode))
		return xerr.ErrSendFailed
	default:
		return fmt.Errorf("webhook callback rejected: status %d", resp.StatusCode)
	}
}

func (a *Adapter) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(a.verifyToken))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
