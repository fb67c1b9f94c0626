package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"NotaLink/internal/modules/gateway/domain/channel"
	"NotaLink/pkg/ws"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const channelName = "websocket"

// inboundFrame 客户端上行帧，纯文本帧也接受
type inboundFrame struct {
	Text string `json:"text"`
}

// outboundFrame 服务端下行帧
type outboundFrame struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	SentAt int64  `json:"sentAt"`
}

// Adapter WebSocket 通道，连接注册进 Hub，收帧转入站消息
type Adapter struct {
	hub     *ws.Hub
	handler channel.InboundHandler
}

func NewAdapter() *Adapter {
	return &Adapter{hub: ws.NewHub()}
}

func (a *Adapter) Name() string { return channelName }

func (a *Adapter) SetHandler(h channel.InboundHandler) { a.handler = h }

// Start 连接由 HTTP 服务升级后经 ServeConn 进入，这里无需监听
func (a *Adapter) Start(ctx context.Context) error { return nil }

func (a *Adapter) Stop() {}

// ServeConn 接管一条已升级的连接：注册、起写协程、阻塞读循环直到连接关闭
func (a *Adapter) ServeConn(userID string, conn *websocket.Conn) {
	if userID == "" || conn == nil {
		return
	}

	client := ws.NewClient(userID, conn)
	a.hub.Register(client)
	go client.WritePump()
	defer a.hub.Unregister(client)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Warn("websocket read failed", zap.String("userID", userID), zap.Error(err))
			}
			return
		}
		a.dispatch(userID, payload)
	}
}

func (a *Adapter) dispatch(userID string, payload []byte) {
	if a.handler == nil {
		return
	}

	var frame inboundFrame
	text := ""
	if err := json.Unmarshal(payload, &frame); err == nil && frame.Text != "" {
		text = frame.Text
	} else {
		text = string(payload)
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	a.handler(&channel.InboundMessage{
		UserID:     userID,
		SenderID:   userID,
		Text:       text,
		ReceivedAt: time.Now(),
	})
}

// Send 用户无在线连接视为暂时不可达，交给上层重试
func (a *Adapter) Send(ctx context.Context, target channel.SendTarget, reply channel.OutboundReply) error {
	frame, err := json.Marshal(outboundFrame{
		Type:   "reply",
		Text:   reply.Text,
		SentAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	if !a.hub.Send(target.UserID, frame) {
		return xerr.ErrSendFailed
	}
	return nil
}
