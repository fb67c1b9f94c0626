package handler

import (
	"net/http"

	webhookAdapter "NotaLink/internal/modules/gateway/infrastructure/adapters/webhook"
	websocketAdapter "NotaLink/internal/modules/gateway/infrastructure/adapters/websocket"
	"NotaLink/pkg/util/myjwt"
	"NotaLink/pkg/zlog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// GatewayHandler 通道入站的 HTTP 面：webhook 回调与 websocket 握手。
// 两个适配器都允许为 nil（通道未启用时对应路由返回 404）。
type GatewayHandler struct {
	webhook *webhookAdapter.Adapter
	wss     *websocketAdapter.Adapter
}

func NewGatewayHandler(webhook *webhookAdapter.Adapter, wss *websocketAdapter.Adapter) *GatewayHandler {
	return &GatewayHandler{webhook: webhook, wss: wss}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// VerifyWebhook GET /gateway/webhook/:channel
// 云 API 式订阅校验：verify_token 对上了就原样回显 challenge
func (h *GatewayHandler) VerifyWebhook(c *gin.Context) {
	a := h.webhookFor(c.Param("channel"))
	if a == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")
	if mode != "subscribe" || !a.VerifyToken(token) {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, challenge)
}

// ReceiveWebhook POST /gateway/webhook/:channel
// 不走 jwt 中间件，靠适配器的 verify_token 挡未授权调用
func (h *GatewayHandler) ReceiveWebhook(c *gin.Context) {
	a := h.webhookFor(c.Param("channel"))
	if a == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	token := c.GetHeader("X-Verify-Token")
	if token == "" {
		token = c.Query("verify_token")
	}
	if !a.VerifyToken(token) {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	var payload webhookAdapter.InboundPayload
	if err := c.BindJSON(&payload); err != nil {
		zlog.Warn("webhook payload rejected", zap.Error(err))
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	a.HandleIncoming(&payload)
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// Connect GET /wss?token=...
// websocket 握手带不了 Authorization 头，token 走 URL 参数，这里手动校验
func (h *GatewayHandler) Connect(c *gin.Context) {
	if h.wss == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	token := c.Query("token")
	if token == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	claims, err := myjwt.ParseToken(token)
	if err != nil || claims == nil || claims.Uuid == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zlog.Error("websocket upgrade failed", zap.String("user_id", claims.Uuid), zap.Error(err))
		return
	}
	h.wss.ServeConn(claims.Uuid, conn)
}

func (h *GatewayHandler) webhookFor(name string) *webhookAdapter.Adapter {
	if h.webhook == nil || name != h.webhook.Name() {
		return nil
	}
	return h.webhook
}
