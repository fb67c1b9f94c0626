package terminal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"NotaLink/internal/config"
	"NotaLink/internal/modules/gateway/domain/channel"
	"NotaLink/pkg/zlog"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

const channelName = "terminal"

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	replyLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)
)

// Adapter 终端通道，标准输入读行、标准输出渲染回复，主要用于本地调试
type Adapter struct {
	userID   string
	handler  channel.InboundHandler
	renderer *glamour.TermRenderer
	cancel   context.CancelFunc
}

func NewAdapter(conf config.GatewayTerminalConfig) *Adapter {
	userID := conf.UserID
	if userID == "" {
		userID = "local"
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		zlog.Warn("terminal renderer init failed, falling back to plain text", zap.Error(err))
	}

	return &Adapter{userID: userID, renderer: renderer}
}

func (a *Adapter) Name() string { return channelName }

func (a *Adapter) SetHandler(h channel.InboundHandler) { a.handler = h }

func (a *Adapter) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	go a.readLoop(ctx)
	fmt.Println(promptStyle.Render("notalink terminal ready, type a message:"))
	return nil
}

func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

// readLoop 标准输入无法中断阻塞读，退出时靠进程结束兜底
func (a *Adapter) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || a.handler == nil {
			continue
		}

		a.handler(&channel.InboundMessage{
			UserID:     a.userID,
			SenderID:   "local",
			Text:       line,
			ReceivedAt: time.Now(),
		})
	}

	if err := scanner.Err(); err != nil {
		zlog.Warn("terminal input closed", zap.Error(err))
	}
}

func (a *Adapter) Send(ctx context.Context, target channel.SendTarget, reply channel.OutboundReply) error {
	body := reply.Text
	if a.renderer != nil {
		if rendered, err := a.renderer.Render(reply.Text); err == nil {
			body = rendered
		}
	}

	fmt.Println(replyLabelStyle.Render("notalink:"))
	fmt.Println(body)
	return nil
}
