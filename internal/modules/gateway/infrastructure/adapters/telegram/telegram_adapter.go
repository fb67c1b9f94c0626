package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"NotaLink/internal/config"
	"NotaLink/internal/modules/gateway/domain/channel"
	"NotaLink/internal/modules/session/domain/entity"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const channelName = "telegram"

// Adapter Telegram 机器人通道，长轮询收消息
type Adapter struct {
	api     *tgbotapi.BotAPI
	handler channel.InboundHandler
}

func NewAdapter(conf config.GatewayTelegramConfig) (*Adapter, error) {
	api, err := tgbotapi.NewBotAPI(conf.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Adapter{api: api}, nil
}

func (a *Adapter) Name() string { return channelName }

func (a *Adapter) SetHandler(h channel.InboundHandler) { a.handler = h }

func (a *Adapter) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.api.GetUpdatesChan(u)
	zlog.Info("telegram adapter started", zap.String("bot", a.api.Self.UserName))

	go func() {
		<-ctx.Done()
		a.api.StopReceivingUpdates()
	}()

	go func() {
		for update := range updates {
			if update.Message == nil {
				continue
			}
			msg := a.toInbound(update.Message)
			if msg == nil || a.handler == nil {
				continue
			}
			a.handler(msg)
		}
	}()
	return nil
}

func (a *Adapter) Stop() {
	a.api.StopReceivingUpdates()
}

func (a *Adapter) Send(ctx context.Context, target channel.SendTarget, reply channel.OutboundReply) error {
	chatID, err := strconv.ParseInt(target.SenderID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram target %q is not a chat id", target.SenderID)
	}

	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if _, err := a.api.Send(msg); err != nil {
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) && tgErr.Code >= 400 && tgErr.Code < 500 {
			// 鉴权失败、对话不存在等，重试无意义
			return err
		}
		zlog.Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return xerr.ErrSendFailed
	}
	return nil
}

func (a *Adapter) toInbound(message *tgbotapi.Message) *channel.InboundMessage {
	if message.From == nil {
		return nil
	}

	text := message.Text
	if message.Caption != "" {
		text = message.Caption
	}

	msg := &channel.InboundMessage{
		UserID:     fmt.Sprintf("tg%d", message.From.ID),
		SenderID:   strconv.FormatInt(message.Chat.ID, 10),
		Text:       text,
		Metadata:   map[string]string{"username": message.From.UserName},
		ReceivedAt: message.Time(),
	}

	if len(message.Photo) > 0 {
		best := message.Photo[len(message.Photo)-1]
		msg.Attachments = append(msg.Attachments, entity.Attachment{
			Type: entity.AttachmentImage,
			URL:  a.fileURL(best.FileID),
		})
	}
	if message.Voice != nil {
		msg.Attachments = append(msg.Attachments, entity.Attachment{
			Type: entity.AttachmentAudio,
			URL:  a.fileURL(message.Voice.FileID),
			Mime: message.Voice.MimeType,
		})
	}
	if message.Audio != nil {
		msg.Attachments = append(msg.Attachments, entity.Attachment{
			Type: entity.AttachmentAudio,
			URL:  a.fileURL(message.Audio.FileID),
			Mime: message.Audio.MimeType,
		})
	}
	if message.Document != nil {
		msg.Attachments = append(msg.Attachments, entity.Attachment{
			Type: entity.AttachmentDocument,
			URL:  a.fileURL(message.Document.FileID),
			Mime: message.Document.MimeType,
		})
	}

	return msg
}

func (a *Adapter) fileURL(fileID string) string {
	url, err := a.api.GetFileDirectURL(fileID)
	if err != nil {
		zlog.Warn("resolve telegram file url failed", zap.String("file_id", fileID), zap.Error(err))
		return ""
	}
	return url
}
