package speech

import (
	"context"

	"NotaLink/internal/modules/session/domain/entity"
)

// Transcriber 语音转写协作方。转写失败时调用方以 "[audio]" 占位，
// 消息本身照常流转，不因转写失败而丢弃。
type Transcriber interface {
	Transcribe(ctx context.Context, att *entity.Attachment) (string, error)
}
