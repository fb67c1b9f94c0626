package entity

import (
	"time"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// 附件类型（封闭分类：文本即消息正文，其余为附件）
const (
	AttachmentImage    = "image"
	AttachmentAudio    = "audio"
	AttachmentDocument = "document"
)

// Attachment 消息附件引用
type Attachment struct {
	Type       string `json:"type"`
	URL        string `json:"url,omitempty"`
	Mime       string `json:"mime,omitempty"`
	Transcript string `json:"transcript,omitempty"` // 语音转写结果，转写失败时为 "[audio]" 占位
}

// SessionMessage 会话历史中的一条消息
type SessionMessage struct {
	ID            int64        `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID     string       `gorm:"column:session_id;index;type:varchar(64)"`
	Role          string       `gorm:"column:role;type:varchar(16)"`
	Content       string       `gorm:"column:content;type:text"`
	Attachments   []Attachment `gorm:"column:attachments;serializer:json;type:text"`
	OriginChannel string       `gorm:"column:origin_channel;type:varchar(32)"`
	SentAt        time.Time    `gorm:"column:sent_at"`
}

func (SessionMessage) TableName() string {
	return "assistant_message"
}
