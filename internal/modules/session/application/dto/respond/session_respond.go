package respond

import (
	"time"

	"NotaLink/internal/modules/session/domain/entity"
)

// SessionItem 会话信息
type SessionItem struct {
	SessionID    string            `json:"session_id"`             // 会话ID
	UserID       string            `json:"user_id"`                // 所属用户
	Channel      string            `json:"channel"`                // 接入渠道
	Status       int               `json:"status"`                 // 0=active 1=paused 2=ended
	Notebooks    []string          `json:"notebooks"`              // 绑定的笔记本
	Integrations []string          `json:"integrations"`           // 开启的集成
	Vars         map[string]string `json:"vars,omitempty"`         // 会话变量
	CurrentTask  string            `json:"current_task,omitempty"` // 进行中的任务描述
	StartedAt    time.Time         `json:"started_at"`             // 创建时间
	LastActiveAt time.Time         `json:"last_active_at"`         // 最后活跃时间
	EndedAt      *time.Time        `json:"ended_at,omitempty"`     // 结束时间
	Created      bool              `json:"created"`                // 本次请求是否新建
}

// SessionListRespond 会话列表响应
type SessionListRespond struct {
	Sessions []SessionItem `json:"sessions"` // 会话列表
	Total    int           `json:"total"`    // 总数
}

// SessionMessageItem 单条历史消息
type SessionMessageItem struct {
	Role          string              `json:"role"`                     // user/assistant/system/tool
	Content       string              `json:"content"`                  // 消息文本
	Attachments   []entity.Attachment `json:"attachments,omitempty"`    // 附件列表
	OriginChannel string              `json:"origin_channel,omitempty"` // 来源渠道
	SentAt        time.Time           `json:"sent_at"`                  // 发送时间
}

// SessionHistoryRespond 会话历史响应
type SessionHistoryRespond struct {
	SessionID string               `json:"session_id"` // 会话ID
	Messages  []SessionMessageItem `json:"messages"`   // 按时间正序
	Total     int                  `json:"total"`      // 返回条数
}

// FromSession 实体转响应项
func FromSession(sess *entity.Session, created bool) SessionItem {
	return SessionItem{
		SessionID:    sess.SessionID,
		UserID:       sess.UserID,
		Channel:      sess.Channel,
		Status:       sess.Status,
		Notebooks:    sess.Notebooks,
		Integrations: sess.Integrations,
		Vars:         sess.Vars,
		CurrentTask:  sess.CurrentTask,
		StartedAt:    sess.StartedAt,
		LastActiveAt: sess.LastActiveAt,
		EndedAt:      sess.EndedAt,
		Created:      created,
	}
}

// FromMessage 实体转历史消息项
func FromMessage(msg *entity.SessionMessage) SessionMessageItem {
	return SessionMessageItem{
		Role:          msg.Role,
		Content:       msg.Content,
		Attachments:   msg.Attachments,
		OriginChannel: msg.OriginChannel,
		SentAt:        msg.SentAt,
	}
}
