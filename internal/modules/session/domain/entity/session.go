package entity

import (
	"time"
)

// 会话状态
const (
	StatusActive = 0 // 活跃
	StatusPaused = 1 // 暂停
	StatusEnded  = 2 // 已结束（终态，仅可删除）
)

// Session 一个用户在一个通道上的持续会话上下文
type Session struct {
	SessionID    string            `gorm:"column:session_id;primaryKey;type:varchar(64)"`
	UserID       string            `gorm:"column:user_id;index:idx_user_channel;type:varchar(64)"`
	Channel      string            `gorm:"column:channel;index:idx_user_channel;type:varchar(32)"`
	Status       int               `gorm:"column:status;default:0;index"`
	Notebooks    []string          `gorm:"column:notebooks;serializer:json;type:text"`    // 当前绑定的笔记本
	Integrations []string          `gorm:"column:integrations;serializer:json;type:text"` // 启用的外部集成
	Vars         map[string]string `gorm:"column:vars;serializer:json;type:text"`         // 会话级变量
	CurrentTask  string            `gorm:"column:current_task;type:varchar(128)"`         // 进行中的多步任务引用
	StartedAt    time.Time         `gorm:"column:started_at"`
	LastActiveAt time.Time         `gorm:"column:last_active_at;index"`
	EndedAt      *time.Time        `gorm:"column:ended_at"`
}

func (Session) TableName() string {
	return "assistant_session"
}

func (s *Session) IsEnded() bool {
	return s.Status == StatusEnded
}
