package entity

import (
	"time"
)

// 调用结果
const (
	OutcomeOK           = 0 // 成功
	OutcomeHandlerError = 1 // 处理函数失败
	OutcomeForbidden    = 2 // 权限不足被拦截
	OutcomeQuota        = 3 // 超出额度被拦截
)

// UsageRecord 能力调用台账，每次调用恰好一行
type UsageRecord struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID     string    `gorm:"column:user_id;index;type:varchar(64)"`
	SessionID  string    `gorm:"column:session_id;index;type:varchar(64)"`
	Capability string    `gorm:"column:capability;type:varchar(64)"`
	Cost       int       `gorm:"column:cost;default:1"` // 本次消耗的额度单位
	Outcome    int       `gorm:"column:outcome;default:0;index"`
	DurationMs int64     `gorm:"column:duration_ms;default:0"` // 处理函数耗时，拦截时为 0
	ErrMessage string    `gorm:"column:err_message;type:text"` // 失败原因
	CreatedAt  time.Time `gorm:"column:created_at;index"`
}

func (UsageRecord) TableName() string {
	return "capability_usage"
}
