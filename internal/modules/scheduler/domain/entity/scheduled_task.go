package entity

import (
	"time"
)

// 触发类型
const (
	TriggerOnce     = 0 // 一次性绝对时间
	TriggerCron     = 1 // 日历表达式（标准 5 段 cron）
	TriggerInterval = 2 // 固定间隔
)

// 动作类型
const (
	ActionSendMessage = 0 // 直接发送文本
	ActionAIPrompt    = 1 // 走 Responder 生成后发送
	ActionWebhook     = 2 // 出站 HTTP 调用
	ActionCommand     = 3 // 本地命令，默认禁用，需白名单
)

// ScheduledTask 定时任务。一次性任务触发后置为禁用而不是删除，
// 保留执行台账；删除只能由属主显式发起。
type ScheduledTask struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        string     `gorm:"column:user_id;index;type:varchar(64)"`
	Title         string     `gorm:"column:title;type:varchar(255)"`
	TriggerType   int        `gorm:"column:trigger_type;default:0"`
	TriggerAt     *time.Time `gorm:"column:trigger_at"`                  // TriggerOnce 的触发时刻
	CronExpr      string     `gorm:"column:cron_expr;type:varchar(128)"` // TriggerCron 的表达式
	EverySeconds  int64      `gorm:"column:every_seconds;default:0"`     // TriggerInterval 的间隔
	ActionType    int        `gorm:"column:action_type;default:0"`
	ActionPayload string     `gorm:"column:action_payload;type:text"` // JSON，按动作类型取字段
	Channel       string     `gorm:"column:channel;type:varchar(32)"` // 创建来源通道，作为投递兜底
	Enabled       bool       `gorm:"column:enabled;default:true"`
	NextRunAt     time.Time  `gorm:"column:next_run_at;index"`
	LastRunAt     *time.Time `gorm:"column:last_run_at"`
	ClaimOwner    string     `gorm:"column:claim_owner;type:varchar(64);default:''"` // 当前认领工作进程，空表示未认领
	ClaimedAt     *time.Time `gorm:"column:claimed_at"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

func (ScheduledTask) TableName() string {
	return "scheduled_task"
}

// ActionPayloadBody ActionPayload 的 JSON 结构，字段按动作类型取用
type ActionPayloadBody struct {
	Message string `json:"message,omitempty"` // send_message
	Prompt  string `json:"prompt,omitempty"`  // ai_prompt
	URL     string `json:"url,omitempty"`     // webhook
	Method  string `json:"method,omitempty"`  // webhook，默认 POST
	Body    string `json:"body,omitempty"`    // webhook 请求体
	Command string `json:"command,omitempty"` // command，空格分隔
}
