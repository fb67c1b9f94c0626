package entity

import (
	"time"
)

// 审计事件发布状态
const (
	AuditPending   = 0 // 待发布
	AuditPublished = 1 // 已发布
	AuditClaimed   = 2 // 已被 relay 认领
)

// AuditEvent 审计事件 outbox：调用台账落库后排队发布到 Kafka，
// 由 relay 异步投递，业务路径不直连 broker
type AuditEvent struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventType   string     `gorm:"column:event_type;type:varchar(64)"` // capability_invoked / task_executed 等
	UserID      string     `gorm:"column:user_id;index;type:varchar(64)"`
	DedupKey    string     `gorm:"column:dedup_key;type:varchar(128);uniqueIndex"` // 幂等键，兼作 Kafka 分区键
	PayloadJSON string     `gorm:"column:payload_json;type:text"`
	Status      int        `gorm:"column:status;default:0;index"`
	RetryCount  int        `gorm:"column:retry_count;default:0"`
	NextRetryAt time.Time  `gorm:"column:next_retry_at;index"`
	LastError   string     `gorm:"column:last_error;type:varchar(255)"`
	Partition   int        `gorm:"column:partition;default:0"`
	Offset      int64      `gorm:"column:offset;default:0"`
	PublishedAt *time.Time `gorm:"column:published_at"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_outbox"
}
