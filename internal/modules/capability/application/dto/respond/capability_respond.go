package respond

import (
	"time"

	"NotaLink/internal/modules/capability/domain/capability"
	"NotaLink/internal/modules/capability/domain/entity"
)

// CapabilityListRespond 能力目录响应
type CapabilityListRespond struct {
	Capabilities []capability.Descriptor `json:"capabilities"` // 当前用户可见的能力
	Total        int                     `json:"total"`
}

// UsageItem 单条调用台账
type UsageItem struct {
	Capability string    `json:"capability"`
	SessionID  string    `json:"session_id,omitempty"`
	Cost       int       `json:"cost"`
	Outcome    int       `json:"outcome"` // 0=ok 1=handler_error 2=forbidden 3=quota
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// UsageListRespond 调用台账响应
type UsageListRespond struct {
	Records []UsageItem `json:"records"`
	Total   int         `json:"total"`
}

// FromUsage 实体转台账项
func FromUsage(rec *entity.UsageRecord) UsageItem {
	return UsageItem{
		Capability: rec.Capability,
		SessionID:  rec.SessionID,
		Cost:       rec.Cost,
		Outcome:    rec.Outcome,
		DurationMs: rec.DurationMs,
		Error:      rec.ErrMessage,
		CreatedAt:  rec.CreatedAt,
	}
}
