package entity

import (
	"time"
)

// Entitlement 用户能力授权：付费标记与每日调用额度
type Entitlement struct {
	UserID      string     `gorm:"column:user_id;primaryKey;type:varchar(64)"`
	Premium     bool       `gorm:"column:premium;default:false"`   // 是否开通付费能力
	BudgetLimit int        `gorm:"column:budget_limit;default:0"`  // 每日调用额度，0 表示用全局默认
	ExpiresAt   *time.Time `gorm:"column:expires_at"`              // 付费到期时间，空表示不过期
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (Entitlement) TableName() string {
	return "capability_entitlement"
}

// PremiumActive 判断付费授权当前是否有效
func (e *Entitlement) PremiumActive(now time.Time) bool {
	if e == nil || !e.Premium {
		return false
	}
	if e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
		return false
	}
	return true
}
