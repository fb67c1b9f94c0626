package entity

import (
	"time"
)

// Credential 第三方服务凭证，Secret 以密文存储
type Credential struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    string    `gorm:"column:user_id;uniqueIndex:idx_user_provider;type:varchar(64)"`
	Provider  string    `gorm:"column:provider;uniqueIndex:idx_user_provider;type:varchar(64)"` // openai/ark/webhook 等
	Secret    string    `gorm:"column:secret;type:text"`                                        // vault 加密后的密文
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Credential) TableName() string {
	return "capability_credential"
}
