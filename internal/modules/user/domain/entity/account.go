package entity

import "time"

// Account 账户实体。NotaLink 的通道身份（telegram chat、websocket 连接、
// 终端会话）都归到一个账户 uuid 下，jwt 里带的就是这个 uuid。
type Account struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Uuid      string    `gorm:"uniqueIndex;type:varchar(64)" json:"uuid"`
	Username  string    `gorm:"uniqueIndex;type:varchar(64)" json:"username"`
	Nickname  string    `gorm:"type:varchar(64)" json:"nickname"`
	Password  string    `gorm:"type:varchar(128)" json:"-"`
	Status    int       `gorm:"default:0" json:"status"` // 0 正常 1 停用
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
