package entity

import (
	"time"
)

// 执行结果
const (
	ExecSuccess = 0
	ExecFailure = 1
)

// TaskExecution 执行台账，每次触发恰好一行，只追加
type TaskExecution struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TaskID     int64     `gorm:"column:task_id;index"`
	StartedAt  time.Time `gorm:"column:started_at"`
	FinishedAt time.Time `gorm:"column:finished_at"`
	Outcome    int       `gorm:"column:outcome;default:0"`
	Summary    string    `gorm:"column:summary;type:text"` // 成功时为动作摘要，失败时为原因
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (TaskExecution) TableName() string {
	return "task_execution"
}
