package respond

import (
	"time"

	"NotaLink/internal/modules/scheduler/domain/entity"
)

// TaskItem 任务信息
type TaskItem struct {
	TaskID       int64      `json:"task_id"`                 // 任务ID
	Title        string     `json:"title"`                   // 任务名
	TriggerType  int        `json:"trigger_type"`            // 0=once 1=cron 2=interval
	TriggerAt    *time.Time `json:"trigger_at,omitempty"`    // once 的触发时刻
	CronExpr     string     `json:"cron_expr,omitempty"`     // cron 表达式
	EverySeconds int64      `json:"every_seconds,omitempty"` // interval 间隔
	ActionType   int        `json:"action_type"`             // 动作类型
	Channel      string     `json:"channel,omitempty"`       // 来源通道
	Enabled      bool       `json:"enabled"`                 // 是否启用
	NextRunAt    time.Time  `json:"next_run_at"`             // 下次触发
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`   // 上次触发
	CreatedAt    time.Time  `json:"created_at"`              // 创建时间
}

// TaskListRespond 任务列表响应
type TaskListRespond struct {
	Tasks []TaskItem `json:"tasks"` // 按下次触发时间正序
	Total int        `json:"total"` // 总数
}

// ParseRejectionRespond 低置信度拒绝响应
type ParseRejectionRespond struct {
	Understood bool     `json:"understood"` // 恒为 false
	Confidence float64  `json:"confidence"` // 解析置信度
	Examples   []string `json:"examples"`   // 支持的示例话术
}

// TaskCreateRespond 建任务响应
type TaskCreateRespond struct {
	Understood bool     `json:"understood"` // 是否解析成功
	Task       TaskItem `json:"task"`       // 创建的任务
}

// TaskExecutionItem 单次执行记录
type TaskExecutionItem struct {
	StartedAt  time.Time `json:"started_at"`  // 开始时间
	FinishedAt time.Time `json:"finished_at"` // 结束时间
	Outcome    int       `json:"outcome"`     // 0=success 1=failure
	Summary    string    `json:"summary"`     // 结果摘要
}

// TaskExecutionsRespond 执行记录响应
type TaskExecutionsRespond struct {
	TaskID     int64               `json:"task_id"`    // 任务ID
	Executions []TaskExecutionItem `json:"executions"` // 按时间倒序
	Total      int                 `json:"total"`      // 返回条数
}

// FromTask 实体转响应项
func FromTask(task *entity.ScheduledTask) TaskItem {
	return TaskItem{
		TaskID:       task.ID,
		Title:        task.Title,
		TriggerType:  task.TriggerType,
		TriggerAt:    task.TriggerAt,
		CronExpr:     task.CronExpr,
		EverySeconds: task.EverySeconds,
		ActionType:   task.ActionType,
		Channel:      task.Channel,
		Enabled:      task.Enabled,
		NextRunAt:    task.NextRunAt,
		LastRunAt:    task.LastRunAt,
		CreatedAt:    task.CreatedAt,
	}
}
