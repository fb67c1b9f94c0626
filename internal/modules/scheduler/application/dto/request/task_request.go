package request

// CreateTaskRequest 建任务请求。text 非空时走自然语言解析，
// 其余结构化字段被忽略；text 为空时按结构化字段建任务。
type CreateTaskRequest struct {
	Text         string `json:"text"`          // 原始话术（可空）
	Title        string `json:"title"`         // 任务名
	TriggerType  int    `json:"trigger_type"`  // 0=once 1=cron 2=interval
	TriggerAt    string `json:"trigger_at"`    // once 的触发时刻，RFC3339
	CronExpr     string `json:"cron_expr"`     // cron 的表达式
	EverySeconds int64  `json:"every_seconds"` // interval 的间隔
	ActionType   int    `json:"action_type"`   // 0=send_message 1=ai_prompt 2=webhook 3=command
	Message      string `json:"message"`       // send_message 文本
	Prompt       string `json:"prompt"`        // ai_prompt 提示词
	URL          string `json:"url"`           // webhook 地址
	Method       string `json:"method"`        // webhook 方法，默认 POST
	Body         string `json:"body"`          // webhook 请求体
	Command      string `json:"command"`       // command 命令行
	Channel      string `json:"channel"`       // 创建来源通道（可空）
}

// TaskListRequest 任务列表请求
type TaskListRequest struct {
	EnabledOnly bool `json:"enabled_only"` // 只看启用中的
}

// TaskActionRequest 单任务操作请求（cancel/enable/delete）
type TaskActionRequest struct {
	TaskID int64 `json:"task_id"` // 任务ID（必填）
}

// TaskExecutionsRequest 执行记录请求
type TaskExecutionsRequest struct {
	TaskID int64 `json:"task_id"` // 任务ID（必填）
	Limit  int   `json:"limit"`   // 返回条数（默认 20）
}
