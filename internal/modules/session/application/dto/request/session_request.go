package request

// OpenSessionRequest 打开会话请求（同一用户+渠道幂等）
type OpenSessionRequest struct {
	Channel string `json:"channel"` // 渠道标识（必填）
}

// SessionListRequest 会话列表请求
type SessionListRequest struct {
	Status  *int   `json:"status"`  // 状态过滤（可空）
	Channel string `json:"channel"` // 渠道过滤（可空）
}

// SessionVarRequest 会话变量设置请求
type SessionVarRequest struct {
	SessionID string `json:"session_id"` // 会话ID（必填）
	Key       string `json:"key"`        // 变量名（必填）
	Value     string `json:"value"`      // 变量值
}

// SessionNotebookRequest 会话笔记本绑定请求
type SessionNotebookRequest struct {
	SessionID  string `json:"session_id"`  // 会话ID（必填）
	NotebookID string `json:"notebook_id"` // 笔记本ID（必填）
}

// SessionIntegrationRequest 会话集成开关请求
type SessionIntegrationRequest struct {
	SessionID string `json:"session_id"` // 会话ID（必填）
	Name      string `json:"name"`       // 集成名称（必填）
}

// SessionActionRequest 会话状态操作请求（pause/resume/end/delete）
type SessionActionRequest struct {
	SessionID string `json:"session_id"` // 会话ID（必填）
}

// SessionHistoryRequest 会话历史请求
type SessionHistoryRequest struct {
	SessionID string `json:"session_id"` // 会话ID（必填）
	Limit     int    `json:"limit"`      // 返回条数（默认取历史窗口上限）
}
