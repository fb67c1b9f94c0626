package request

// UsageListRequest 调用台账查询请求
type UsageListRequest struct {
	Limit int `json:"limit"` // 返回条数（默认50）
}

// EntitleRequest 授权设置请求
type EntitleRequest struct {
	Premium     bool   `json:"premium"`      // 是否开通付费能力
	BudgetLimit int    `json:"budget_limit"` // 每日额度，0 用全局默认
	ExpiresAt   string `json:"expires_at"`   // RFC3339 到期时间，空表示不过期
}

// CredentialSetRequest 凭证写入请求
type CredentialSetRequest struct {
	Provider string `json:"provider"` // 服务商标识（必填）
	Secret   string `json:"secret"`   // 明文凭证，服务端加密存储（必填）
}

// CredentialDeleteRequest 凭证删除请求
type CredentialDeleteRequest struct {
	Provider string `json:"provider"` // 服务商标识（必填）
}
