package request

// TokenRequest 开发态登录请求。账户不存在时按该用户名自动建档。
type TokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Nickname string `json:"nickname"`
}
