package respond

// TokenRespond 登录结果
type TokenRespond struct {
	Token    string `json:"token"`
	Uuid     string `json:"uuid"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Created  bool   `json:"created"` // 本次请求是否新建了账户
}
