package xerr

import "fmt"

// CodeError 自定义错误结构
type CodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error 实现 error 接口
func (e *CodeError) Error() string {
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

// Is 支持 errors.Is 按 code+message 匹配预定义错误
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New 创建新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Message: msg}
}

// 常用通用错误码
const (
	OK                  = 200
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	Conflict            = 409
	TooManyRequests     = 429
	InternalServerError = 500
	BadGateway          = 502
	ServiceUnavailable  = 503
)

// 常用预定义错误
var (
	ErrSuccess     = New(OK, "Success")
	ErrServerError = New(InternalServerError, "系统错误，请联系工作人员")
	ErrParam       = New(BadRequest, "参数错误")

	// 会话类
	ErrSessionNotFound = New(NotFound, "会话不存在")
	ErrSessionEnded    = New(Conflict, "会话已结束，请重新发起会话")

	// 能力类
	ErrCapabilityNotFound  = New(NotFound, "能力不存在")
	ErrCapabilityForbidden = New(Forbidden, "该能力需要高级版权限")
	ErrQuotaExceeded       = New(TooManyRequests, "今日能力调用额度已用完")
	ErrCapabilityFailed    = New(BadGateway, "能力执行失败")

	// 定时任务类
	ErrTaskNotFound = New(NotFound, "定时任务不存在")
	ErrTaskDisabled = New(Conflict, "定时任务已停用")

	// 通道类
	ErrChannelNotFound = New(NotFound, "消息通道不存在")
	ErrSendFailed      = New(ServiceUnavailable, "消息发送失败，请稍后重试")

	// 账户类
	ErrAccountNotFound = New(NotFound, "账户不存在")
	ErrBadCredentials  = New(Unauthorized, "用户名或密码错误")
)
