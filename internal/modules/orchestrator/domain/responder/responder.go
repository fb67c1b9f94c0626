package responder

import (
	"context"

	"NotaLink/internal/modules/capability/domain/capability"
)

// 对话角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message 一条送往 Responder 的对话消息。
// assistant 消息可携带工具调用请求，tool 消息通过 ToolCallID 回应对应的调用。
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string // tool 消息对应的能力名
}

// ToolCall Responder 请求执行的一次能力调用
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Request 单次 Responder 往返的输入
type Request struct {
	System   string
	Messages []Message
	Tools    []capability.Descriptor // 本轮可供调用的能力目录，空表示禁用工具
}

// Result Responder 的回复：最终文本，或一批待执行的能力调用
type Result struct {
	Text      string
	ToolCalls []ToolCall
}

// Responder 外部应答方（大模型）端口。
// 实现方不保证终止：调用方必须自行限定调用次数与超时。
type Responder interface {
	Respond(ctx context.Context, req *Request) (*Result, error)
}
