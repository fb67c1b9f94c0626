package capability

import "context"

// 参数类型
const (
	ParamString  = "string"
	ParamNumber  = "number"
	ParamBoolean = "boolean"
)

// ParamSpec 能力参数声明，注册后转换为模型工具参数与 MCP inputSchema
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// HandlerFunc 能力处理函数。框架负责额度与权限检查，处理函数只关心业务本身。
type HandlerFunc func(ctx context.Context, inv *Invocation) (*Result, error)

// Definition 能力定义，启动时注册
type Definition struct {
	Name        string
	Description string
	Params      []ParamSpec
	Premium     bool // 仅付费用户可用
	Cost        int  // 单次调用消耗的额度单位，0 按 1 计
	Handler     HandlerFunc
}

// Descriptor 能力目录项（对外列表视图，不含处理函数）
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
	Premium     bool        `json:"premium"`
	Cost        int         `json:"cost"`
}

// Invocation 一次能力调用的输入
type Invocation struct {
	UserID     string
	SessionID  string
	Channel    string
	Capability string
	Args       map[string]interface{}
}

// Result 能力调用结果
type Result struct {
	Content string      `json:"content"`        // 文本结果，回注到对话
	Data    interface{} `json:"data,omitempty"` // 结构化数据（可选）
}

func (d *Definition) Descriptor() Descriptor {
	return Descriptor{
		Name:        d.Name,
		Description: d.Description,
		Params:      d.Params,
		Premium:     d.Premium,
		Cost:        d.UnitCost(),
	}
}

// UnitCost 返回归一后的调用成本，未声明按 1 计
func (d *Definition) UnitCost() int {
	if d.Cost <= 0 {
		return 1
	}
	return d.Cost
}

// StringArg 读取字符串参数，缺失或类型不符返回空串
func (inv *Invocation) StringArg(key string) string {
	if inv == nil || inv.Args == nil {
		return ""
	}
	v, _ := inv.Args[key].(string)
	return v
}

// NumberArg 读取数值参数（JSON 数值解码为 float64）
func (inv *Invocation) NumberArg(key string) (float64, bool) {
	if inv == nil || inv.Args == nil {
		return 0, false
	}
	v, ok := inv.Args[key].(float64)
	return v, ok
}

// BoolArg 读取布尔参数
func (inv *Invocation) BoolArg(key string) bool {
	if inv == nil || inv.Args == nil {
		return false
	}
	v, _ := inv.Args[key].(bool)
	return v
}
