package responder

import (
	"context"
	"encoding/json"
	"fmt"

	"NotaLink/internal/modules/capability/domain/capability"
	"NotaLink/internal/modules/orchestrator/domain/responder"
	"NotaLink/internal/modules/orchestrator/infrastructure/llm"
	"NotaLink/pkg/zlog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// einoResponder 将 Responder 端口对接到 eino 聊天模型
type einoResponder struct {
	chatModel model.BaseChatModel
	meta      llm.ChatModelMeta
}

func NewEinoResponder(chatModel model.BaseChatModel, meta llm.ChatModelMeta) (responder.Responder, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	return &einoResponder{chatModel: chatModel, meta: meta}, nil
}

func (r *einoResponder) Respond(ctx context.Context, req *responder.Request) (*responder.Result, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}

	msgs := make([]*schema.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	for i := range req.Messages {
		msgs = append(msgs, toSchemaMessage(&req.Messages[i]))
	}

	opts := []model.Option{}
	if len(req.Tools) > 0 {
		infos := toToolInfos(req.Tools)
		if len(infos) > 0 {
			opts = append(opts, model.WithTools(infos))
		}
	}

	resp, err := r.chatModel.Generate(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}

	result := &responder.Result{Text: resp.Content}
	for _, tc := range resp.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, responder.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: parseToolArgs(tc.Function.Arguments),
		})
	}

	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		usage := resp.ResponseMeta.Usage
		zlog.Info("responder round trip",
			zap.String("provider", r.meta.Provider),
			zap.String("model", r.meta.Model),
			zap.Int("tool_calls", len(resp.ToolCalls)),
			zap.Int("prompt_tokens", usage.PromptTokens),
			zap.Int("answer_tokens", usage.CompletionTokens),
			zap.Int("total_tokens", usage.TotalTokens))
	}

	return result, nil
}

func toSchemaMessage(m *responder.Message) *schema.Message {
	switch m.Role {
	case responder.RoleAssistant:
		out := &schema.Message{Role: schema.Assistant, Content: m.Content}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Args)
			if err != nil {
				args = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
				ID: tc.ID,
				Function: schema.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		return out
	case responder.RoleTool:
		return &schema.Message{Role: schema.Tool, Content: m.Content, ToolCallID: m.ToolCallID}
	case responder.RoleSystem:
		return schema.SystemMessage(m.Content)
	default:
		return schema.UserMessage(m.Content)
	}
}

func toToolInfos(descs []capability.Descriptor) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(descs))
	for _, d := range descs {
		params := make(map[string]*schema.ParameterInfo, len(d.Params))
		for _, p := range d.Params {
			params[p.Name] = &schema.ParameterInfo{
				Type:     toSchemaType(p.Type),
				Desc:     p.Description,
				Required: p.Required,
			}
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        d.Name,
			Desc:        d.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos
}

func toSchemaType(t string) schema.DataType {
	switch t {
	case capability.ParamNumber:
		return schema.Number
	case capability.ParamBoolean:
		return schema.Boolean
	default:
		return schema.String
	}
}

// parseToolArgs 模型给出的参数是 JSON 字符串，解析失败时保守地退化为空参数
func parseToolArgs(raw string) map[string]interface{} {
	args := map[string]interface{}{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		zlog.Warn("responder tool args not valid json", zap.String("raw", raw))
		return map[string]interface{}{}
	}
	return args
}
