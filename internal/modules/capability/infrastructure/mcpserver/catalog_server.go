package mcpserver

import (
	"context"
	"encoding/json"

	"NotaLink/internal/modules/capability/application/service"
	"NotaLink/internal/modules/capability/domain/capability"
	"NotaLink/pkg/zlog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

type contextKey string

// 上下文身份键，由接入方（HTTP 挂载层）在调用前注入
const (
	ContextKeyUserID    contextKey = "tenant_user_id"
	ContextKeySessionID contextKey = "session_id"
)

// NewCatalogServer 把能力目录导出为 MCP 工具集。
// 额度、授权、台账都走 CapabilityService.Execute，和对话内调用同一条路径。
func NewCatalogServer(name string, version string, caps service.CapabilityService) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
	)
	registerCatalog(s, caps)
	return s
}

func registerCatalog(s *server.MCPServer, caps service.CapabilityService) {
	for _, d := range caps.Descriptors() {
		opts := []mcp.ToolOption{mcp.WithDescription(d.Description)}
		for _, p := range d.Params {
			var popts []mcp.PropertyOption
			if p.Required {
				popts = append(popts, mcp.Required())
			}
			popts = append(popts, mcp.Description(p.Description))

			switch p.Type {
			case capability.ParamNumber:
				opts = append(opts, mcp.WithNumber(p.Name, popts...))
			case capability.ParamBoolean:
				opts = append(opts, mcp.WithBoolean(p.Name, popts...))
			default:
				opts = append(opts, mcp.WithString(p.Name, popts...))
			}
		}

		toolName := d.Name
		s.AddTool(mcp.NewTool(toolName, opts...), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleToolCall(ctx, caps, toolName, request)
		})
	}

	zlog.Info("mcp catalog registered", zap.Int("tools", len(caps.Descriptors())))
}

func handleToolCall(ctx context.Context, caps service.CapabilityService, name string, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := map[string]interface{}{}
	if request.Params.Arguments != nil {
		cast, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			zlog.Warn("mcp tool invalid arguments", zap.String("tool", name))
			return mcp.NewToolResultError("invalid arguments format"), nil
		}
		args = cast
	}

	var userID, sessionID string
	if v := ctx.Value(ContextKeyUserID); v != nil {
		userID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeySessionID); v != nil {
		sessionID, _ = v.(string)
	}
	if userID == "" {
		zlog.Warn("mcp tool missing user context", zap.String("tool", name))
		return mcp.NewToolResultError("unauthorized: missing user context"), nil
	}

	inv := &capability.Invocation{
		UserID:    userID,
		SessionID: sessionID,
		Channel:   "mcp",
		Args:      args,
	}
	result, err := caps.Execute(ctx, name, inv)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if result.Data != nil {
		raw, err := json.Marshal(result.Data)
		if err == nil {
			return mcp.NewToolResultText(string(raw)), nil
		}
		zlog.Warn("mcp tool result marshal failed", zap.String("tool", name), zap.Error(err))
	}
	return mcp.NewToolResultText(result.Content), nil
}
