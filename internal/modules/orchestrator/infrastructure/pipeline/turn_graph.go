package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"NotaLink/internal/modules/capability/domain/capability"
	"NotaLink/internal/modules/orchestrator/domain/responder"
	sessionEntity "NotaLink/internal/modules/session/domain/entity"
	"NotaLink/pkg/zlog"

	"go.uber.org/zap"
)

// 提示词携带的会话历史条数
const historyWindow = 20

// 超出单轮能力调用额度时回应给 Responder 的工具消息
const notExecutedNotice = "not executed: capability call budget for this turn was reached"

const systemPrompt = `You are NotaLink, a personal assistant reachable over chat channels.
Answer directly and concisely. Use the provided tools when the user's request needs them.
After using tools, reply with one final message that summarizes the outcome for the user.`

type capabilityOutcome struct {
	Name    string
	Content string
	Err     error
}

type turnState struct {
	Req        *TurnRequest
	History    []responder.Message
	Messages   []responder.Message
	Tools      []capability.Descriptor
	Executed   int // 已执行的能力调用数
	RoundTrips int
	ToolsUsed  []string
	Gathered   []capabilityOutcome
	Last       *responder.Result
	Reply      string
	Fallback   bool
	Err        error
}

func (p *TurnPipeline) loadContextNode(ctx context.Context, req *TurnRequest, _ ...any) (*turnState, error) {
	st := &turnState{Req: req}

	if p.messageRepo != nil && req.SessionID != "" {
		msgs, err := p.messageRepo.ListRecent(ctx, req.SessionID, historyWindow)
		if err != nil {
			// 历史加载失败降级为无历史，不让本轮对话失败
			zlog.Warn("turn history load failed",
				zap.String("session_id", req.SessionID), zap.Error(err))
		} else {
			st.History = toResponderHistory(msgs, req.Text)
		}
	}

	tools, err := p.caps.List(ctx, req.UserID)
	if err != nil {
		zlog.Warn("turn capability list failed",
			zap.String("user_id", req.UserID), zap.Error(err))
	} else {
		st.Tools = tools
	}

	return st, nil
}

// toResponderHistory 将会话历史映射为 Responder 消息。入站消息在到达时就已
// 写入历史，末尾与本轮输入相同的用户消息会被剔除，由 BuildPrompt 统一追加。
func toResponderHistory(msgs []sessionEntity.SessionMessage, currentText string) []responder.Message {
	out := make([]responder.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != sessionEntity.RoleUser && m.Role != sessionEntity.RoleAssistant {
			continue
		}
		out = append(out, responder.Message{Role: m.Role, Content: m.Content})
	}
	if n := len(out); n > 0 && out[n-1].Role == responder.RoleUser && out[n-1].Content == currentText {
		out = out[:n-1]
	}
	return out
}

func (p *TurnPipeline) buildPromptNode(ctx context.Context, st *turnState, _ ...any) (*turnState, error) {
	if st == nil || st.Err != nil {
		return st, nil
	}
	st.Messages = make([]responder.Message, 0, len(st.History)+1)
	st.Messages = append(st.Messages, st.History...)
	st.Messages = append(st.Messages, responder.Message{Role: responder.RoleUser, Content: st.Req.Text})
	return st, nil
}

func (p *TurnPipeline) respondNode(ctx context.Context, st *turnState, _ ...any) (*turnState, error) {
	if st == nil || st.Err != nil {
		return st, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, p.respondTimeout)
	defer cancel()

	st.RoundTrips++
	result, err := p.resp.Respond(callCtx, &responder.Request{
		System:   systemPrompt,
		Messages: st.Messages,
		Tools:    st.Tools,
	})
	if err != nil {
		// 超时与其他失败一律按处理错误处理，转入兜底，不中断本轮
		zlog.Error("responder round trip failed",
			zap.String("session_id", st.Req.SessionID),
			zap.Int("round_trips", st.RoundTrips),
			zap.Error(err))
		st.Err = err
		return st, nil
	}

	st.Last = result
	if len(result.ToolCalls) > 0 {
		st.Messages = append(st.Messages, responder.Message{
			Role:      responder.RoleAssistant,
			Content:   result.Text,
			ToolCalls: result.ToolCalls,
		})
	}

	zlog.Info("turn responder reply",
		zap.String("session_id", st.Req.SessionID),
		zap.Int("round_trips", st.RoundTrips),
		zap.Int("tool_calls", len(result.ToolCalls)),
		zap.Int("text_len", len(result.Text)))

	return st, nil
}

func (p *TurnPipeline) toolsNode(ctx context.Context, st *turnState, _ ...any) (*turnState, error) {
	if st == nil || st.Err != nil {
		return st, nil
	}
	if st.Last == nil || len(st.Last.ToolCalls) == 0 {
		return st, nil
	}

	for _, tc := range st.Last.ToolCalls {
		if st.Executed >= p.maxToolCalls {
			st.Messages = append(st.Messages, responder.Message{
				Role:       responder.RoleTool,
				Content:    notExecutedNotice,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
			continue
		}
		st.Executed++
		st.Messages = append(st.Messages, p.invokeCapability(ctx, st, tc))
	}
	return st, nil
}

// invokeCapability 执行一次能力调用并把结果包装成工具消息。
// 失败同样产出工具消息并记入 Gathered，让 Responder 或兜底模板继续收尾。
func (p *TurnPipeline) invokeCapability(ctx context.Context, st *turnState, tc responder.ToolCall) responder.Message {
	inv := &capability.Invocation{
		UserID:     st.Req.UserID,
		SessionID:  st.Req.SessionID,
		Channel:    st.Req.Channel,
		Capability: tc.Name,
		Args:       tc.Args,
	}

	res, err := p.caps.Execute(ctx, tc.Name, inv)
	if err != nil {
		zlog.Warn("turn capability call failed",
			zap.String("session_id", st.Req.SessionID),
			zap.String("capability", tc.Name),
			zap.Error(err))
		st.Gathered = append(st.Gathered, capabilityOutcome{Name: tc.Name, Err: err})
		return responder.Message{
			Role:       responder.RoleTool,
			Content:    "capability failed: " + err.Error(),
			ToolCallID: tc.ID,
			Name:       tc.Name,
		}
	}

	content := res.Content
	if content == "" && res.Data != nil {
		if raw, jerr := json.Marshal(res.Data); jerr == nil {
			content = string(raw)
		}
	}
	if content == "" {
		content = "done"
	}

	st.ToolsUsed = append(st.ToolsUsed, tc.Name)
	st.Gathered = append(st.Gathered, capabilityOutcome{Name: tc.Name, Content: content})
	return responder.Message{
		Role:       responder.RoleTool,
		Content:    content,
		ToolCallID: tc.ID,
		Name:       tc.Name,
	}
}

// formatNode 强制最终格式化：不给工具，让 Responder 就已收集的结果收尾。
// Responder 已经失败过或格式化往返再失败时，落到确定性兜底模板。
func (p *TurnPipeline) formatNode(ctx context.Context, st *turnState, _ ...any) (*turnState, error) {
	if st == nil {
		return st, nil
	}

	if st.Err == nil {
		callCtx, cancel := context.WithTimeout(ctx, p.respondTimeout)
		defer cancel()

		msgs := append(append([]responder.Message{}, st.Messages...), responder.Message{
			Role:    responder.RoleUser,
			Content: "Compose the final reply to the user from the conversation and tool results above. Reply with the final text only.",
		})

		st.RoundTrips++
		result, err := p.resp.Respond(callCtx, &responder.Request{
			System:   systemPrompt,
			Messages: msgs,
		})
		if err == nil && result.Text != "" {
			st.Reply = result.Text
			return st, nil
		}
		if err != nil {
			zlog.Error("turn formatting round trip failed",
				zap.String("session_id", st.Req.SessionID), zap.Error(err))
		}
	}

	st.Reply = fallbackSummary(st.Gathered)
	st.Fallback = true
	st.Err = nil
	return st, nil
}

func (p *TurnPipeline) finishNode(ctx context.Context, st *turnState, _ ...any) (*TurnResult, error) {
	if st == nil {
		return &TurnResult{Err: fmt.Errorf("empty turn state")}, nil
	}
	if st.Reply == "" && st.Last != nil {
		st.Reply = st.Last.Text
	}
	return &TurnResult{
		Reply:      st.Reply,
		ToolsUsed:  st.ToolsUsed,
		RoundTrips: st.RoundTrips,
		Fallback:   st.Fallback,
		Err:        st.Err,
	}, nil
}

// fallbackSummary 确定性兜底：把已收集的能力结果按模板汇总成回复
func fallbackSummary(gathered []capabilityOutcome) string {
	if len(gathered) == 0 {
		return "Sorry, I could not put together a reply this time. Please try again."
	}
	var b strings.Builder
	b.WriteString("Here is what I managed to gather:\n")
	for _, g := range gathered {
		if g.Err != nil {
			fmt.Fprintf(&b, "- %s: did not complete\n", g.Name)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", g.Name, truncate(g.Content, 300))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
