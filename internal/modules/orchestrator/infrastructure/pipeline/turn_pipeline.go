package pipeline

import (
	"context"
	"fmt"
	"time"

	capabilityService "NotaLink/internal/modules/capability/application/service"
	"NotaLink/internal/modules/orchestrator/domain/responder"
	sessionRepository "NotaLink/internal/modules/session/domain/repository"

	"github.com/cloudwego/eino/compose"
)

type TurnRequest struct {
	UserID    string
	SessionID string
	Channel   string
	Text      string
}

type TurnResult struct {
	Reply      string
	ToolsUsed  []string
	RoundTrips int  // 本轮 Responder 往返次数
	Fallback   bool // 回复是否来自确定性兜底模板
	Err        error
}

// TurnPipeline 单轮对话的执行图：
// LoadContext → BuildPrompt → Respond ⇄ Tools → Format → Finish。
// 能力调用次数受 maxToolCalls 约束，超出的请求以未执行的工具消息回应；
// 格式化往返失败时由模板兜底，不把硬错误抛给用户。
type TurnPipeline struct {
	messageRepo    sessionRepository.MessageRepository
	caps           capabilityService.CapabilityService
	resp           responder.Responder
	maxToolCalls   int
	respondTimeout time.Duration
	r              compose.Runnable[*TurnRequest, *TurnResult]
}

func NewTurnPipeline(
	messageRepo sessionRepository.MessageRepository,
	caps capabilityService.CapabilityService,
	resp responder.Responder,
	maxToolCalls int,
	respondTimeout time.Duration,
) (*TurnPipeline, error) {
	if resp == nil {
		return nil, fmt.Errorf("responder is nil")
	}
	if caps == nil {
		return nil, fmt.Errorf("capability service is nil")
	}
	if maxToolCalls <= 0 {
		maxToolCalls = 5
	}
	if respondTimeout <= 0 {
		respondTimeout = 2 * time.Minute
	}
	p := &TurnPipeline{
		messageRepo:    messageRepo,
		caps:           caps,
		resp:           resp,
		maxToolCalls:   maxToolCalls,
		respondTimeout: respondTimeout,
	}
	ctx := context.Background()
	r, err := p.buildGraph(ctx)
	if err != nil {
		return nil, err
	}
	p.r = r
	return p, nil
}

func (p *TurnPipeline) Execute(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	if req == nil {
		return &TurnResult{Err: fmt.Errorf("request is nil")}, nil
	}
	result, err := p.r.Invoke(ctx, req)
	if err != nil {
		return &TurnResult{Err: err}, nil
	}
	return result, nil
}

func (p *TurnPipeline) buildGraph(ctx context.Context) (compose.Runnable[*TurnRequest, *TurnResult], error) {
	const (
		LoadContext = "LoadContext"
		BuildPrompt = "BuildPrompt"
		Respond     = "Respond"
		Tools       = "Tools"
		Format      = "Format"
		Finish      = "Finish"
	)

	g := compose.NewGraph[*TurnRequest, *TurnResult]()

	_ = g.AddLambdaNode(LoadContext, compose.InvokableLambdaWithOption(p.loadContextNode), compose.WithNodeName(LoadContext))
	_ = g.AddLambdaNode(BuildPrompt, compose.InvokableLambdaWithOption(p.buildPromptNode), compose.WithNodeName(BuildPrompt))
	_ = g.AddLambdaNode(Respond, compose.InvokableLambdaWithOption(p.respondNode), compose.WithNodeName(Respond))
	_ = g.AddLambdaNode(Tools, compose.InvokableLambdaWithOption(p.toolsNode), compose.WithNodeName(Tools))
	_ = g.AddLambdaNode(Format, compose.InvokableLambdaWithOption(p.formatNode), compose.WithNodeName(Format))
	_ = g.AddLambdaNode(Finish, compose.InvokableLambdaWithOption(p.finishNode), compose.WithNodeName(Finish))

	_ = g.AddEdge(compose.START, LoadContext)
	_ = g.AddEdge(LoadContext, BuildPrompt)
	_ = g.AddEdge(BuildPrompt, Respond)

	// Respond 之后：有调用请求去 Tools；拿到最终文本收尾；
	// 往返失败或文本为空则进入格式化兜底。
	afterRespond := func(ctx context.Context, st *turnState) (string, error) {
		if st.Err != nil {
			return Format, nil
		}
		if st.Last != nil && len(st.Last.ToolCalls) > 0 {
			return Tools, nil
		}
		if st.Last != nil && st.Last.Text != "" {
			return Finish, nil
		}
		return Format, nil
	}
	_ = g.AddBranch(Respond, compose.NewGraphBranch(afterRespond, map[string]bool{
		Tools:  true,
		Finish: true,
		Format: true,
	}))

	// Tools 之后：额度未用完继续追问 Responder，用完则强制最终格式化。
	afterTools := func(ctx context.Context, st *turnState) (string, error) {
		if st.Err == nil && st.Executed < p.maxToolCalls {
			return Respond, nil
		}
		return Format, nil
	}
	_ = g.AddBranch(Tools, compose.NewGraphBranch(afterTools, map[string]bool{
		Respond: true,
		Format:  true,
	}))

	_ = g.AddEdge(Format, Finish)
	_ = g.AddEdge(Finish, compose.END)

	maxSteps := 6 + 2*p.maxToolCalls
	return g.Compile(ctx,
		compose.WithGraphName("TurnPipeline"),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(maxSteps))
}
