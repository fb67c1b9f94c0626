package builtin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	capabilityService "NotaLink/internal/modules/capability/application/service"
	"NotaLink/internal/modules/capability/domain/capability"
	gatewayService "NotaLink/internal/modules/gateway/application/service"
	"NotaLink/internal/modules/orchestrator/domain/responder"
	schedulerService "NotaLink/internal/modules/scheduler/application/service"
	sessionService "NotaLink/internal/modules/session/application/service"
)

// Deps 内置能力依赖的各模块服务
type Deps struct {
	Sessions  sessionService.SessionService
	Tasks     schedulerService.TaskService
	Gateway   gatewayService.GatewayService
	Responder responder.Responder // research_mission 使用，可为 nil
}

// Register 注册全部内置能力。名称冲突返回错误，启动期调用方 Fatal。
func Register(reg capabilityService.CapabilityService, deps Deps) error {
	defs := []capability.Definition{
		scheduleTask(deps),
		listTasks(deps),
		cancelTask(deps),
		listNotebooks(deps),
		openNotebook(deps),
		closeNotebook(deps),
		sendMessage(deps),
		webSearch(),
		researchMission(deps),
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func scheduleTask(deps Deps) capability.Definition {
	return capability.Definition{
		Name:        "schedule_task",
		Description: "Create a scheduled reminder or recurring task from a natural language request.",
		Params: []capability.ParamSpec{
			{Name: "text", Type: capability.ParamString, Description: "The scheduling request as the user phrased it", Required: true},
		},
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			text := inv.StringArg("text")
			if text == "" {
				return nil, errors.New("text is required")
			}
			task, rejection, err := deps.Tasks.CreateFromText(ctx, inv.UserID, inv.Channel, text)
			if err != nil {
				return nil, err
			}
			// 低置信度是结构化拒绝而不是处理失败，示例话术转述给用户
			if rejection != nil {
				var b strings.Builder
				b.WriteString("I couldn't work out when to schedule that. Here are requests I understand:\n")
				for _, ex := range rejection.Examples {
					b.WriteString("- " + ex + "\n")
				}
				return &capability.Result{Content: strings.TrimRight(b.String(), "\n")}, nil
			}
			return &capability.Result{
				Content: fmt.Sprintf("Scheduled %q (task #%d), next run %s.",
					task.Title, task.ID, task.NextRunAt.Format("2006-01-02 15:04")),
				Data: task,
			}, nil
		},
	}
}

func listTasks(deps Deps) capability.Definition {
	return capability.Definition{
		Name:        "list_tasks",
		Description: "List the user's scheduled tasks and reminders.",
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			tasks, err := deps.Tasks.List(ctx, inv.UserID, false)
			if err != nil {
				return nil, err
			}
			if len(tasks) == 0 {
				return &capability.Result{Content: "You have no scheduled tasks."}, nil
			}
			var b strings.Builder
			for i := range tasks {
				t := &tasks[i]
				state := ""
				if !t.Enabled {
					state = " (disabled)"
				}
				b.WriteString(fmt.Sprintf("#%d %s, next run %s%s\n",
					t.ID, t.Title, t.NextRunAt.Format("2006-01-02 15:04"), state))
			}
			return &capability.Result{Content: strings.TrimRight(b.String(), "\n"), Data: tasks}, nil
		},
	}
}

func cancelTask(deps Deps) capability.Definition {
	return capability.Definition{
		Name:        "cancel_task",
		Description: "Cancel (disable) a scheduled task by its id. The task history is kept.",
		Params: []capability.ParamSpec{
			{Name: "task_id", Type: capability.ParamNumber, Description: "The task id to cancel", Required: true},
		},
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			id := taskIDArg(inv)
			if id == 0 {
				return nil, errors.New("task_id is required")
			}
			if err := deps.Tasks.Cancel(ctx, inv.UserID, id); err != nil {
				return nil, err
			}
			return &capability.Result{Content: fmt.Sprintf("Task #%d is cancelled.", id)}, nil
		},
	}
}

func listNotebooks(deps Deps) capability.Definition {
	return capability.Definition{
		Name:        "list_notebooks",
		Description: "List the notebooks bound to the current conversation.",
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			sess, err := deps.Sessions.Get(ctx, inv.SessionID)
			if err != nil {
				return nil, err
			}
			if len(sess.Notebooks) == 0 {
				return &capability.Result{Content: "No notebooks are open in this conversation."}, nil
			}
			return &capability.Result{
				Content: "Open notebooks: " + strings.Join(sess.Notebooks, ", "),
				Data:    sess.Notebooks,
			}, nil
		},
	}
}

func openNotebook(deps Deps) capability.Definition {
	return capability.Definition{
		Name:        "open_notebook",
		Description: "Bind a notebook to the current conversation so its content is in scope.",
		Params: []capability.ParamSpec{
			{Name: "notebook_id", Type: capability.ParamString, Description: "The notebook to open", Required: true},
		},
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			id := inv.StringArg("notebook_id")
			if id == "" {
				return nil, errors.New("notebook_id is required")
			}
			if err := deps.Sessions.BindNotebook(ctx, inv.SessionID, id); err != nil {
				return nil, err
			}
			return &capability.Result{Content: fmt.Sprintf("Notebook %s is now open.", id)}, nil
		},
	}
}

func closeNotebook(deps Deps) capability.Definition {
	return capability.Definition{
		Name:        "close_notebook",
		Description: "Unbind a notebook from the current conversation.",
		Params: []capability.ParamSpec{
			{Name: "notebook_id", Type: capability.ParamString, Description: "The notebook to close", Required: true},
		},
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			id := inv.StringArg("notebook_id")
			if id == "" {
				return nil, errors.New("notebook_id is required")
			}
			if err := deps.Sessions.UnbindNotebook(ctx, inv.SessionID, id); err != nil {
				return nil, err
			}
			return &capability.Result{Content: fmt.Sprintf("Notebook %s is closed.", id)}, nil
		},
	}
}

func sendMessage(deps Deps) capability.Definition {
	return capability.Definition{
		Name:        "send_message",
		Description: "Send a text message to the user over the conversation's channel.",
		Params: []capability.ParamSpec{
			{Name: "text", Type: capability.ParamString, Description: "The message text", Required: true},
		},
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			text := inv.StringArg("text")
			if text == "" {
				return nil, errors.New("text is required")
			}
			sess, err := deps.Sessions.Get(ctx, inv.SessionID)
			if err != nil {
				return nil, err
			}
			if err := deps.Gateway.Send(ctx, sess, text); err != nil {
				return nil, err
			}
			return &capability.Result{Content: "Message sent."}, nil
		},
	}
}

func webSearch() capability.Definition {
	return capability.Definition{
		Name:        "web_search",
		Description: "Search the web for fresh information.",
		Premium:     true,
		Cost:        2,
		Params: []capability.ParamSpec{
			{Name: "query", Type: capability.ParamString, Description: "The search query", Required: true},
		},
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			query := inv.StringArg("query")
			if query == "" {
				return nil, errors.New("query is required")
			}
			// 搜索后端按部署接入，未接入时如实说明
			return &capability.Result{
				Content: fmt.Sprintf("Web search for %q is not connected in this deployment.", query),
			}, nil
		},
	}
}

func researchMission(deps Deps) capability.Definition {
	return capability.Definition{
		Name:        "research_mission",
		Description: "Launch a structured research mission on a topic and return the mission brief.",
		Premium:     true,
		Cost:        5,
		Params: []capability.ParamSpec{
			{Name: "topic", Type: capability.ParamString, Description: "The research topic", Required: true},
		},
		Handler: func(ctx context.Context, inv *capability.Invocation) (*capability.Result, error) {
			topic := inv.StringArg("topic")
			if topic == "" {
				return nil, errors.New("topic is required")
			}
			if deps.Responder == nil {
				return nil, errors.New("responder not configured")
			}
			res, err := deps.Responder.Respond(ctx, &responder.Request{
				System: "You are NotaLink's research planner. Produce a concise mission brief: " +
					"objective, three to five research questions, and suggested sources.",
				Messages: []responder.Message{
					{Role: responder.RoleUser, Content: "Research topic: " + topic},
				},
			})
			if err != nil {
				return nil, err
			}
			if res == nil || strings.TrimSpace(res.Text) == "" {
				return nil, errors.New("empty mission brief")
			}
			return &capability.Result{Content: res.Text}, nil
		},
	}
}

// taskIDArg 任务号可能来自模型工具调用（JSON 数值）或意图规则
// 抽取的文本，两种都接受
func taskIDArg(inv *capability.Invocation) int64 {
	if n, ok := inv.NumberArg("task_id"); ok {
		return int64(n)
	}
	raw := inv.StringArg("task_id")
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
