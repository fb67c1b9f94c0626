package handler

import (
	"context"
	"encoding/json"
	"time"

	taskRequest "NotaLink/internal/modules/scheduler/application/dto/request"
	taskRespond "NotaLink/internal/modules/scheduler/application/dto/respond"
	"NotaLink/internal/modules/scheduler/application/service"
	"NotaLink/internal/modules/scheduler/domain/entity"
	"NotaLink/pkg/back"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	svc service.TaskService
}

func NewTaskHandler(svc service.TaskService) *TaskHandler {
	return &TaskHandler{svc: svc}
}

// CreateTask 建任务。带 text 字段走自然语言解析，否则按结构化字段建。
// 解析置信度不足返回结构化拒绝（HTTP 200），不是错误。
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req taskRequest.CreateTaskRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	userID := c.GetString("uuid")
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	if req.Text != "" {
		task, rejection, err := h.svc.CreateFromText(c.Request.Context(), userID, req.Channel, req.Text)
		if err != nil {
			back.Result(c, nil, err)
			return
		}
		if rejection != nil {
			back.Result(c, taskRespond.ParseRejectionRespond{
				Understood: false,
				Confidence: rejection.Confidence,
				Examples:   rejection.Examples,
			}, nil)
			return
		}
		back.Result(c, taskRespond.TaskCreateRespond{Understood: true, Task: taskRespond.FromTask(task)}, nil)
		return
	}

	task := &entity.ScheduledTask{
		UserID:       userID,
		Title:        req.Title,
		TriggerType:  req.TriggerType,
		CronExpr:     req.CronExpr,
		EverySeconds: req.EverySeconds,
		ActionType:   req.ActionType,
		Channel:      req.Channel,
	}
	if req.TriggerAt != "" {
		at, err := time.Parse(time.RFC3339, req.TriggerAt)
		if err != nil {
			back.Error(c, xerr.BadRequest, "trigger_at 需要 RFC3339 格式")
			return
		}
		task.TriggerAt = &at
	}
	payload, err := json.Marshal(entity.ActionPayloadBody{
		Message: req.Message,
		Prompt:  req.Prompt,
		URL:     req.URL,
		Method:  req.Method,
		Body:    req.Body,
		Command: req.Command,
	})
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	task.ActionPayload = string(payload)

	if err := h.svc.Create(c.Request.Context(), task); err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Result(c, taskRespond.TaskCreateRespond{Understood: true, Task: taskRespond.FromTask(task)}, nil)
}

func (h *TaskHandler) GetTaskList(c *gin.Context) {
	var req taskRequest.TaskListRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	userID := c.GetString("uuid")
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	tasks, err := h.svc.List(c.Request.Context(), userID, req.EnabledOnly)
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	out := taskRespond.TaskListRespond{Tasks: make([]taskRespond.TaskItem, 0, len(tasks))}
	for i := range tasks {
		out.Tasks = append(out.Tasks, taskRespond.FromTask(&tasks[i]))
	}
	out.Total = len(out.Tasks)
	back.Result(c, out, nil)
}

func (h *TaskHandler) CancelTask(c *gin.Context) {
	h.taskAction(c, h.svc.Cancel)
}

func (h *TaskHandler) EnableTask(c *gin.Context) {
	h.taskAction(c, h.svc.Enable)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	h.taskAction(c, h.svc.Delete)
}

func (h *TaskHandler) taskAction(c *gin.Context, action func(ctx context.Context, userID string, id int64) error) {
	var req taskRequest.TaskActionRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	userID := c.GetString("uuid")
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	if err := action(c.Request.Context(), userID, req.TaskID); err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Result(c, gin.H{"task_id": req.TaskID}, nil)
}

func (h *TaskHandler) GetTaskExecutions(c *gin.Context) {
	var req taskRequest.TaskExecutionsRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	userID := c.GetString("uuid")
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	execs, err := h.svc.Executions(c.Request.Context(), userID, req.TaskID, req.Limit)
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	out := taskRespond.TaskExecutionsRespond{TaskID: req.TaskID}
	for _, e := range execs {
		out.Executions = append(out.Executions, taskRespond.TaskExecutionItem{
			StartedAt:  e.StartedAt,
			FinishedAt: e.FinishedAt,
			Outcome:    e.Outcome,
			Summary:    e.Summary,
		})
	}
	out.Total = len(out.Executions)
	back.Result(c, out, nil)
}
