package service

import (
	"context"
	"encoding/json"
	"time"

	"NotaLink/internal/modules/scheduler/domain/entity"
	"NotaLink/internal/modules/scheduler/domain/repository"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ParseRejection 低置信度的结构化拒绝，不是错误：
// 调用方把示例话术转述给用户，绝不猜测
type ParseRejection struct {
	Confidence float64
	Examples   []string
}

type TaskService interface {
	// CreateFromText 解析自然语言并建任务。置信度低于阈值时返回
	// 非空的 ParseRejection，任务不落库。
	CreateFromText(ctx context.Context, userID string, channelName string, text string) (*entity.ScheduledTask, *ParseRejection, error)
	// Create 结构化建任务，校验触发配置并计算 NextRunAt
	Create(ctx context.Context, task *entity.ScheduledTask) error
	Get(ctx context.Context, userID string, id int64) (*entity.ScheduledTask, error)
	List(ctx context.Context, userID string, enabledOnly bool) ([]entity.ScheduledTask, error)
	// Cancel 停用任务，执行台账保留；删除需要属主显式调用 Delete
	Cancel(ctx context.Context, userID string, id int64) error
	Enable(ctx context.Context, userID string, id int64) error
	Delete(ctx context.Context, userID string, id int64) error
	Executions(ctx context.Context, userID string, id int64, limit int) ([]entity.TaskExecution, error)
}

type taskServiceImpl struct {
	taskRepo      repository.TaskRepository
	execRepo      repository.ExecutionRepository
	parser        ParserService
	minConfidence float64
}

func NewTaskService(taskRepo repository.TaskRepository, execRepo repository.ExecutionRepository, parser ParserService, minConfidence float64) TaskService {
	if minConfidence <= 0 {
		minConfidence = 0.8
	}
	return &taskServiceImpl{
		taskRepo:      taskRepo,
		execRepo:      execRepo,
		parser:        parser,
		minConfidence: minConfidence,
	}
}

func (s *taskServiceImpl) CreateFromText(ctx context.Context, userID string, channelName string, text string) (*entity.ScheduledTask, *ParseRejection, error) {
	if userID == "" || text == "" {
		return nil, nil, xerr.ErrParam
	}

	res := s.parser.ParseAt(text, time.Now())
	if res.Confidence < s.minConfidence {
		examples := res.Examples
		if len(examples) == 0 {
			examples = SupportedExamples()
		}
		zlog.Info("schedule text below confidence threshold",
			zap.String("user_id", userID), zap.Float64("confidence", res.Confidence))
		return nil, &ParseRejection{Confidence: res.Confidence, Examples: examples}, nil
	}

	payload, err := json.Marshal(res.Payload)
	if err != nil {
		return nil, nil, err
	}
	task := &entity.ScheduledTask{
		UserID:        userID,
		Title:         res.Title,
		TriggerType:   res.TriggerType,
		TriggerAt:     res.TriggerAt,
		CronExpr:      res.CronExpr,
		EverySeconds:  res.EverySeconds,
		ActionType:    res.ActionType,
		ActionPayload: string(payload),
		Channel:       channelName,
		Enabled:       true,
	}
	if err := s.Create(ctx, task); err != nil {
		return nil, nil, err
	}
	return task, nil, nil
}

func (s *taskServiceImpl) Create(ctx context.Context, task *entity.ScheduledTask) error {
	if task == nil || task.UserID == "" {
		return xerr.ErrParam
	}
	if task.Title == "" {
		task.Title = "Reminder"
	}
	if task.ActionType < entity.ActionSendMessage || task.ActionType > entity.ActionCommand {
		return xerr.New(xerr.BadRequest, "未知的动作类型")
	}

	next, err := ComputeNextRun(task, time.Now())
	if err != nil {
		return err
	}
	task.NextRunAt = next
	task.Enabled = true

	if err := s.taskRepo.Create(ctx, task); err != nil {
		zlog.Error("create scheduled task failed", zap.String("user_id", task.UserID), zap.Error(err))
		return xerr.ErrServerError
	}
	zlog.Info("scheduled task created",
		zap.Int64("task_id", task.ID),
		zap.String("user_id", task.UserID),
		zap.Int("trigger_type", task.TriggerType),
		zap.Time("next_run_at", task.NextRunAt))
	return nil
}

func (s *taskServiceImpl) Get(ctx context.Context, userID string, id int64) (*entity.ScheduledTask, error) {
	task, err := s.taskRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, xerr.ErrTaskNotFound
	}
	return task, nil
}

func (s *taskServiceImpl) List(ctx context.Context, userID string, enabledOnly bool) ([]entity.ScheduledTask, error) {
	if userID == "" {
		return nil, xerr.ErrParam
	}
	return s.taskRepo.ListByUser(ctx, userID, enabledOnly)
}

func (s *taskServiceImpl) Cancel(ctx context.Context, userID string, id int64) error {
	task, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if !task.Enabled {
		return xerr.ErrTaskDisabled
	}
	task.Enabled = false
	return s.taskRepo.Update(ctx, task)
}

func (s *taskServiceImpl) Enable(ctx context.Context, userID string, id int64) error {
	task, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	next, err := ComputeNextRun(task, time.Now())
	if err != nil {
		return err
	}
	task.Enabled = true
	task.NextRunAt = next
	return s.taskRepo.Update(ctx, task)
}

func (s *taskServiceImpl) Delete(ctx context.Context, userID string, id int64) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.taskRepo.Delete(ctx, id)
}

func (s *taskServiceImpl) Executions(ctx context.Context, userID string, id int64, limit int) ([]entity.TaskExecution, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.execRepo.ListByTask(ctx, id, limit)
}

// ComputeNextRun 按触发类型计算下一次运行时刻。一次性任务取触发
// 时刻本身，周期任务取表达式在 now 之后的第一个点，间隔任务取
// now + 间隔。
func ComputeNextRun(task *entity.ScheduledTask, now time.Time) (time.Time, error) {
	switch task.TriggerType {
	case entity.TriggerOnce:
		if task.TriggerAt == nil {
			return time.Time{}, xerr.New(xerr.BadRequest, "一次性任务缺少触发时刻")
		}
		return *task.TriggerAt, nil
	case entity.TriggerCron:
		sched, err := cron.ParseStandard(task.CronExpr)
		if err != nil {
			return time.Time{}, xerr.New(xerr.BadRequest, "无效的 cron 表达式")
		}
		return sched.Next(now), nil
	case entity.TriggerInterval:
		if task.EverySeconds <= 0 {
			return time.Time{}, xerr.New(xerr.BadRequest, "间隔必须为正数")
		}
		return now.Add(time.Duration(task.EverySeconds) * time.Second), nil
	default:
		return time.Time{}, xerr.New(xerr.BadRequest, "未知的触发类型")
	}
}
