package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	capabilityEntity "NotaLink/internal/modules/capability/domain/entity"
	capabilityRepository "NotaLink/internal/modules/capability/domain/repository"
	"NotaLink/internal/config"
	"NotaLink/internal/modules/scheduler/application/service"
	"NotaLink/internal/modules/scheduler/domain/entity"
	"NotaLink/internal/modules/scheduler/domain/repository"
	"NotaLink/pkg/util"
	"NotaLink/pkg/zlog"

	"go.uber.org/zap"
)

const (
	defaultPollSeconds = 30
	defaultClaimBatch  = 50
	taskRunTimeout     = 5 * time.Minute

	auditEventTaskExecuted = "task_executed"
)

// SchedulerManager 轮询认领到期任务并驱动执行。认领是单条原子
// 更新，多实例部署同一任务只会有一个认领者；触发推进在执行前
// 写回，进程中途崩溃最多丢一次执行，绝不重复触发。
type SchedulerManager struct {
	taskRepo  repository.TaskRepository
	execRepo  repository.ExecutionRepository
	auditRepo capabilityRepository.AuditOutboxRepository // 可为 nil
	executor  service.ExecutorService

	owner      string
	interval   time.Duration
	claimBatch int

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewSchedulerManager(
	taskRepo repository.TaskRepository,
	execRepo repository.ExecutionRepository,
	auditRepo capabilityRepository.AuditOutboxRepository,
	executor service.ExecutorService,
	conf config.SchedulerConfig,
) *SchedulerManager {
	interval := time.Duration(conf.PollSeconds) * time.Second
	if interval <= 0 {
		interval = defaultPollSeconds * time.Second
	}
	batch := conf.ClaimBatch
	if batch <= 0 {
		batch = defaultClaimBatch
	}

	hostname, _ := os.Hostname()
	owner := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	return &SchedulerManager{
		taskRepo:   taskRepo,
		execRepo:   execRepo,
		auditRepo:  auditRepo,
		executor:   executor,
		owner:      owner,
		interval:   interval,
		claimBatch: batch,
		stopChan:   make(chan struct{}),
	}
}

func (m *SchedulerManager) Start() {
	go m.runPoller()
	zlog.Info("task scheduler started",
		zap.String("owner", m.owner), zap.Duration("interval", m.interval))
}

func (m *SchedulerManager) Stop() {
	close(m.stopChan)
	m.wg.Wait()
}

func (m *SchedulerManager) runPoller() {
	// 启动先补一轮，错过的到期任务不用等第一个周期
	m.pollAndExecute()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.pollAndExecute()
		case <-m.stopChan:
			return
		}
	}
}

func (m *SchedulerManager) pollAndExecute() {
	ctx := context.Background()
	claimed, err := m.taskRepo.ClaimDue(ctx, m.owner, time.Now(), m.claimBatch)
	if err != nil {
		zlog.Error("claim due tasks failed", zap.Error(err))
		return
	}
	if len(claimed) == 0 {
		return
	}
	zlog.Info("claimed due tasks", zap.Int("count", len(claimed)))

	for i := range claimed {
		task := claimed[i]
		m.wg.Add(1)
		go m.runTask(task)
	}
}

func (m *SchedulerManager) runTask(task entity.ScheduledTask) {
	defer m.wg.Done()
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			zlog.Error("task execution panicked",
				zap.Int64("task_id", task.ID), zap.Any("panic", r))
			m.recordExecution(&task, started, fmt.Sprintf("panic: %v", r), false)
		}
	}()

	m.advanceAndRelease(&task, started)

	ctx, cancel := context.WithTimeout(context.Background(), taskRunTimeout)
	defer cancel()

	summary, err := m.executor.Execute(ctx, &task)
	if err != nil {
		zlog.Error("task execution failed",
			zap.Int64("task_id", task.ID),
			zap.String("user_id", task.UserID),
			zap.Error(err))
		m.recordExecution(&task, started, err.Error(), false)
		return
	}
	m.recordExecution(&task, started, summary, true)
}

// advanceAndRelease 在执行前推进触发并释放认领：一次性任务停用，
// 周期与间隔任务写入下一个触发点。之后的轮询不会再看到本次到期。
func (m *SchedulerManager) advanceAndRelease(task *entity.ScheduledTask, now time.Time) {
	task.LastRunAt = &now
	if task.TriggerType == entity.TriggerOnce {
		task.Enabled = false
	} else {
		next, err := service.ComputeNextRun(task, now)
		if err != nil {
			// 触发配置损坏，停用避免每轮都认领
			zlog.Error("trigger advance failed, disabling task",
				zap.Int64("task_id", task.ID), zap.Error(err))
			task.Enabled = false
		} else {
			task.NextRunAt = next
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.taskRepo.Release(ctx, task); err != nil {
		// 释放失败认领仍在，过期后会被重新认领，这里只记录
		zlog.Error("release task claim failed", zap.Int64("task_id", task.ID), zap.Error(err))
	}
}

func (m *SchedulerManager) recordExecution(task *entity.ScheduledTask, started time.Time, summary string, ok bool) {
	outcome := entity.ExecSuccess
	if !ok {
		outcome = entity.ExecFailure
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exec := &entity.TaskExecution{
		TaskID:     task.ID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Outcome:    outcome,
		Summary:    summary,
	}
	if err := m.execRepo.Create(ctx, exec); err != nil {
		zlog.Error("record task execution failed",
			zap.Int64("task_id", task.ID), zap.Error(err))
	}

	if m.auditRepo == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"task_id":     task.ID,
		"user_id":     task.UserID,
		"title":       task.Title,
		"action_type": task.ActionType,
		"outcome":     outcome,
		"summary":     summary,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	if err != nil {
		zlog.Warn("audit payload marshal failed", zap.Error(err))
		return
	}
	ev := &capabilityEntity.AuditEvent{
		EventType:   auditEventTaskExecuted,
		UserID:      task.UserID,
		DedupKey:    "task-" + util.GenerateShortUUID(),
		PayloadJSON: string(payload),
	}
	if err := m.auditRepo.Enqueue(ctx, ev); err != nil {
		zlog.Warn("audit enqueue failed", zap.Int64("task_id", task.ID), zap.Error(err))
	}
}
