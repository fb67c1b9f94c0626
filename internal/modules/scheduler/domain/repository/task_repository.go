package repository

import (
	"context"
	"time"

	"NotaLink/internal/modules/scheduler/domain/entity"
)

type TaskRepository interface {
	Create(ctx context.Context, task *entity.ScheduledTask) error
	GetByID(ctx context.Context, id int64) (*entity.ScheduledTask, error)
	ListByUser(ctx context.Context, userID string, enabledOnly bool) ([]entity.ScheduledTask, error)
	Update(ctx context.Context, task *entity.ScheduledTask) error
	Delete(ctx context.Context, id int64) error

	// ClaimDue 原子认领到期任务：单条语句把 enabled 且 next_run_at<=now
	// 且未被认领（或认领已过期）的任务标记为 owner 所有，再取回本次
	// 认领到的行。两个并发实例对同一任务只会有一个胜出。
	ClaimDue(ctx context.Context, owner string, now time.Time, limit int) ([]entity.ScheduledTask, error)
	// Release 写回推进后的触发状态并释放认领，一次更新完成
	Release(ctx context.Context, task *entity.ScheduledTask) error
}

type ExecutionRepository interface {
	Create(ctx context.Context, exec *entity.TaskExecution) error
	ListByTask(ctx context.Context, taskID int64, limit int) ([]entity.TaskExecution, error)
}
