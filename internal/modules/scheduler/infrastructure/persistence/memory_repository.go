package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"NotaLink/internal/modules/scheduler/domain/entity"
	"NotaLink/internal/modules/scheduler/domain/repository"
	"NotaLink/pkg/xerr"

	"github.com/google/uuid"
)

// 内存实现，测试与无数据库的本地运行使用

type memoryTaskRepository struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*entity.ScheduledTask
}

func NewMemoryTaskRepository() repository.TaskRepository {
	return &memoryTaskRepository{tasks: make(map[int64]*entity.ScheduledTask)}
}

func (r *memoryTaskRepository) Create(ctx context.Context, task *entity.ScheduledTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	task.ID = r.nextID
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *memoryTaskRepository) GetByID(ctx context.Context, id int64) (*entity.ScheduledTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, xerr.ErrTaskNotFound
	}
	cp := *task
	return &cp, nil
}

func (r *memoryTaskRepository) ListByUser(ctx context.Context, userID string, enabledOnly bool) ([]entity.ScheduledTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.ScheduledTask
	for _, task := range r.tasks {
		if task.UserID != userID {
			continue
		}
		if enabledOnly && !task.Enabled {
			continue
		}
		out = append(out, *task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunAt.Before(out[j].NextRunAt) })
	return out, nil
}

func (r *memoryTaskRepository) Update(ctx context.Context, task *entity.ScheduledTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.ID]; !ok {
		return xerr.ErrTaskNotFound
	}
	task.UpdatedAt = time.Now()
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *memoryTaskRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}

// ClaimDue 整个认领在同一临界区内完成，与数据库实现同样保证
// 单任务只有一个认领者胜出
func (r *memoryTaskRepository) ClaimDue(ctx context.Context, owner string, now time.Time, limit int) ([]entity.ScheduledTask, error) {
	if limit <= 0 {
		limit = 50
	}
	token := owner + "#" + uuid.NewString()[:8]

	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*entity.ScheduledTask
	for _, task := range r.tasks {
		if !task.Enabled || task.NextRunAt.After(now) {
			continue
		}
		if task.ClaimOwner != "" && task.ClaimedAt != nil && task.ClaimedAt.After(now.Add(-staleClaimAfter)) {
			continue
		}
		due = append(due, task)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	won := make([]entity.ScheduledTask, 0, len(due))
	claimedAt := now
	for _, task := range due {
		task.ClaimOwner = token
		task.ClaimedAt = &claimedAt
		won = append(won, *task)
	}
	return won, nil
}

func (r *memoryTaskRepository) Release(ctx context.Context, task *entity.ScheduledTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tasks[task.ID]
	if !ok {
		return xerr.ErrTaskNotFound
	}
	stored.Enabled = task.Enabled
	stored.NextRunAt = task.NextRunAt
	stored.LastRunAt = task.LastRunAt
	stored.ClaimOwner = ""
	stored.ClaimedAt = nil
	stored.UpdatedAt = time.Now()
	return nil
}

type memoryExecutionRepository struct {
	mu     sync.Mutex
	nextID int64
	execs  map[int64][]entity.TaskExecution
}

func NewMemoryExecutionRepository() repository.ExecutionRepository {
	return &memoryExecutionRepository{execs: make(map[int64][]entity.TaskExecution)}
}

func (r *memoryExecutionRepository) Create(ctx context.Context, exec *entity.TaskExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	exec.ID = r.nextID
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now()
	}
	r.execs[exec.TaskID] = append(r.execs[exec.TaskID], *exec)
	return nil
}

func (r *memoryExecutionRepository) ListByTask(ctx context.Context, taskID int64, limit int) ([]entity.TaskExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.execs[taskID]
	out := make([]entity.TaskExecution, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
