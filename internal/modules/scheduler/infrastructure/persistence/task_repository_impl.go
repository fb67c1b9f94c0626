package persistence

import (
	"context"
	"errors"
	"time"

	"NotaLink/internal/modules/scheduler/domain/entity"
	"NotaLink/internal/modules/scheduler/domain/repository"
	"NotaLink/pkg/xerr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 认领超过该时长未释放视为失效（工作进程中途挂掉），可被重新认领
const staleClaimAfter = 10 * time.Minute

type taskRepositoryImpl struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) repository.TaskRepository {
	return &taskRepositoryImpl{db: db}
}

func (r *taskRepositoryImpl) Create(ctx context.Context, task *entity.ScheduledTask) error {
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *taskRepositoryImpl) GetByID(ctx context.Context, id int64) (*entity.ScheduledTask, error) {
	var task entity.ScheduledTask
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (r *taskRepositoryImpl) ListByUser(ctx context.Context, userID string, enabledOnly bool) ([]entity.ScheduledTask, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	var tasks []entity.ScheduledTask
	if err := q.Order("next_run_at ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepositoryImpl) Update(ctx context.Context, task *entity.ScheduledTask) error {
	task.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *taskRepositoryImpl) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.ScheduledTask{}).Error
}

// ClaimDue 认领令牌带随机后缀，取回本次胜出的行不会混入同一 owner
// 此前未释放的认领
func (r *taskRepositoryImpl) ClaimDue(ctx context.Context, owner string, now time.Time, limit int) ([]entity.ScheduledTask, error) {
	if limit <= 0 {
		limit = 50
	}
	token := owner + "#" + uuid.NewString()[:8]

	res := r.db.WithContext(ctx).Model(&entity.ScheduledTask{}).
		Where("enabled = ? AND next_run_at <= ? AND (claim_owner = '' OR claimed_at < ?)",
			true, now, now.Add(-staleClaimAfter)).
		Limit(limit).
		Updates(map[string]interface{}{
			"claim_owner": token,
			"claimed_at":  now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var won []entity.ScheduledTask
	err := r.db.WithContext(ctx).
		Where("claim_owner = ?", token).
		Order("next_run_at ASC").
		Find(&won).Error
	if err != nil {
		return nil, err
	}
	return won, nil
}

func (r *taskRepositoryImpl) Release(ctx context.Context, task *entity.ScheduledTask) error {
	return r.db.WithContext(ctx).Model(&entity.ScheduledTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"enabled":     task.Enabled,
			"next_run_at": task.NextRunAt,
			"last_run_at": task.LastRunAt,
			"claim_owner": "",
			"claimed_at":  nil,
			"updated_at":  time.Now(),
		}).Error
}
