package persistence

import (
	"context"
	"time"

	"NotaLink/internal/modules/scheduler/domain/entity"
	"NotaLink/internal/modules/scheduler/domain/repository"

	"gorm.io/gorm"
)

type executionRepositoryImpl struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) repository.ExecutionRepository {
	return &executionRepositoryImpl{db: db}
}

func (r *executionRepositoryImpl) Create(ctx context.Context, exec *entity.TaskExecution) error {
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(exec).Error
}

func (r *executionRepositoryImpl) ListByTask(ctx context.Context, taskID int64, limit int) ([]entity.TaskExecution, error) {
	if limit <= 0 {
		limit = 20
	}
	var execs []entity.TaskExecution
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("id DESC").
		Limit(limit).
		Find(&execs).Error
	if err != nil {
		return nil, err
	}
	return execs, nil
}
