package persistence

import (
	"context"
	"time"

	"NotaLink/internal/modules/capability/domain/entity"
	"NotaLink/internal/modules/capability/domain/repository"

	"gorm.io/gorm"
)

type usageRepositoryImpl struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) repository.UsageRepository {
	return &usageRepositoryImpl{db: db}
}

func (r *usageRepositoryImpl) Record(ctx context.Context, rec *entity.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *usageRepositoryImpl) CountSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.UsageRecord{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

func (r *usageRepositoryImpl) ListByUser(ctx context.Context, userID string, limit int) ([]entity.UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []entity.UsageRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
