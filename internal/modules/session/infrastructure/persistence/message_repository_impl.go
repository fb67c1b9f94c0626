package persistence

import (
	"context"
	"sort"

	"NotaLink/internal/modules/session/domain/entity"
	"NotaLink/internal/modules/session/domain/repository"

	"gorm.io/gorm"
)

type messageRepositoryImpl struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) repository.MessageRepository {
	return &messageRepositoryImpl{db: db}
}

func (r *messageRepositoryImpl) Append(ctx context.Context, msg *entity.SessionMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepositoryImpl) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.SessionMessage{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

func (r *messageRepositoryImpl) DeleteOldest(ctx context.Context, sessionID string, n int) error {
	if n <= 0 {
		return nil
	}
	var ids []int64
	err := r.db.WithContext(ctx).Model(&entity.SessionMessage{}).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Limit(n).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&entity.SessionMessage{}).Error
}

func (r *messageRepositoryImpl) ListRecent(ctx context.Context, sessionID string, limit int) ([]entity.SessionMessage, error) {
	var msgs []entity.SessionMessage
	query := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&msgs).Error; err != nil {
		return nil, err
	}
	// 倒序取最近 N 条后恢复时间升序
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

func (r *messageRepositoryImpl) DeleteBySession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&entity.SessionMessage{}).Error
}
