package persistence

import (
	"context"
	"time"

	"NotaLink/internal/modules/session/domain/entity"
	"NotaLink/internal/modules/session/domain/repository"

	"gorm.io/gorm"
)

type sessionRepositoryImpl struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) repository.SessionRepository {
	return &sessionRepositoryImpl{db: db}
}

func (r *sessionRepositoryImpl) Create(ctx context.Context, session *entity.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepositoryImpl) GetByID(ctx context.Context, sessionID string) (*entity.Session, error) {
	var sess entity.Session
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&sess).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

func (r *sessionRepositoryImpl) GetLiveByUserChannel(ctx context.Context, userID string, channel string) (*entity.Session, error) {
	var sess entity.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND channel = ? AND status <> ?", userID, channel, entity.StatusEnded).
		Order("last_active_at DESC").
		First(&sess).Error
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (r *sessionRepositoryImpl) GetLatestByUser(ctx context.Context, userID string) (*entity.Session, error) {
	var sess entity.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status <> ?", userID, entity.StatusEnded).
		Order("last_active_at DESC").
		First(&sess).Error
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (r *sessionRepositoryImpl) ListByUser(ctx context.Context, userID string, filter repository.SessionFilter) ([]entity.Session, error) {
	var sessions []entity.Session
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Channel != "" {
		query = query.Where("channel = ?", filter.Channel)
	}
	err := query.Order("last_active_at DESC").Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepositoryImpl) Update(ctx context.Context, session *entity.Session) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *sessionRepositoryImpl) Touch(ctx context.Context, sessionID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entity.Session{}).
		Where("session_id = ?", sessionID).
		UpdateColumn("last_active_at", at).Error
}

func (r *sessionRepositoryImpl) Delete(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&entity.Session{}).Error
}

func (r *sessionRepositoryImpl) ListIdleBefore(ctx context.Context, cutoff time.Time, limit int) ([]entity.Session, error) {
	var sessions []entity.Session
	err := r.db.WithContext(ctx).
		Where("status <> ? AND last_active_at < ?", entity.StatusEnded, cutoff).
		Order("last_active_at ASC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepositoryImpl) ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]entity.Session, error) {
	var sessions []entity.Session
	err := r.db.WithContext(ctx).
		Where("status = ? AND ended_at < ?", entity.StatusEnded, cutoff).
		Order("ended_at ASC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
