package persistence

import (
	"context"
	"strings"
	"time"

	"NotaLink/internal/modules/capability/domain/entity"
	"NotaLink/internal/modules/capability/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type auditOutboxRepositoryImpl struct {
	db *gorm.DB
}

func NewAuditOutboxRepository(db *gorm.DB) repository.AuditOutboxRepository {
	return &auditOutboxRepositoryImpl{db: db}
}

func (r *auditOutboxRepositoryImpl) Enqueue(ctx context.Context, ev *entity.AuditEvent) error {
	if ev == nil {
		return nil
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if ev.NextRetryAt.IsZero() {
		ev.NextRetryAt = ev.CreatedAt
	}
	// dedup_key 冲突说明同一事件已入队，静默跳过
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoNothing: true,
	}).Create(ev).Error
}

func (r *auditOutboxRepositoryImpl) ClaimForPublish(ctx context.Context, now time.Time, limit int) ([]*entity.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []*entity.AuditEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var events []*entity.AuditEvent
		q := tx.Model(&entity.AuditEvent{}).
			Where("status IN ?", []int{entity.AuditPending, entity.AuditClaimed}).
			Where("next_retry_at <= ?", now).
			Order("id ASC").
			Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&events).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			out = []*entity.AuditEvent{}
			return nil
		}

		ids := make([]int64, 0, len(events))
		for i := range events {
			ids = append(ids, events[i].ID)
		}
		// 认领后把重试时间推远，宕机的 relay 过期后事件自动回池
		if err := tx.Model(&entity.AuditEvent{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"status": entity.AuditClaimed, "next_retry_at": now.Add(time.Minute)}).Error; err != nil {
			return err
		}

		out = events
		return nil
	})
	return out, err
}

func (r *auditOutboxRepositoryImpl) MarkPublished(ctx context.Context, id int64, partition int, offset int64, at time.Time) error {
	updates := map[string]any{
		"status":       entity.AuditPublished,
		"partition":    partition,
		"offset":       offset,
		"published_at": at,
		"last_error":   "",
	}
	return r.db.WithContext(ctx).Model(&entity.AuditEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *auditOutboxRepositoryImpl) MarkPublishFailed(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error {
	errMsg = strings.TrimSpace(errMsg)
	if len(errMsg) > 255 {
		errMsg = errMsg[:255]
	}
	updates := map[string]any{
		"status":        entity.AuditPending,
		"retry_count":   gorm.Expr("retry_count + 1"),
		"next_retry_at": nextRetryAt,
		"last_error":    errMsg,
	}
	return r.db.WithContext(ctx).Model(&entity.AuditEvent{}).Where("id = ?", id).Updates(updates).Error
}
