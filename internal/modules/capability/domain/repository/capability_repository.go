package repository

import (
	"context"
	"time"

	"NotaLink/internal/modules/capability/domain/entity"
)

type EntitlementRepository interface {
	// Get 返回用户授权记录，不存在时返回 gorm.ErrRecordNotFound
	Get(ctx context.Context, userID string) (*entity.Entitlement, error)
	Upsert(ctx context.Context, ent *entity.Entitlement) error
}

type UsageRepository interface {
	Record(ctx context.Context, rec *entity.UsageRecord) error
	CountSince(ctx context.Context, userID string, since time.Time) (int64, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]entity.UsageRecord, error)
}

type CredentialRepository interface {
	Get(ctx context.Context, userID string, provider string) (*entity.Credential, error)
	Set(ctx context.Context, cred *entity.Credential) error
	Delete(ctx context.Context, userID string, provider string) error
}

type AuditOutboxRepository interface {
	Enqueue(ctx context.Context, ev *entity.AuditEvent) error
	// ClaimForPublish 认领一批待发布事件并标记，避免多 relay 重复投递
	ClaimForPublish(ctx context.Context, now time.Time, limit int) ([]*entity.AuditEvent, error)
	MarkPublished(ctx context.Context, id int64, partition int, offset int64, at time.Time) error
	MarkPublishFailed(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error
}
