package persistence

import (
	"context"
	"time"

	"NotaLink/internal/modules/capability/domain/entity"
	"NotaLink/internal/modules/capability/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type entitlementRepositoryImpl struct {
	db *gorm.DB
}

func NewEntitlementRepository(db *gorm.DB) repository.EntitlementRepository {
	return &entitlementRepositoryImpl{db: db}
}

func (r *entitlementRepositoryImpl) Get(ctx context.Context, userID string) (*entity.Entitlement, error) {
	var ent entity.Entitlement
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&ent).Error; err != nil {
		return nil, err
	}
	return &ent, nil
}

func (r *entitlementRepositoryImpl) Upsert(ctx context.Context, ent *entity.Entitlement) error {
	ent.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"premium", "budget_limit", "expires_at", "updated_at"}),
	}).Create(ent).Error
}
