package persistence

import (
	"context"
	"time"

	"NotaLink/internal/modules/capability/domain/entity"
	"NotaLink/internal/modules/capability/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type credentialRepositoryImpl struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) repository.CredentialRepository {
	return &credentialRepositoryImpl{db: db}
}

func (r *credentialRepositoryImpl) Get(ctx context.Context, userID string, provider string) (*entity.Credential, error) {
	var cred entity.Credential
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&cred).Error
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepositoryImpl) Set(ctx context.Context, cred *entity.Credential) error {
	cred.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"secret", "updated_at"}),
	}).Create(cred).Error
}

func (r *credentialRepositoryImpl) Delete(ctx context.Context, userID string, provider string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&entity.Credential{}).Error
}
