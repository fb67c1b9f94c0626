package persistence

import (
	"errors"

	"NotaLink/internal/modules/user/domain/entity"
	"NotaLink/internal/modules/user/domain/repository"
	"NotaLink/pkg/xerr"

	"gorm.io/gorm"
)

type accountRepositoryImpl struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) repository.AccountRepository {
	return &accountRepositoryImpl{db: db}
}

func (r *accountRepositoryImpl) Create(account *entity.Account) error {
	return r.db.Create(account).Error
}

func (r *accountRepositoryImpl) GetByUsername(username string) (*entity.Account, error) {
	var account entity.Account
	err := r.db.Where("username = ?", username).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepositoryImpl) GetByUuid(uuid string) (*entity.Account, error) {
	var account entity.Account
	err := r.db.Where("uuid = ?", uuid).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}
