package repository

import (
	"NotaLink/internal/modules/user/domain/entity"
)

// AccountRepository 账户仓储接口
type AccountRepository interface {
	Create(account *entity.Account) error
	GetByUsername(username string) (*entity.Account, error)
	GetByUuid(uuid string) (*entity.Account, error)
}
