package service

import (
	"errors"
	"strings"

	"NotaLink/internal/modules/user/application/dto/request"
	"NotaLink/internal/modules/user/application/dto/respond"
	"NotaLink/internal/modules/user/domain/entity"
	"NotaLink/internal/modules/user/domain/repository"
	"NotaLink/pkg/util"
	"NotaLink/pkg/util/myjwt"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AccountService 账户与开发态登录。IssueToken 在账户不存在时自动建档，
// 已有账户则校验密码，两种情况都签发 jwt。
type AccountService interface {
	IssueToken(req request.TokenRequest) (*respond.TokenRespond, error)
	Get(uuid string) (*entity.Account, error)
}

type accountServiceImpl struct {
	repo repository.AccountRepository
}

func NewAccountService(repo repository.AccountRepository) AccountService {
	return &accountServiceImpl{repo: repo}
}

func (s *accountServiceImpl) IssueToken(req request.TokenRequest) (*respond.TokenRespond, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, xerr.ErrParam
	}

	account, err := s.repo.GetByUsername(username)
	created := false
	switch {
	case err == nil:
		if account.Status != 0 {
			return nil, xerr.ErrBadCredentials
		}
		if bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(req.Password)) != nil {
			return nil, xerr.ErrBadCredentials
		}
	case errors.Is(err, xerr.ErrAccountNotFound):
		account, err = s.register(username, req.Nickname, req.Password)
		if err != nil {
			return nil, err
		}
		created = true
	default:
		zlog.Error("account lookup failed", zap.String("username", username), zap.Error(err))
		return nil, xerr.ErrServerError
	}

	token, err := myjwt.GenerateToken(account.Uuid, account.Username)
	if err != nil {
		zlog.Error("token issue failed", zap.String("uuid", account.Uuid), zap.Error(err))
		return nil, xerr.ErrServerError
	}

	return &respond.TokenRespond{
		Token:    token,
		Uuid:     account.Uuid,
		Username: account.Username,
		Nickname: account.Nickname,
		Created:  created,
	}, nil
}

func (s *accountServiceImpl) Get(uuid string) (*entity.Account, error) {
	return s.repo.GetByUuid(uuid)
}

func (s *accountServiceImpl) register(username, nickname, password string) (*entity.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, xerr.ErrServerError
	}
	if nickname == "" {
		nickname = username
	}
	account := &entity.Account{
		Uuid:     util.GenerateUUID(),
		Username: username,
		Nickname: nickname,
		Password: string(hash),
	}
	if err := s.repo.Create(account); err != nil {
		zlog.Error("account create failed", zap.String("username", username), zap.Error(err))
		return nil, xerr.ErrServerError
	}
	zlog.Info("account created", zap.String("uuid", account.Uuid), zap.String("username", username))
	return account, nil
}
