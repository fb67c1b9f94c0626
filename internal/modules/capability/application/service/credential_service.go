package service

import (
	"context"
	"errors"

	"NotaLink/internal/modules/capability/domain/entity"
	"NotaLink/internal/modules/capability/domain/repository"
	"NotaLink/pkg/vault"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CredentialService 第三方凭证管理，落库前走 vault 加密
type CredentialService interface {
	Set(ctx context.Context, userID string, provider string, secret string) error
	// Reveal 返回解密后的明文凭证，不存在时返回 ErrCredentialNotFound
	Reveal(ctx context.Context, userID string, provider string) (string, error)
	Delete(ctx context.Context, userID string, provider string) error
}

var ErrCredentialNotFound = errors.New("credential not found")

type credentialServiceImpl struct {
	repo  repository.CredentialRepository
	vault *vault.Vault
}

func NewCredentialService(repo repository.CredentialRepository, v *vault.Vault) CredentialService {
	return &credentialServiceImpl{repo: repo, vault: v}
}

func (s *credentialServiceImpl) Set(ctx context.Context, userID string, provider string, secret string) error {
	if userID == "" || provider == "" || secret == "" {
		return xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}
	encrypted, err := s.vault.Encrypt(secret)
	if err != nil {
		zlog.Error("credential encrypt failed", zap.String("provider", provider), zap.Error(err))
		return xerr.ErrServerError
	}
	cred := &entity.Credential{UserID: userID, Provider: provider, Secret: encrypted}
	if err := s.repo.Set(ctx, cred); err != nil {
		zlog.Error(err.Error())
		return xerr.ErrServerError
	}
	zlog.Info("credential stored", zap.String("user_id", userID), zap.String("provider", provider))
	return nil
}

func (s *credentialServiceImpl) Reveal(ctx context.Context, userID string, provider string) (string, error) {
	cred, err := s.repo.Get(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrCredentialNotFound
		}
		zlog.Error(err.Error())
		return "", xerr.ErrServerError
	}
	plain, err := s.vault.Decrypt(cred.Secret)
	if err != nil {
		zlog.Error("credential decrypt failed", zap.String("provider", provider), zap.Error(err))
		return "", xerr.ErrServerError
	}
	return plain, nil
}

func (s *credentialServiceImpl) Delete(ctx context.Context, userID string, provider string) error {
	if err := s.repo.Delete(ctx, userID, provider); err != nil {
		zlog.Error(err.Error())
		return xerr.ErrServerError
	}
	return nil
}
