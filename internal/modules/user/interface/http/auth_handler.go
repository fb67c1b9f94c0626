package handler

import (
	"NotaLink/internal/modules/user/application/dto/request"
	"NotaLink/internal/modules/user/application/service"
	"NotaLink/pkg/back"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	svc service.AccountService
}

func NewAuthHandler(svc service.AccountService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// IssueToken POST /auth/token 开发态登录
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req request.TokenRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.svc.IssueToken(req)
	back.Result(c, data, err)
}
