package handler

import (
	"time"

	capabilityRequest "NotaLink/internal/modules/capability/application/dto/request"
	capabilityRespond "NotaLink/internal/modules/capability/application/dto/respond"
	"NotaLink/internal/modules/capability/application/service"
	"NotaLink/internal/modules/capability/domain/entity"
	"NotaLink/pkg/back"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"github.com/gin-gonic/gin"
)

type CapabilityHandler struct {
	svc     service.CapabilityService
	credSvc service.CredentialService
}

func NewCapabilityHandler(svc service.CapabilityService, credSvc service.CredentialService) *CapabilityHandler {
	return &CapabilityHandler{svc: svc, credSvc: credSvc}
}

func (h *CapabilityHandler) ListCapabilities(c *gin.Context) {
	userID := c.GetString("uuid")
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	caps, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Result(c, capabilityRespond.CapabilityListRespond{Capabilities: caps, Total: len(caps)}, nil)
}

func (h *CapabilityHandler) GetUsage(c *gin.Context) {
	var req capabilityRequest.UsageListRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	userID := c.GetString("uuid")
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	records, err := h.svc.Usage(c.Request.Context(), userID, req.Limit)
	if err != nil {
		back.Result(c, nil, err)
		return
	}

	out := capabilityRespond.UsageListRespond{Records: make([]capabilityRespond.UsageItem, 0, len(records))}
	for i := range records {
		out.Records = append(out.Records, capabilityRespond.FromUsage(&records[i]))
	}
	out.Total = len(out.Records)
	back.Result(c, out, nil)
}

func (h *CapabilityHandler) Entitle(c *gin.Context) {
	var req capabilityRequest.EntitleRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	userID := c.GetString("uuid")
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	ent := &entity.Entitlement{
		UserID:      userID,
		Premium:     req.Premium,
		BudgetLimit: req.BudgetLimit,
	}
	if req.ExpiresAt != "" {
		expires, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			back.Error(c, xerr.BadRequest, "expires_at 格式错误")
			return
		}
		ent.ExpiresAt = &expires
	}
	back.Result(c, nil, h.svc.Entitle(c.Request.Context(), ent))
}

func (h *CapabilityHandler) SetCredential(c *gin.Context) {
	var req capabilityRequest.CredentialSetRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	userID := c.GetString("uuid")
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}
	back.Result(c, nil, h.credSvc.Set(c.Request.Context(), userID, req.Provider, req.Secret))
}

func (h *CapabilityHandler) DeleteCredential(c *gin.Context) {
	var req capabilityRequest.CredentialDeleteRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	userID := c.GetString("uuid")
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}
	back.Result(c, nil, h.credSvc.Delete(c.Request.Context(), userID, req.Provider))
}
