package handler

import (
	"context"

	sessionRequest "NotaLink/internal/modules/session/application/dto/request"
	sessionRespond "NotaLink/internal/modules/session/application/dto/respond"
	"NotaLink/internal/modules/session/application/service"
	"NotaLink/pkg/back"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	svc service.SessionService
}

func NewSessionHandler(svc service.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) OpenSession(c *gin.Context) {
	var req sessionRequest.OpenSessionRequest
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

	sess, created, err := h.svc.GetOrCreate(c.Request.Context(), userID, req.Channel)
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Result(c, sessionRespond.FromSession(sess, created), nil)
}

func (h *SessionHandler) GetSessionList(c *gin.Context) {
	var req sessionRequest.SessionListRequest
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

	sessions, err := h.svc.List(c.Request.Context(), userID, req.Status, req.Channel)
	if err != nil {
		back.Result(c, nil, err)
		return
	}

	out := sessionRespond.SessionListRespond{Sessions: make([]sessionRespond.SessionItem, 0, len(sessions))}
	for i := range sessions {
		out.Sessions = append(out.Sessions, sessionRespond.FromSession(&sessions[i], false))
	}
	out.Total = len(out.Sessions)
	back.Result(c, out, nil)
}

func (h *SessionHandler) GetHistory(c *gin.Context) {
	var req sessionRequest.SessionHistoryRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	if !h.ownsSession(c, req.SessionID) {
		return
	}

	msgs, err := h.svc.History(c.Request.Context(), req.SessionID, req.Limit)
	if err != nil {
		back.Result(c, nil, err)
		return
	}

	out := sessionRespond.SessionHistoryRespond{
		SessionID: req.SessionID,
		Messages:  make([]sessionRespond.SessionMessageItem, 0, len(msgs)),
	}
	for i := range msgs {
		out.Messages = append(out.Messages, sessionRespond.FromMessage(&msgs[i]))
	}
	out.Total = len(out.Messages)
	back.Result(c, out, nil)
}

func (h *SessionHandler) PauseSession(c *gin.Context) {
	h.action(c, h.svc.Pause)
}

func (h *SessionHandler) ResumeSession(c *gin.Context) {
	h.action(c, h.svc.Resume)
}

func (h *SessionHandler) EndSession(c *gin.Context) {
	h.action(c, h.svc.End)
}

func (h *SessionHandler) DeleteSession(c *gin.Context) {
	h.action(c, h.svc.Delete)
}

func (h *SessionHandler) BindNotebook(c *gin.Context) {
	var req sessionRequest.SessionNotebookRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	if !h.ownsSession(c, req.SessionID) {
		return
	}
	back.Result(c, nil, h.svc.BindNotebook(c.Request.Context(), req.SessionID, req.NotebookID))
}

func (h *SessionHandler) UnbindNotebook(c *gin.Context) {
	var req sessionRequest.SessionNotebookRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	if !h.ownsSession(c, req.SessionID) {
		return
	}
	back.Result(c, nil, h.svc.UnbindNotebook(c.Request.Context(), req.SessionID, req.NotebookID))
}

func (h *SessionHandler) EnableIntegration(c *gin.Context) {
	var req sessionRequest.SessionIntegrationRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	if !h.ownsSession(c, req.SessionID) {
		return
	}
	back.Result(c, nil, h.svc.EnableIntegration(c.Request.Context(), req.SessionID, req.Name))
}

func (h *SessionHandler) DisableIntegration(c *gin.Context) {
	var req sessionRequest.SessionIntegrationRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	if !h.ownsSession(c, req.SessionID) {
		return
	}
	back.Result(c, nil, h.svc.DisableIntegration(c.Request.Context(), req.SessionID, req.Name))
}

func (h *SessionHandler) SetVar(c *gin.Context) {
	var req sessionRequest.SessionVarRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	if !h.ownsSession(c, req.SessionID) {
		return
	}
	back.Result(c, nil, h.svc.SetVar(c.Request.Context(), req.SessionID, req.Key, req.Value))
}

// action 处理仅携带 session_id 的状态操作
func (h *SessionHandler) action(c *gin.Context, fn func(ctx context.Context, sessionID string) error) {
	var req sessionRequest.SessionActionRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	if !h.ownsSession(c, req.SessionID) {
		return
	}
	back.Result(c, nil, fn(c.Request.Context(), req.SessionID))
}

// ownsSession 校验会话归属当前登录用户
func (h *SessionHandler) ownsSession(c *gin.Context, sessionID string) bool {
	userID := c.GetString("uuid")
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return false
	}
	sess, err := h.svc.Get(c.Request.Context(), sessionID)
	if err != nil {
		back.Result(c, nil, err)
		return false
	}
	if sess.UserID != userID {
		back.Error(c, xerr.Forbidden, "无权操作该会话")
		return false
	}
	return true
}
