package service

import (
	"context"
	"errors"
	"time"

	"NotaLink/internal/modules/session/domain/entity"
	"NotaLink/internal/modules/session/domain/repository"
	"NotaLink/pkg/util"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// sweepBatch 单轮清扫的最大处理量，避免长事务
const sweepBatch = 200

type SessionService interface {
	// GetOrCreate 返回 (userID, channel) 下的存活会话，不存在则新建。
	// 第二个返回值表示本次是否新建。
	GetOrCreate(ctx context.Context, userID string, channel string) (*entity.Session, bool, error)
	Get(ctx context.Context, sessionID string) (*entity.Session, error)
	GetLatestByUser(ctx context.Context, userID string) (*entity.Session, error)
	List(ctx context.Context, userID string, status *int, channel string) ([]entity.Session, error)

	AppendMessage(ctx context.Context, sessionID string, msg *entity.SessionMessage) error
	History(ctx context.Context, sessionID string, limit int) ([]entity.SessionMessage, error)

	Pause(ctx context.Context, sessionID string) error
	Resume(ctx context.Context, sessionID string) error
	End(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error

	BindNotebook(ctx context.Context, sessionID string, notebookID string) error
	UnbindNotebook(ctx context.Context, sessionID string, notebookID string) error
	EnableIntegration(ctx context.Context, sessionID string, name string) error
	DisableIntegration(ctx context.Context, sessionID string, name string) error
	SetVar(ctx context.Context, sessionID string, key string, value string) error
	GetVar(ctx context.Context, sessionID string, key string) (string, bool, error)
	SetCurrentTask(ctx context.Context, sessionID string, task string) error
	ClearCurrentTask(ctx context.Context, sessionID string) error

	// SweepIdle 结束空闲超时的会话并清理过期的已结束会话，返回 (结束数, 清理数)
	SweepIdle(ctx context.Context) (int, int, error)
}

type sessionServiceImpl struct {
	sessionRepo  repository.SessionRepository
	messageRepo  repository.MessageRepository
	historyLimit int
	idleAfter    time.Duration
	purgeAfter   time.Duration
}

func NewSessionService(sessionRepo repository.SessionRepository, messageRepo repository.MessageRepository, historyLimit int, idleAfter time.Duration, purgeAfter time.Duration) SessionService {
	return &sessionServiceImpl{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		historyLimit: historyLimit,
		idleAfter:    idleAfter,
		purgeAfter:   purgeAfter,
	}
}

func (s *sessionServiceImpl) GetOrCreate(ctx context.Context, userID string, channel string) (*entity.Session, bool, error) {
	if userID == "" || channel == "" {
		return nil, false, xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}

	sess, err := s.sessionRepo.GetLiveByUserChannel(ctx, userID, channel)
	if err == nil {
		if touchErr := s.sessionRepo.Touch(ctx, sess.SessionID, time.Now()); touchErr != nil {
			zlog.Warn("touch session failed", zap.String("session_id", sess.SessionID), zap.Error(touchErr))
		}
		return sess, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		zlog.Error(err.Error())
		return nil, false, xerr.ErrServerError
	}

	now := time.Now()
	sess = &entity.Session{
		SessionID:    util.GenerateSessionID(),
		UserID:       userID,
		Channel:      channel,
		Status:       entity.StatusActive,
		Notebooks:    []string{},
		Integrations: []string{},
		Vars:         map[string]string{},
		StartedAt:    now,
		LastActiveAt: now,
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		zlog.Error(err.Error())
		return nil, false, xerr.ErrServerError
	}
	zlog.Info("session created",
		zap.String("session_id", sess.SessionID),
		zap.String("user_id", userID),
		zap.String("channel", channel))
	return sess, true, nil
}

func (s *sessionServiceImpl) Get(ctx context.Context, sessionID string) (*entity.Session, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsEnded() {
		if touchErr := s.sessionRepo.Touch(ctx, sess.SessionID, time.Now()); touchErr != nil {
			zlog.Warn("touch session failed", zap.String("session_id", sess.SessionID), zap.Error(touchErr))
		}
	}
	return sess, nil
}

func (s *sessionServiceImpl) GetLatestByUser(ctx context.Context, userID string) (*entity.Session, error) {
	if userID == "" {
		return nil, xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}
	sess, err := s.sessionRepo.GetLatestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrSessionNotFound
		}
		zlog.Error(err.Error())
		return nil, xerr.ErrServerError
	}
	return sess, nil
}

func (s *sessionServiceImpl) List(ctx context.Context, userID string, status *int, channel string) ([]entity.Session, error) {
	if userID == "" {
		return nil, xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}
	sessions, err := s.sessionRepo.ListByUser(ctx, userID, repository.SessionFilter{Status: status, Channel: channel})
	if err != nil {
		zlog.Error(err.Error())
		return nil, xerr.ErrServerError
	}
	return sessions, nil
}

func (s *sessionServiceImpl) AppendMessage(ctx context.Context, sessionID string, msg *entity.SessionMessage) error {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.IsEnded() {
		return xerr.ErrSessionEnded
	}

	msg.SessionID = sessionID
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	if err := s.messageRepo.Append(ctx, msg); err != nil {
		zlog.Error(err.Error())
		return xerr.ErrServerError
	}

	// 历史窗口为定长 FIFO，超出上限淘汰最早的消息
	if s.historyLimit > 0 {
		count, err := s.messageRepo.CountBySession(ctx, sessionID)
		if err != nil {
			zlog.Error(err.Error())
			return xerr.ErrServerError
		}
		if overflow := int(count) - s.historyLimit; overflow > 0 {
			if err := s.messageRepo.DeleteOldest(ctx, sessionID, overflow); err != nil {
				zlog.Error(err.Error())
				return xerr.ErrServerError
			}
		}
	}

	if err := s.sessionRepo.Touch(ctx, sessionID, time.Now()); err != nil {
		zlog.Warn("touch session failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	return nil
}

func (s *sessionServiceImpl) History(ctx context.Context, sessionID string, limit int) ([]entity.SessionMessage, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	msgs, err := s.messageRepo.ListRecent(ctx, sessionID, limit)
	if err != nil {
		zlog.Error(err.Error())
		return nil, xerr.ErrServerError
	}
	if !sess.IsEnded() {
		if touchErr := s.sessionRepo.Touch(ctx, sessionID, time.Now()); touchErr != nil {
			zlog.Warn("touch session failed", zap.String("session_id", sessionID), zap.Error(touchErr))
		}
	}
	return msgs, nil
}

func (s *sessionServiceImpl) Pause(ctx context.Context, sessionID string) error {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.IsEnded() {
		return xerr.ErrSessionEnded
	}
	if sess.Status == entity.StatusPaused {
		return nil
	}
	sess.Status = entity.StatusPaused
	sess.LastActiveAt = time.Now()
	if err := s.sessionRepo.Update(ctx, sess); err != nil {
		zlog.Error(err.Error())
		return xerr.ErrServerError
	}
	return nil
}

func (s *sessionServiceImpl) Resume(ctx context.Context, sessionID string) error {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.IsEnded() {
		// 结束为终态，不允许恢复
		return xerr.ErrSessionEnded
	}
	if sess.Status == entity.StatusActive {
		return nil
	}
	sess.Status = entity.StatusActive
	sess.LastActiveAt = time.Now()
	if err := s.sessionRepo.Update(ctx, sess); err != nil {
		zlog.Error(err.Error())
		return xerr.ErrServerError
	}
	return nil
}

func (s *sessionServiceImpl) End(ctx context.Context, sessionID string) error {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.IsEnded() {
		return nil
	}
	now := time.Now()
	sess.Status = entity.StatusEnded
	sess.EndedAt = &now
	sess.LastActiveAt = now
	sess.CurrentTask = ""
	if err := s.sessionRepo.Update(ctx, sess); err != nil {
		zlog.Error(err.Error())
		return xerr.ErrServerError
	}
	zlog.Info("session ended", zap.String("session_id", sessionID), zap.String("user_id", sess.UserID))
	return nil
}

func (s *sessionServiceImpl) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.load(ctx, sessionID); err != nil {
		return err
	}
	if err := s.messageRepo.DeleteBySession(ctx, sessionID); err != nil {
		zlog.Error(err.Error())
		return xerr.ErrServerError
	}
	if err := s.sessionRepo.Delete(ctx, sessionID); err != nil {
		zlog.Error(err.Error())
		return xerr.ErrServerError
	}
	zlog.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

func (s *sessionServiceImpl) BindNotebook(ctx context.Context, sessionID string, notebookID string) error {
	if notebookID == "" {
		return xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}
	return s.mutateLive(ctx, sessionID, func(sess *entity.Session) bool {
		for _, id := range sess.Notebooks {
			if id == notebookID {
				return false
			}
		}
		sess.Notebooks = append(sess.Notebooks, notebookID)
		return true
	})
}

func (s *sessionServiceImpl) UnbindNotebook(ctx context.Context, sessionID string, notebookID string) error {
	return s.mutateLive(ctx, sessionID, func(sess *entity.Session) bool {
		for i, id := range sess.Notebooks {
			if id == notebookID {
				sess.Notebooks = append(sess.Notebooks[:i], sess.Notebooks[i+1:]...)
				return true
			}
		}
		return false
	})
}

func (s *sessionServiceImpl) EnableIntegration(ctx context.Context, sessionID string, name string) error {
	if name == "" {
		return xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}
	return s.mutateLive(ctx, sessionID, func(sess *entity.Session) bool {
		for _, n := range sess.Integrations {
			if n == name {
				return false
			}
		}
		sess.Integrations = append(sess.Integrations, name)
		return true
	})
}

func (s *sessionServiceImpl) DisableIntegration(ctx context.Context, sessionID string, name string) error {
	return s.mutateLive(ctx, sessionID, func(sess *entity.Session) bool {
		for i, n := range sess.Integrations {
			if n == name {
				sess.Integrations = append(sess.Integrations[:i], sess.Integrations[i+1:]...)
				return true
			}
		}
		return false
	})
}

func (s *sessionServiceImpl) SetVar(ctx context.Context, sessionID string, key string, value string) error {
	if key == "" {
		return xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}
	return s.mutateLive(ctx, sessionID, func(sess *entity.Session) bool {
		if sess.Vars == nil {
			sess.Vars = map[string]string{}
		}
		if old, ok := sess.Vars[key]; ok && old == value {
			return false
		}
		sess.Vars[key] = value
		return true
	})
}

func (s *sessionServiceImpl) GetVar(ctx context.Context, sessionID string, key string) (string, bool, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return "", false, err
	}
	value, ok := sess.Vars[key]
	return value, ok, nil
}

func (s *sessionServiceImpl) SetCurrentTask(ctx context.Context, sessionID string, task string) error {
	return s.mutateLive(ctx, sessionID, func(sess *entity.Session) bool {
		if sess.CurrentTask == task {
			return false
		}
		sess.CurrentTask = task
		return true
	})
}

func (s *sessionServiceImpl) ClearCurrentTask(ctx context.Context, sessionID string) error {
	return s.SetCurrentTask(ctx, sessionID, "")
}

func (s *sessionServiceImpl) SweepIdle(ctx context.Context) (int, int, error) {
	now := time.Now()

	ended := 0
	idle, err := s.sessionRepo.ListIdleBefore(ctx, now.Add(-s.idleAfter), sweepBatch)
	if err != nil {
		zlog.Error(err.Error())
		return 0, 0, xerr.ErrServerError
	}
	for i := range idle {
		sess := idle[i]
		sess.Status = entity.StatusEnded
		endedAt := now
		sess.EndedAt = &endedAt
		sess.CurrentTask = ""
		if err := s.sessionRepo.Update(ctx, &sess); err != nil {
			zlog.Error(err.Error())
			continue
		}
		ended++
	}

	purged := 0
	expired, err := s.sessionRepo.ListEndedBefore(ctx, now.Add(-s.purgeAfter), sweepBatch)
	if err != nil {
		zlog.Error(err.Error())
		return ended, 0, xerr.ErrServerError
	}
	for i := range expired {
		sess := expired[i]
		if err := s.messageRepo.DeleteBySession(ctx, sess.SessionID); err != nil {
			zlog.Error(err.Error())
			continue
		}
		if err := s.sessionRepo.Delete(ctx, sess.SessionID); err != nil {
			zlog.Error(err.Error())
			continue
		}
		purged++
	}

	if ended > 0 || purged > 0 {
		zlog.Info("session sweep finished", zap.Int("ended", ended), zap.Int("purged", purged))
	}
	return ended, purged, nil
}

// load 读取会话，区分不存在与其他存储错误
func (s *sessionServiceImpl) load(ctx context.Context, sessionID string) (*entity.Session, error) {
	if sessionID == "" {
		return nil, xerr.New(xerr.BadRequest, xerr.ErrParam.Message)
	}
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrSessionNotFound
		}
		zlog.Error(err.Error())
		return nil, xerr.ErrServerError
	}
	return sess, nil
}

// mutateLive 对未结束会话应用变更，mutate 返回 false 表示无变化直接成功
func (s *sessionServiceImpl) mutateLive(ctx context.Context, sessionID string, mutate func(sess *entity.Session) bool) error {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.IsEnded() {
		return xerr.ErrSessionEnded
	}
	if !mutate(sess) {
		return nil
	}
	sess.LastActiveAt = time.Now()
	if err := s.sessionRepo.Update(ctx, sess); err != nil {
		zlog.Error(err.Error())
		return xerr.ErrServerError
	}
	return nil
}
