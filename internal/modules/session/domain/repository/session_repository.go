package repository

import (
	"context"
	"time"

	"NotaLink/internal/modules/session/domain/entity"
)

// SessionFilter 会话列表过滤条件
type SessionFilter struct {
	Status  *int
	Channel string
}

type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, sessionID string) (*entity.Session, error)
	// GetLiveByUserChannel 返回 (user, channel) 下未结束的会话（active 或 paused）
	GetLiveByUserChannel(ctx context.Context, userID string, channel string) (*entity.Session, error)
	// GetLatestByUser 返回用户最近活跃的未结束会话
	GetLatestByUser(ctx context.Context, userID string) (*entity.Session, error)
	ListByUser(ctx context.Context, userID string, filter SessionFilter) ([]entity.Session, error)
	Update(ctx context.Context, session *entity.Session) error
	Touch(ctx context.Context, sessionID string, at time.Time) error
	Delete(ctx context.Context, sessionID string) error
	// ListIdleBefore 列出最后活跃时间早于 cutoff 的未结束会话
	ListIdleBefore(ctx context.Context, cutoff time.Time, limit int) ([]entity.Session, error)
	// ListEndedBefore 列出在 cutoff 之前结束、等待清理的会话
	ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]entity.Session, error)
}

type MessageRepository interface {
	Append(ctx context.Context, msg *entity.SessionMessage) error
	CountBySession(ctx context.Context, sessionID string) (int64, error)
	// DeleteOldest 按写入顺序删除最早的 n 条消息
	DeleteOldest(ctx context.Context, sessionID string, n int) error
	// ListRecent 返回最近 limit 条消息，按时间升序
	ListRecent(ctx context.Context, sessionID string, limit int) ([]entity.SessionMessage, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}
