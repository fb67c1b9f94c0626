package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"NotaLink/internal/modules/session/domain/entity"
	"NotaLink/internal/modules/session/domain/repository"

	"gorm.io/gorm"
)

// memorySessionRepository 内存会话存储，无 MySQL 时使用（本地开发与测试）
type memorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entity.Session
}

func NewMemorySessionRepository() repository.SessionRepository {
	return &memorySessionRepository{sessions: make(map[string]*entity.Session)}
}

func (r *memorySessionRepository) Create(ctx context.Context, session *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *session
	r.sessions[session.SessionID] = &cp
	return nil
}

func (r *memorySessionRepository) GetByID(ctx context.Context, sessionID string) (*entity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sess
	return &cp, nil
}

func (r *memorySessionRepository) GetLiveByUserChannel(ctx context.Context, userID string, channel string) (*entity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *entity.Session
	for _, sess := range r.sessions {
		if sess.UserID != userID || sess.Channel != channel || sess.Status == entity.StatusEnded {
			continue
		}
		if latest == nil || sess.LastActiveAt.After(latest.LastActiveAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *memorySessionRepository) GetLatestByUser(ctx context.Context, userID string) (*entity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *entity.Session
	for _, sess := range r.sessions {
		if sess.UserID != userID || sess.Status == entity.StatusEnded {
			continue
		}
		if latest == nil || sess.LastActiveAt.After(latest.LastActiveAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *memorySessionRepository) ListByUser(ctx context.Context, userID string, filter repository.SessionFilter) ([]entity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.Session
	for _, sess := range r.sessions {
		if sess.UserID != userID {
			continue
		}
		if filter.Status != nil && sess.Status != *filter.Status {
			continue
		}
		if filter.Channel != "" && sess.Channel != filter.Channel {
			continue
		}
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.After(out[j].LastActiveAt) })
	return out, nil
}

func (r *memorySessionRepository) Update(ctx context.Context, session *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *session
	r.sessions[session.SessionID] = &cp
	return nil
}

func (r *memorySessionRepository) Touch(ctx context.Context, sessionID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[sessionID]; ok {
		sess.LastActiveAt = at
	}
	return nil
}

func (r *memorySessionRepository) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *memorySessionRepository) ListIdleBefore(ctx context.Context, cutoff time.Time, limit int) ([]entity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.Session
	for _, sess := range r.sessions {
		if sess.Status == entity.StatusEnded {
			continue
		}
		if sess.LastActiveAt.Before(cutoff) {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.Before(out[j].LastActiveAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memorySessionRepository) ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]entity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.Session
	for _, sess := range r.sessions {
		if sess.Status != entity.StatusEnded || sess.EndedAt == nil {
			continue
		}
		if sess.EndedAt.Before(cutoff) {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.Before(*out[j].EndedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memoryMessageRepository 内存消息存储，与 memorySessionRepository 配套
type memoryMessageRepository struct {
	mu     sync.Mutex
	nextID int64
	msgs   map[string][]entity.SessionMessage
}

func NewMemoryMessageRepository() repository.MessageRepository {
	return &memoryMessageRepository{msgs: make(map[string][]entity.SessionMessage)}
}

func (r *memoryMessageRepository) Append(ctx context.Context, msg *entity.SessionMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	msg.ID = r.nextID
	r.msgs[msg.SessionID] = append(r.msgs[msg.SessionID], *msg)
	return nil
}

func (r *memoryMessageRepository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.msgs[sessionID])), nil
}

func (r *memoryMessageRepository) DeleteOldest(ctx context.Context, sessionID string, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 {
		return nil
	}
	list := r.msgs[sessionID]
	if n >= len(list) {
		r.msgs[sessionID] = nil
		return nil
	}
	r.msgs[sessionID] = append([]entity.SessionMessage(nil), list[n:]...)
	return nil
}

func (r *memoryMessageRepository) ListRecent(ctx context.Context, sessionID string, limit int) ([]entity.SessionMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.msgs[sessionID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return append([]entity.SessionMessage(nil), list...), nil
}

func (r *memoryMessageRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.msgs, sessionID)
	return nil
}
