package persistence

import (
	"context"
	"sync"
	"time"

	"NotaLink/internal/modules/capability/domain/entity"
	"NotaLink/internal/modules/capability/domain/repository"

	"gorm.io/gorm"
)

type memoryEntitlementRepository struct {
	mu   sync.RWMutex
	ents map[string]*entity.Entitlement
}

func NewMemoryEntitlementRepository() repository.EntitlementRepository {
	return &memoryEntitlementRepository{ents: make(map[string]*entity.Entitlement)}
}

func (r *memoryEntitlementRepository) Get(ctx context.Context, userID string) (*entity.Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.ents[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *ent
	return &cp, nil
}

func (r *memoryEntitlementRepository) Upsert(ctx context.Context, ent *entity.Entitlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ent
	cp.UpdatedAt = time.Now()
	r.ents[ent.UserID] = &cp
	return nil
}

type memoryUsageRepository struct {
	mu      sync.Mutex
	nextID  int64
	records []entity.UsageRecord
}

func NewMemoryUsageRepository() repository.UsageRepository {
	return &memoryUsageRepository{}
}

func (r *memoryUsageRepository) Record(ctx context.Context, rec *entity.UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rec.ID = r.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	r.records = append(r.records, *rec)
	return nil
}

func (r *memoryUsageRepository) CountSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for i := range r.records {
		if r.records[i].UserID == userID && !r.records[i].CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *memoryUsageRepository) ListByUser(ctx context.Context, userID string, limit int) ([]entity.UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.UsageRecord
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].UserID != userID {
			continue
		}
		out = append(out, r.records[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type memoryCredentialRepository struct {
	mu    sync.RWMutex
	creds map[string]*entity.Credential
}

func NewMemoryCredentialRepository() repository.CredentialRepository {
	return &memoryCredentialRepository{creds: make(map[string]*entity.Credential)}
}

func credKey(userID string, provider string) string {
	return userID + "/" + provider
}

func (r *memoryCredentialRepository) Get(ctx context.Context, userID string, provider string) (*entity.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.creds[credKey(userID, provider)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *cred
	return &cp, nil
}

func (r *memoryCredentialRepository) Set(ctx context.Context, cred *entity.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cred
	cp.UpdatedAt = time.Now()
	r.creds[credKey(cred.UserID, cred.Provider)] = &cp
	return nil
}

func (r *memoryCredentialRepository) Delete(ctx context.Context, userID string, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.creds, credKey(userID, provider))
	return nil
}

type memoryAuditOutboxRepository struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]*entity.AuditEvent
	dedup  map[string]struct{}
}

func NewMemoryAuditOutboxRepository() repository.AuditOutboxRepository {
	return &memoryAuditOutboxRepository{
		events: make(map[int64]*entity.AuditEvent),
		dedup:  make(map[string]struct{}),
	}
}

func (r *memoryAuditOutboxRepository) Enqueue(ctx context.Context, ev *entity.AuditEvent) error {
	if ev == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.DedupKey != "" {
		if _, seen := r.dedup[ev.DedupKey]; seen {
			return nil
		}
		r.dedup[ev.DedupKey] = struct{}{}
	}
	r.nextID++
	cp := *ev
	cp.ID = r.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.NextRetryAt.IsZero() {
		cp.NextRetryAt = cp.CreatedAt
	}
	r.events[cp.ID] = &cp
	ev.ID = cp.ID
	return nil
}

func (r *memoryAuditOutboxRepository) ClaimForPublish(ctx context.Context, now time.Time, limit int) ([]*entity.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.AuditEvent
	for id := int64(1); id <= r.nextID && len(out) < limit; id++ {
		ev, ok := r.events[id]
		if !ok {
			continue
		}
		if ev.Status == entity.AuditPublished {
			continue
		}
		if ev.NextRetryAt.After(now) {
			continue
		}
		ev.Status = entity.AuditClaimed
		ev.NextRetryAt = now.Add(time.Minute)
		cp := *ev
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memoryAuditOutboxRepository) MarkPublished(ctx context.Context, id int64, partition int, offset int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := r.events[id]; ok {
		ev.Status = entity.AuditPublished
		ev.Partition = partition
		ev.Offset = offset
		published := at
		ev.PublishedAt = &published
		ev.LastError = ""
	}
	return nil
}

func (r *memoryAuditOutboxRepository) MarkPublishFailed(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := r.events[id]; ok {
		ev.Status = entity.AuditPending
		ev.RetryCount++
		ev.NextRetryAt = nextRetryAt
		ev.LastError = errMsg
	}
	return nil
}
