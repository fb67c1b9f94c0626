package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"NotaLink/internal/modules/capability/domain/entity"
	"NotaLink/internal/modules/capability/infrastructure/mq"
	"NotaLink/internal/modules/capability/infrastructure/persistence"
	"NotaLink/internal/modules/capability/infrastructure/queue"
)

type fakePublisher struct {
	fail     bool
	messages []mq.Message
}

func (p *fakePublisher) Publish(ctx context.Context, msg mq.Message) (mq.PublishResult, error) {
	if p.fail {
		return mq.PublishResult{}, errors.New("broker unreachable")
	}
	p.messages = append(p.messages, msg)
	return mq.PublishResult{Partition: 0, Offset: int64(len(p.messages))}, nil
}

func (p *fakePublisher) Close() error { return nil }

func TestAuditRelayPublishesClaimedEvents(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewMemoryAuditOutboxRepository()
	pub := &fakePublisher{}
	relay := queue.NewAuditRelay(repo, pub, "notalink.audit", 10, time.Second)

	for i := 0; i < 2; i++ {
		ev := &entity.AuditEvent{
			EventType:   "capability_invoked",
			UserID:      "U1001",
			DedupKey:    "dk-" + string(rune('a'+i)),
			PayloadJSON: `{"capability":"echo"}`,
		}
		if err := repo.Enqueue(ctx, ev); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	n, err := relay.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 published, got %d", n)
	}
	if len(pub.messages) != 2 {
		t.Fatalf("expected 2 messages on the wire, got %d", len(pub.messages))
	}
	if pub.messages[0].Topic != "notalink.audit" {
		t.Fatalf("unexpected topic %s", pub.messages[0].Topic)
	}
	if string(pub.messages[0].Key) != "dk-a" {
		t.Fatalf("expected dedup key as partition key, got %s", pub.messages[0].Key)
	}

	// 已发布事件不会被再次认领
	events, err := repo.ClaimForPublish(ctx, time.Now().Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("ClaimForPublish failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no reclaimable events, got %d", len(events))
	}
}

func TestAuditRelayRetriesFailedPublish(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewMemoryAuditOutboxRepository()
	pub := &fakePublisher{fail: true}
	relay := queue.NewAuditRelay(repo, pub, "notalink.audit", 10, time.Second)

	ev := &entity.AuditEvent{
		EventType:   "capability_invoked",
		UserID:      "U1001",
		DedupKey:    "dk-retry",
		PayloadJSON: `{}`,
	}
	if err := repo.Enqueue(ctx, ev); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	n, err := relay.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected nothing published, got %d", n)
	}

	// 失败事件带退避时间回池，之后可再次认领
	pub.fail = false
	events, err := repo.ClaimForPublish(ctx, time.Now().Add(10*time.Minute), 10)
	if err != nil {
		t.Fatalf("ClaimForPublish failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected failed event back in the pool, got %d", len(events))
	}
	if events[0].RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", events[0].RetryCount)
	}
}

func TestDuplicateEnqueueIsDropped(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewMemoryAuditOutboxRepository()

	for i := 0; i < 2; i++ {
		ev := &entity.AuditEvent{EventType: "capability_invoked", DedupKey: "same-key", PayloadJSON: `{}`}
		if err := repo.Enqueue(ctx, ev); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	events, err := repo.ClaimForPublish(ctx, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("ClaimForPublish failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected dedup to keep one event, got %d", len(events))
	}
}
