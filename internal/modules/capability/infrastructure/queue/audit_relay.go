package queue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"NotaLink/internal/modules/capability/domain/repository"
	"NotaLink/internal/modules/capability/infrastructure/mq"
	"NotaLink/pkg/zlog"

	"go.uber.org/zap"
)

// AuditRelay 轮询审计 outbox 并投递到 Kafka。
// 投递失败按指数退避重排，成功后标记已发布。
type AuditRelay struct {
	repo         repository.AuditOutboxRepository
	pub          mq.Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
}

func NewAuditRelay(repo repository.AuditOutboxRepository, pub mq.Publisher, topic string, batchSize int, pollInterval time.Duration) *AuditRelay {
	if batchSize <= 0 {
		batchSize = 200
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &AuditRelay{
		repo:         repo,
		pub:          pub,
		topic:        strings.TrimSpace(topic),
		batchSize:    batchSize,
		pollInterval: pollInterval,
	}
}

func (r *AuditRelay) Run(ctx context.Context) error {
	if r.repo == nil {
		return errors.New("audit outbox repo is nil")
	}
	if r.pub == nil {
		return errors.New("publisher is nil")
	}
	if r.topic == "" {
		return errors.New("audit topic is empty")
	}

	backoff := r.pollInterval
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.RunOnce(ctx)
		if err != nil {
			time.Sleep(backoff)
			backoff = backoff * 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}
		backoff = r.pollInterval

		if n == 0 {
			time.Sleep(r.pollInterval)
		}
	}
}

func (r *AuditRelay) RunOnce(ctx context.Context) (int, error) {
	now := time.Now()
	events, err := r.repo.ClaimForPublish(ctx, now, r.batchSize)
	if err != nil {
		zlog.Warn("audit relay claim failed", zap.Error(err))
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := 0
	for i := range events {
		ev := events[i]

		key := []byte(ev.DedupKey)
		if len(key) == 0 {
			key = []byte(strconv.FormatInt(ev.ID, 10))
		}

		res, pubErr := r.pub.Publish(ctx, mq.Message{
			Topic: r.topic,
			Key:   key,
			Value: []byte(ev.PayloadJSON),
			Headers: map[string]string{
				"event_type": ev.EventType,
				"user_id":    ev.UserID,
				"dedup_key":  ev.DedupKey,
			},
		})
		if pubErr != nil {
			next := computeNextRetry(now, ev.RetryCount)
			_ = r.repo.MarkPublishFailed(ctx, ev.ID, next, pubErr.Error())
			continue
		}

		if err := r.repo.MarkPublished(ctx, ev.ID, int(res.Partition), res.Offset, time.Now()); err != nil {
			zlog.Warn("audit relay mark published failed", zap.Int64("id", ev.ID), zap.Error(err))
			continue
		}
		published++
	}

	return published, nil
}

func computeNextRetry(now time.Time, retryCount int) time.Time {
	if retryCount < 0 {
		retryCount = 0
	}
	d := 500 * time.Millisecond
	for i := 0; i < retryCount && d < 5*time.Minute; i++ {
		d = d * 2
	}
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return now.Add(d)
}
