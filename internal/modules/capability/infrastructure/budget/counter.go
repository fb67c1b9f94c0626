package budget

import (
	"context"
	"sync"
	"time"
)

// Counter 能力调用的每日计数器。Incr 消耗 cost 个额度并返回当天累计值，
// 额度判定由调用方比较上限完成。
type Counter interface {
	Incr(ctx context.Context, userID string, cost int64, now time.Time) (int64, error)
	Peek(ctx context.Context, userID string, now time.Time) (int64, error)
}

func dayKey(userID string, now time.Time) string {
	return userID + ":" + now.Format("20060102")
}

// memoryCounter 进程内计数器，无 Redis 时使用
type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	day    string
}

func NewMemoryCounter() Counter {
	return &memoryCounter{counts: make(map[string]int64)}
}

func (c *memoryCounter) Incr(ctx context.Context, userID string, cost int64, now time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotate(now)
	key := dayKey(userID, now)
	c.counts[key] += cost
	return c.counts[key], nil
}

func (c *memoryCounter) Peek(ctx context.Context, userID string, now time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotate(now)
	return c.counts[dayKey(userID, now)], nil
}

// rotate 跨天时丢弃昨日计数，防止 map 无限增长
func (c *memoryCounter) rotate(now time.Time) {
	day := now.Format("20060102")
	if c.day == day {
		return
	}
	c.day = day
	c.counts = make(map[string]int64)
}
