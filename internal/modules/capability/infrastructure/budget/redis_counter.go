package budget

import (
	"context"
	"errors"
	"strconv"
	"time"

	"NotaLink/pkg/redis"

	goredis "github.com/redis/go-redis/v9"
)

// redisCounter 基于 Redis 的计数器，多实例部署共享同一份额度
type redisCounter struct {
	prefix string
}

func NewRedisCounter() Counter {
	return &redisCounter{prefix: "capability:budget:"}
}

func (c *redisCounter) Incr(ctx context.Context, userID string, cost int64, now time.Time) (int64, error) {
	key := c.prefix + dayKey(userID, now)
	count, err := redis.IncrBy(ctx, key, cost)
	if err != nil {
		return 0, err
	}
	if count == cost {
		// 首次计数时设置过期，窗口结束后自动清理
		if _, err := redis.Expire(ctx, key, 48*time.Hour); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (c *redisCounter) Peek(ctx context.Context, userID string, now time.Time) (int64, error) {
	key := c.prefix + dayKey(userID, now)
	raw, err := redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}
