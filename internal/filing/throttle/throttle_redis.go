package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "taxfiling/pkg/domain"
)

// Redis is a fixed-window counter shared across instances: INCR the owner's
// window key, set the TTL on first increment.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedis constructs a redis-backed limiter.
func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{client: client, limit: limit, window: window}
}

func (l *Redis) Allow(ctx context.Context, owner id.UserID) (bool, error) {
	key := fmt.Sprintf("taxfiling:compute:%s", owner.String())
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("throttle incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("throttle expire: %w", err)
		}
	}
	return count <= int64(l.limit), nil
}
