package research

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores upstream responses for a limited time.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type noCache struct{}

func (noCache) Get(context.Context, string) ([]byte, bool) {
	return nil, false
}

func (noCache) Set(context.Context, string, []byte, time.Duration) {}

// RedisCache keeps entries under "research:<key>". Errors are logged and
// treated as misses.
type RedisCache struct {
	client redis.UniversalClient
	logger *zap.Logger
}

func NewRedisCache(client redis.UniversalClient, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, "research:"+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("research cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, "research:"+key, value, ttl).Err(); err != nil {
		c.logger.Warn("research cache write failed", zap.String("key", key), zap.Error(err))
	}
}
