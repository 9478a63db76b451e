package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "profdash:ratelimit:"

// Limiter counts requests per key inside fixed time windows.
type Limiter interface {
	// Allow consumes one request from key's current window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	AllowN(ctx context.Context, key string, n, limit int, window time.Duration) (bool, error)
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
	Reset(ctx context.Context, key string, window time.Duration) error
}

// FixedWindowLimiter keeps one redis counter per key and window, so the
// limit holds across every instance sharing the redis.
type FixedWindowLimiter struct {
	redis    *redis.Client
	log      *zap.Logger
	failOpen bool
	now      func() time.Time
}

// NewFixedWindowLimiter with failOpen set lets requests through when redis
// is unreachable.
func NewFixedWindowLimiter(redisClient *redis.Client, log *zap.Logger, failOpen bool) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		redis:    redisClient,
		log:      log,
		failOpen: failOpen,
		now:      time.Now,
	}
}

func (l *FixedWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.AllowN(ctx, key, 1, limit, window)
}

func (l *FixedWindowLimiter) AllowN(ctx context.Context, key string, n, limit int, window time.Duration) (bool, error) {
	if window < time.Second {
		return false, fmt.Errorf("rate limit window too small: %s", window)
	}
	bucket := l.bucketKey(key, window)

	pipe := l.redis.TxPipeline()
	incr := pipe.IncrBy(ctx, bucket, int64(n))
	pipe.Expire(ctx, bucket, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			l.log.Warn("rate limit check failed, allowing request", zap.String("key", key), zap.Error(err))
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incr.Val()
	if count > int64(limit) {
		l.log.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", limit),
		)
		return false, nil
	}
	return true, nil
}

// Remaining reports how many requests key has left in the current window.
func (l *FixedWindowLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	count, err := l.redis.Get(ctx, l.bucketKey(key, window)).Int()
	if errors.Is(err, redis.Nil) {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	return max(limit-count, 0), nil
}

// Reset clears key's counter for the current window.
func (l *FixedWindowLimiter) Reset(ctx context.Context, key string, window time.Duration) error {
	if err := l.redis.Del(ctx, l.bucketKey(key, window)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for %s: %w", key, err)
	}
	return nil
}

// bucketKey 同一窗口内的请求落在同一个 key 上
func (l *FixedWindowLimiter) bucketKey(key string, window time.Duration) string {
	slot := l.now().Unix() / int64(window/time.Second)
	return fmt.Sprintf("%s%s:%d", keyPrefix, key, slot)
}
