package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"verification-service/internal/client"
	"verification-service/internal/util"
)

const (
	rateLimitPrefix = "rate_limit:"
	tempLockPrefix  = "temp_lock:"
)

// RateLimitCache backs the fixed-window and sliding-window limiters with
// Redis counters. All keys carry a TTL so windows clean themselves up.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

// IncrementCounter bumps a fixed-window counter, creating it with the window
// TTL on first use. INCR and EXPIRE run in one transaction.
func (c *RateLimitCache) IncrementCounter(ctx context.Context, key string, ttl time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rateLimitKey := rateLimitPrefix + key

	count, err := c.client.IncrWithExpire(ctx, rateLimitKey, ttl)
	if err != nil {
		util.Error("Failed to increment rate limit counter",
			zap.String("key", key),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return int(count), nil
}

func (c *RateLimitCache) GetCounter(ctx context.Context, key string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rateLimitKey := rateLimitPrefix + key

	countStr, err := c.client.Get(ctx, rateLimitKey)
	if err != nil {
		if strings.Contains(err.Error(), "key not found") {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get rate limit counter: %w", err)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		util.Error("Invalid counter format",
			zap.String("key", key),
			zap.String("count_str", countStr),
			zap.Error(err))
		return 0, fmt.Errorf("invalid counter format: %w", err)
	}

	return count, nil
}

func (c *RateLimitCache) ResetCounter(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	keys := []string{
		rateLimitPrefix + key,
		tempLockPrefix + key,
	}

	if err := c.client.Del(ctx, keys...); err != nil {
		util.Error("Failed to reset rate limit counter",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}

	return nil
}

// SetTemporaryLock places a short deny-all lock on an abusive key.
func (c *RateLimitCache) SetTemporaryLock(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	lockKey := tempLockPrefix + key
	success, err := c.client.SetNX(ctx, lockKey, "locked", ttl)
	if err != nil {
		util.Error("Failed to set temporary lock",
			zap.String("key", key),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to set temporary lock: %w", err)
	}
	if !success {
		return fmt.Errorf("temporary lock already exists for key: %s", key)
	}
	return nil
}

func (c *RateLimitCache) IsLocked(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := c.client.Exists(ctx, tempLockPrefix+key)
	if err != nil {
		util.Error("Failed to check temporary lock",
			zap.String("key", key),
			zap.Error(err))
		return false, fmt.Errorf("failed to check temporary lock: %w", err)
	}

	return exists, nil
}

// SlidingWindowRateLimit admits at most limit events per rolling window,
// tracked in a ZSET and evaluated atomically in Lua. Members are unique per
// request so events landing in the same second all count.
func (c *RateLimitCache) SlidingWindowRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UnixMilli()
	windowStart := now - window.Milliseconds()

	luaScript := `
        local key = KEYS[1]
        local now = tonumber(ARGV[1])
        local window_start = tonumber(ARGV[2])
        local limit = tonumber(ARGV[3])
        local member = ARGV[4]

        redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

        local current_count = redis.call('ZCARD', key)

        if current_count < limit then
            redis.call('ZADD', key, now, member)
            redis.call('EXPIRE', key, math.ceil(tonumber(ARGV[5])))
            return {1, current_count + 1}
        else
            return {0, current_count}
        end
    `

	result, err := c.client.Eval(ctx, luaScript, []string{rateLimitPrefix + key},
		now, windowStart, limit, uuid.New().String(), int(window.Seconds()))
	if err != nil {
		util.Error("Failed to execute sliding window rate limit",
			zap.String("key", key),
			zap.Int("limit", limit),
			zap.Duration("window", window),
			zap.Error(err))
		return false, 0, fmt.Errorf("failed to execute sliding window rate limit: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 2 {
		return false, 0, fmt.Errorf("unexpected result format from sliding window script")
	}

	allowed := resultSlice[0].(int64) == 1
	currentCount := int(resultSlice[1].(int64))

	util.Debug("Sliding window rate limit check",
		zap.String("key", key),
		zap.Bool("allowed", allowed),
		zap.Int("current_count", currentCount),
		zap.Int("limit", limit))

	return allowed, currentCount, nil
}
