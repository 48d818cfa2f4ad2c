package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "redeem_attempts:"

// RedemptionThrottle bounds redemption attempts per license key to slow key
// scanning against the public redeem endpoint. It is advisory: when Redis is
// absent or unreachable the request is allowed through, since availability of
// redemption matters more than the guard.
type RedemptionThrottle struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
	logger      *zap.Logger
}

// NewRedemptionThrottle constructs the throttle. A nil client disables it.
func NewRedemptionThrottle(client *redis.Client, maxAttempts int, window time.Duration, logger *zap.Logger) *RedemptionThrottle {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedemptionThrottle{
		client:      client,
		maxAttempts: maxAttempts,
		window:      window,
		logger:      logger,
	}
}

// Allow records an attempt against the key and reports whether it is within
// the window budget.
func (t *RedemptionThrottle) Allow(ctx context.Context, key string) bool {
	if t == nil || t.client == nil {
		return true
	}
	redisKey := keyPrefix + key
	count, err := t.client.Incr(ctx, redisKey).Result()
	if err != nil {
		t.logger.Warn("redemption throttle unavailable", zap.Error(err))
		return true
	}
	if count == 1 {
		if err := t.client.Expire(ctx, redisKey, t.window).Err(); err != nil {
			t.logger.Warn("redemption throttle expire failed", zap.Error(err))
		}
	}
	return count <= int64(t.maxAttempts)
}
