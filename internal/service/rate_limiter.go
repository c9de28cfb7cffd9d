package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RateLimiter enforces per-key request ceilings with a Redis-backed sliding
// window. Redis failures count as exhausted limits so an unreachable Redis
// never turns the limiter off.
type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// CheckLimit records one hit against key and reports whether it stayed
// within limit for the window, plus when the window frees up again.
func (r *RateLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	now := time.Now()
	redisKey := "ratelimit:" + key

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rate limiter check failed, denying request")
		return false, now.Add(window)
	}

	if countCmd.Val() >= int64(limit) {
		// The window frees up when the oldest recorded hit leaves it.
		resetAt := now.Add(window)
		if oldest, err := r.client.ZRangeWithScores(ctx, redisKey, 0, 0).Result(); err == nil && len(oldest) > 0 {
			resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(window)
		}
		return false, resetAt
	}

	pipe = r.client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rate limiter record failed, denying request")
		return false, now.Add(window)
	}

	return true, now.Add(window)
}
