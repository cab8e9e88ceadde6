package security

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis     *redis.Client
	perMinute int64
}

func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &RateLimiter{redis: redisClient, perMinute: int64(perMinute)}
}

// Allow counts one hit for key in the current fixed one-minute window. Redis
// being unreachable fails open so the webhook keeps working without it.
func (r *RateLimiter) Allow(ctx context.Context, key string) bool {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := r.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		r.redis.Expire(ctx, redisKey, time.Minute)
	}
	return count <= r.perMinute
}

// SenderRateLimit gates the chat webhook per remote address. Dispatch applies
// the per-sender check again once the payload names the sender.
func (r *RateLimiter) SenderRateLimit() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if !r.Allow(e.Request.Context(), "ip:"+e.RealIP()) {
			return apis.NewApiError(http.StatusTooManyRequests, "Too many requests", nil)
		}
		return e.Next()
	}
}
