package middleware

import (
	"context"
	"strconv"
	"time"

	"creatorhub-engine/pkg/errutil"
	"creatorhub-engine/pkg/rediskey"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Counter increments a windowed counter and returns the new value.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) Counter {
	return &redisCounter{rdb: rdb}
}

func (r *redisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Throttle limits requests per client IP in fixed windows. It fails open when
// the counter store is unavailable.
func Throttle(counter Counter, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if counter == nil || limit <= 0 {
			c.Next()
			return
		}

		now := time.Now()
		key := rediskey.BuildThrottleKey(c.ClientIP(), now, window)

		n, err := counter.Incr(c.Request.Context(), key, window)
		if err != nil {
			zap.L().Warn("throttle counter unavailable", zap.Error(err))
			c.Next()
			return
		}

		remaining := int64(limit) - n
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if n > int64(limit) {
			be := errutil.From(errutil.TooManyRequest("too many requests", nil))
			c.AbortWithStatusJSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		c.Next()
	}
}
