package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// ScanLimiter throttles the validation endpoint per validator (falling
// back to client IP) with a fixed one-minute window in redis. A stolen
// code cannot be brute-force replayed through the gate API faster than
// the limit allows.
type ScanLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewScanLimiter(redisClient *redis.Client, limit int) *ScanLimiter {
	if limit <= 0 {
		limit = 60
	}
	return &ScanLimiter{
		redis:  redisClient,
		limit:  limit,
		window: time.Minute,
	}
}

// Guard is a route middleware in the router's BindFunc form.
func (l *ScanLimiter) Guard(e *core.RequestEvent) error {
	identity := e.RealIP()
	if e.Auth != nil {
		identity = "user:" + e.Auth.Id
	}

	if !l.allow(e.Request.Context(), identity) {
		return e.JSON(http.StatusTooManyRequests, map[string]string{
			"error": "Rate limit exceeded. Please try again later.",
		})
	}

	return e.Next()
}

func (l *ScanLimiter) allow(ctx context.Context, identity string) bool {
	key := fmt.Sprintf("scanlimit:%s", identity)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		// Redis being down must not close the gate; log and let the
		// scan through.
		slog.Error("scan limiter unavailable", "error", err)
		return true
	}

	if count == 1 {
		l.redis.Expire(ctx, key, l.window)
	}

	return count <= int64(l.limit)
}
