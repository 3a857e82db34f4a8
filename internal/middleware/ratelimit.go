package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/auth"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/handler"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
)

type windowCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RateLimit caps each authenticated user at limit requests per window using
// a fixed-window counter in Redis. Requests pass through when Redis fails.
func RateLimit(rdb windowCounter, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			bucket := now.Truncate(window)
			key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, userID, bucket.Unix())

			count, err := rdb.Incr(r.Context(), key).Result()
			if err != nil {
				logging.FromContext(r.Context()).Warn("rate limiter unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				if err := rdb.Expire(r.Context(), key, window).Err(); err != nil {
					logging.FromContext(r.Context()).Warn("rate limiter expire failed", "key", key, "error", err)
				}
			}

			remaining := max(int64(limit)-count, 0)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(limit) {
				retryAfter := int(bucket.Add(window).Sub(now).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				handler.RespondAppError(w, handler.ErrRateLimited, nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
