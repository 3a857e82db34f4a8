package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/auth"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/testutil"
)

type brokenCounter struct{}

func (brokenCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "incr", key)
	cmd.SetErr(errors.New("connection refused"))
	return cmd
}

func (brokenCounter) Expire(ctx context.Context, key string, _ time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx, "expire", key)
	cmd.SetErr(errors.New("connection refused"))
	return cmd
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
}

func requestAs(userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", nil)
	return req.WithContext(auth.ContextWithUserID(req.Context(), userID))
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := RateLimit(brokenCounter{}, "transfers", 1, time.Minute)(okHandler())

	for range 3 {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestAs(uuid.New()))
		assert.Equal(t, http.StatusAccepted, rr.Code)
	}
}

func TestRateLimit_AnonymousPassesThrough(t *testing.T) {
	h := RateLimit(brokenCounter{}, "transfers", 1, time.Minute)(okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/transfers", nil))

	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestRateLimit_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	rdb := testutil.SetupTestRedis(t)
	h := RateLimit(rdb, "transfers", 2, time.Minute)(okHandler())
	alice, bob := uuid.New(), uuid.New()

	for i := range 2 {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestAs(alice))
		assert.Equal(t, http.StatusAccepted, rr.Code, "request %d", i+1)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestAs(alice))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "RATE_LIMITED")
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestAs(bob))
	assert.Equal(t, http.StatusAccepted, rr.Code, "limits are per user")

	keys, err := rdb.Keys(context.Background(), "ratelimit:transfers:"+alice.String()+":*").Result()
	assert.NoError(t, err)
	if assert.Len(t, keys, 1) {
		ttl, err := rdb.TTL(context.Background(), keys[0]).Result()
		assert.NoError(t, err)
		assert.Positive(t, ttl)
	}
}
