package fx_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/fx"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/testutil"
)

type countingSource struct {
	calls atomic.Int32
	rate  decimal.Decimal
}

func (c *countingSource) MidRate(context.Context, domain.Currency, domain.Currency) (decimal.Decimal, error) {
	c.calls.Add(1)
	return c.rate, nil
}

func TestCachedRates_ReadThrough(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	src := &countingSource{rate: decimal.RequireFromString("0.79")}
	cached := fx.NewCachedRates(src, rdb, time.Minute)
	ctx := context.Background()

	for range 3 {
		rate, err := cached.MidRate(ctx, domain.CurrencyUSD, domain.CurrencyGBP)
		require.NoError(t, err)
		assert.True(t, rate.Equal(src.rate))
	}
	assert.Equal(t, int32(1), src.calls.Load())

	ttl, err := rdb.TTL(ctx, "fx:rate:USD:GBP").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestCachedRates_RedisDownFallsBackToSource(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer rdb.Close()

	src := &countingSource{rate: decimal.RequireFromString("1.087")}
	cached := fx.NewCachedRates(src, rdb, time.Minute)

	rate, err := cached.MidRate(context.Background(), domain.CurrencyEUR, domain.CurrencyUSD)
	require.NoError(t, err)
	assert.True(t, rate.Equal(src.rate))
	assert.Equal(t, int32(1), src.calls.Load())
}
