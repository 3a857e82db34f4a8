package fx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
)

// CachedRates is a read-through Redis cache in front of another source.
// Redis failures degrade to calling the source directly.
type CachedRates struct {
	next RateSource
	rdb  *redis.Client
	ttl  time.Duration
}

func NewCachedRates(next RateSource, rdb *redis.Client, ttl time.Duration) *CachedRates {
	return &CachedRates{next: next, rdb: rdb, ttl: ttl}
}

func cacheKey(from, to domain.Currency) string {
	return fmt.Sprintf("fx:rate:%s:%s", from, to)
}

func (c *CachedRates) MidRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	log := logging.FromContext(ctx)
	key := cacheKey(from, to)

	cached, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if rate, perr := decimal.NewFromString(cached); perr == nil {
			return rate, nil
		}
		log.Warn("discarding malformed cached fx rate", "key", key, "value", cached)
	case !errors.Is(err, redis.Nil):
		log.Warn("fx rate cache read failed", "key", key, "error", err)
	}

	rate, err := c.next.MidRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("CachedRates.MidRate: %w", err)
	}

	if err := c.rdb.Set(ctx, key, rate.String(), c.ttl).Err(); err != nil {
		log.Warn("fx rate cache write failed", "key", key, "error", err)
	}
	return rate, nil
}
