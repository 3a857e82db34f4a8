package fx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/config"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
)

// StaticRates serves a fixed table. Used in development and tests.
type StaticRates struct {
	rates map[string]decimal.Decimal
}

func NewStaticRates() *StaticRates {
	return &StaticRates{
		rates: map[string]decimal.Decimal{
			"USD_EUR": decimal.RequireFromString("0.92"),
			"EUR_USD": decimal.RequireFromString("1.087"),
			"USD_GBP": decimal.RequireFromString("0.79"),
			"GBP_USD": decimal.RequireFromString("1.266"),
			"EUR_GBP": decimal.RequireFromString("0.858"),
			"GBP_EUR": decimal.RequireFromString("1.166"),
			"USD_NGN": decimal.RequireFromString("1550"),
			"NGN_USD": decimal.RequireFromString("0.000645"),
			"EUR_NGN": decimal.RequireFromString("1685"),
			"NGN_EUR": decimal.RequireFromString("0.000593"),
			"GBP_NGN": decimal.RequireFromString("1962"),
			"NGN_GBP": decimal.RequireFromString("0.00051"),
		},
	}
}

func pairKey(from, to domain.Currency) string {
	return string(from) + "_" + string(to)
}

func (s *StaticRates) MidRate(_ context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	rate, ok := s.rates[pairKey(from, to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("MidRate: unsupported pair %s/%s: %w", from, to, domain.ErrInvalidCurrency)
	}
	return rate, nil
}

// NewSource returns the rate source selected by FX_PROVIDER. Remote rates
// are read through the Redis cache; the static table needs none.
func NewSource(cfg *config.Config, rdb *redis.Client) RateSource {
	if cfg.FXProvider != "remote" {
		return NewStaticRates()
	}
	return NewCachedRates(NewRemoteRates(cfg.FXAPIURL, cfg.FXAPIKey), rdb, cfg.FXCacheTTL())
}
