package fx

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
)

// RateSource yields the mid-market rate for one unit of from in to.
type RateSource interface {
	MidRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error)
}

type Quote struct {
	FromCurrency  domain.Currency
	ToCurrency    domain.Currency
	MidMarketRate decimal.Decimal
	EffectiveRate decimal.Decimal
	SpreadPct     decimal.Decimal
}

type Conversion struct {
	SourceAmount  decimal.Decimal
	DestAmount    decimal.Decimal
	ExchangeRate  decimal.Decimal
	MidMarketRate decimal.Decimal
}

type RateService struct {
	source    RateSource
	spreadPct decimal.Decimal
}

func NewRateService(source RateSource, spreadPct float64) *RateService {
	return &RateService{
		source:    source,
		spreadPct: decimal.NewFromFloat(spreadPct),
	}
}

func (s *RateService) GetRate(ctx context.Context, from, to domain.Currency) (*Quote, error) {
	if !from.IsValid() || !to.IsValid() {
		return nil, fmt.Errorf("GetRate: invalid currency pair %s/%s: %w", from, to, domain.ErrInvalidCurrency)
	}

	if from == to {
		return &Quote{
			FromCurrency:  from,
			ToCurrency:    to,
			MidMarketRate: decimal.NewFromInt(1),
			EffectiveRate: decimal.NewFromInt(1),
			SpreadPct:     decimal.Zero,
		}, nil
	}

	mid, err := s.source.MidRate(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("GetRate: %w", err)
	}
	if !mid.IsPositive() {
		return nil, fmt.Errorf("GetRate: non-positive rate %s for %s/%s: %w", mid, from, to, domain.ErrRateUnavailable)
	}

	return &Quote{
		FromCurrency:  from,
		ToCurrency:    to,
		MidMarketRate: mid,
		EffectiveRate: mid.Mul(decimal.NewFromInt(1).Sub(s.spreadPct)),
		SpreadPct:     s.spreadPct,
	}, nil
}

// Convert prices amount of from in to, rounded to the target currency's
// minor unit. A result that rounds to zero is rejected as an invalid amount.
func (s *RateService) Convert(ctx context.Context, amount decimal.Decimal, from, to domain.Currency) (*Conversion, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("Convert: %w", domain.ErrInvalidAmount)
	}

	quote, err := s.GetRate(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("Convert: %w", err)
	}

	if from == to {
		return &Conversion{
			SourceAmount:  amount,
			DestAmount:    amount,
			ExchangeRate:  quote.EffectiveRate,
			MidMarketRate: quote.MidMarketRate,
		}, nil
	}

	dest := amount.Mul(quote.EffectiveRate).Round(to.Scale())
	if !dest.IsPositive() {
		return nil, fmt.Errorf("Convert: %s %s rounds to zero in %s: %w", amount, from, to, domain.ErrInvalidAmount)
	}

	return &Conversion{
		SourceAmount:  amount,
		DestAmount:    dest,
		ExchangeRate:  quote.EffectiveRate,
		MidMarketRate: quote.MidMarketRate,
	}, nil
}
