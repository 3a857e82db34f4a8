package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a client-supplied amount string into a positive decimal
// no finer than the currency's minor unit.
func ParseAmount(raw string, currency Currency) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("ParseAmount: empty: %w", ErrInvalidAmount)
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ParseAmount: %q: %w", raw, ErrInvalidAmount)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("ParseAmount: %s: %w", amount, ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(currency.Scale())) {
		return decimal.Zero, fmt.Errorf("ParseAmount: %s has more than %d decimal places: %w", amount, currency.Scale(), ErrInvalidAmount)
	}
	return amount, nil
}
