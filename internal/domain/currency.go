package domain

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyNGN Currency = "NGN"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyNGN:
		return true
	}
	return false
}

// Scale is the number of minor-unit digits amounts in this currency may carry.
func (c Currency) Scale() int32 {
	return 2
}
