package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/fx"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
)

type fxService interface {
	GetRate(ctx context.Context, from, to domain.Currency) (*fx.Quote, error)
	Convert(ctx context.Context, amount decimal.Decimal, from, to domain.Currency) (*fx.Conversion, error)
}

type FXHandler struct {
	fx fxService
}

func NewFXHandler(fxSvc fxService) *FXHandler {
	return &FXHandler{fx: fxSvc}
}

type fxQuoteResponse struct {
	FromCurrency  string  `json:"from_currency"`
	ToCurrency    string  `json:"to_currency"`
	MidMarketRate string  `json:"mid_market_rate"`
	EffectiveRate string  `json:"effective_rate"`
	SpreadPct     string  `json:"spread_pct,omitempty"`
	SourceAmount  *string `json:"source_amount,omitempty"`
	CreditAmount  *string `json:"credit_amount,omitempty"`
	Timestamp     string  `json:"timestamp"`
}

// Quote prices a cross-currency transfer before it is enqueued. With an
// amount it previews the credit the recipient would receive at today's rate;
// the worker prices again at commit time.
func (h *FXHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, rawAmount := q.Get("from"), q.Get("to"), q.Get("amount")

	if fields := validateFXParams(from, to); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}
	src, dst := domain.Currency(from), domain.Currency(to)
	log := logging.FromContext(r.Context())

	if rawAmount == "" {
		quote, err := h.fx.GetRate(r.Context(), src, dst)
		if err != nil {
			log.Warn("fx rate lookup failed", "error", err)
			RespondDomainError(w, err)
			return
		}
		RespondSuccess(w, http.StatusOK, fxQuoteResponse{
			FromCurrency:  string(quote.FromCurrency),
			ToCurrency:    string(quote.ToCurrency),
			MidMarketRate: quote.MidMarketRate.String(),
			EffectiveRate: quote.EffectiveRate.String(),
			SpreadPct:     quote.SpreadPct.String(),
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	amount, err := domain.ParseAmount(rawAmount, src)
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "amount", Message: "must be a positive decimal within the currency's precision"}})
		return
	}

	conv, err := h.fx.Convert(r.Context(), amount, src, dst)
	if err != nil {
		log.Warn("fx conversion failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	source, credit := conv.SourceAmount.String(), conv.DestAmount.String()
	RespondSuccess(w, http.StatusOK, fxQuoteResponse{
		FromCurrency:  from,
		ToCurrency:    to,
		MidMarketRate: conv.MidMarketRate.String(),
		EffectiveRate: conv.ExchangeRate.String(),
		SourceAmount:  &source,
		CreditAmount:  &credit,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

func validateFXParams(from, to string) []FieldError {
	var errs []FieldError

	if from == "" {
		errs = append(errs, FieldError{Field: "from", Message: "required"})
	} else if !domain.Currency(from).IsValid() {
		errs = append(errs, FieldError{Field: "from", Message: currencyHint})
	}

	if to == "" {
		errs = append(errs, FieldError{Field: "to", Message: "required"})
	} else if !domain.Currency(to).IsValid() {
		errs = append(errs, FieldError{Field: "to", Message: currencyHint})
	}

	return errs
}

const currencyHint = "must be USD, EUR, GBP, or NGN"
