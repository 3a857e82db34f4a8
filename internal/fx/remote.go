package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
)

// RemoteRates reads pair rates from an exchangerate-api compatible endpoint:
// GET {baseURL}/{apiKey}/pair/{from}/{to}.
type RemoteRates struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRemoteRates(baseURL, apiKey string) *RemoteRates {
	return &RemoteRates{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type pairResponse struct {
	Result         string      `json:"result"`
	ErrorType      string      `json:"error-type"`
	ConversionRate json.Number `json:"conversion_rate"`
}

func (c *RemoteRates) MidRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	log := logging.FromContext(ctx)

	url := fmt.Sprintf("%s/%s/pair/%s/%s", c.baseURL, c.apiKey, from, to)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("MidRate: build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("MidRate: send: %w: %w", domain.ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	log.Debug("fx provider response received",
		"pair", pairKey(from, to),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	dec := json.NewDecoder(io.LimitReader(resp.Body, 64<<10))
	dec.UseNumber()

	var body pairResponse
	if err := dec.Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("MidRate: decode (status %d): %w: %w", resp.StatusCode, domain.ErrRateUnavailable, err)
	}

	if body.Result != "success" {
		if body.ErrorType == "unsupported-code" {
			return decimal.Zero, fmt.Errorf("MidRate: unsupported pair %s/%s: %w", from, to, domain.ErrInvalidCurrency)
		}
		return decimal.Zero, fmt.Errorf("MidRate: provider error %q (status %d): %w", body.ErrorType, resp.StatusCode, domain.ErrRateUnavailable)
	}

	rate, err := decimal.NewFromString(body.ConversionRate.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("MidRate: rate %q: %w: %w", body.ConversionRate, domain.ErrRateUnavailable, err)
	}
	return rate, nil
}
