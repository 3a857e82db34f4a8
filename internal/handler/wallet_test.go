package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/service"
)

type fakeWallets struct {
	owner   uuid.UUID
	wallet  domain.Wallet
	entries []domain.LedgerEntry
	err     error

	gotLimit, gotOffset int
}

func (f *fakeWallets) CreateWallet(_ context.Context, userID uuid.UUID, currency domain.Currency, metadata map[string]any) (*domain.Wallet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Wallet{ID: uuid.New(), OwnerID: userID, Currency: currency, IsDefault: true, Metadata: metadata, CreatedAt: time.Now()}, nil
}

func (f *fakeWallets) ListWallets(_ context.Context, userID uuid.UUID) ([]domain.Wallet, error) {
	if userID != f.owner {
		return nil, nil
	}
	return []domain.Wallet{f.wallet}, nil
}

func (f *fakeWallets) Balance(_ context.Context, userID, walletID uuid.UUID) (*service.Balance, error) {
	if userID != f.owner || walletID != f.wallet.ID {
		return nil, fmt.Errorf("Balance: %w", domain.ErrNotFound)
	}
	return &service.Balance{WalletID: walletID, Currency: f.wallet.Currency, Balance: decimal.RequireFromString("84.5"), Version: 3}, nil
}

func (f *fakeWallets) Ledger(_ context.Context, userID, walletID uuid.UUID, limit, offset int) (*service.LedgerPage, error) {
	f.gotLimit, f.gotOffset = limit, offset
	if userID != f.owner || walletID != f.wallet.ID {
		return nil, fmt.Errorf("Ledger: %w", domain.ErrNotFound)
	}
	return &service.LedgerPage{Entries: f.entries, Total: len(f.entries)}, nil
}

func newFakeWallets() *fakeWallets {
	owner := uuid.New()
	w := domain.Wallet{ID: uuid.New(), OwnerID: owner, Currency: domain.CurrencyUSD, IsDefault: true, Version: 3}
	key := "k1"
	return &fakeWallets{
		owner:  owner,
		wallet: w,
		entries: []domain.LedgerEntry{
			{ID: uuid.New(), WalletID: w.ID, EntryType: domain.EntryTypeCredit, Amount: decimal.RequireFromString("100")},
			{ID: uuid.New(), WalletID: w.ID, EntryType: domain.EntryTypeDebit, Amount: decimal.RequireFromString("15.5"), IdempotencyKey: &key},
		},
	}
}

func TestWalletHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"created", `{"currency":"EUR","metadata":{"label":"travel"}}`, nil, http.StatusCreated, ""},
		{"missing currency", `{}`, nil, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"unknown currency", `{"currency":"JPY"}`, nil, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"bad json", `nope`, nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown user", `{"currency":"USD"}`, domain.ErrNotFound, http.StatusNotFound, "RESOURCE_NOT_FOUND"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newFakeWallets()
			svc.err = tc.svcErr
			h := NewWalletHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/wallets", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			h.Create(rr, authed(req, svc.owner))

			assert.Equal(t, tc.wantStatus, rr.Code)
			resp := decodeAPI(t, rr.Body.String())
			if tc.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
				return
			}
			data := resp.Data.(map[string]any)
			assert.Equal(t, "EUR", data["currency"])
			assert.Equal(t, "travel", data["metadata"].(map[string]any)["label"])
		})
	}
}

func TestWalletHandler_List(t *testing.T) {
	svc := newFakeWallets()
	h := NewWalletHandler(svc)

	rr := httptest.NewRecorder()
	h.List(rr, authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallets", nil), svc.owner))

	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeAPI(t, rr.Body.String()).Data.([]any)
	require.Len(t, data, 1)
	assert.Equal(t, svc.wallet.ID.String(), data[0].(map[string]any)["id"])
}

func TestWalletHandler_Balance(t *testing.T) {
	svc := newFakeWallets()
	h := NewWalletHandler(svc)

	tests := []struct {
		name       string
		user       uuid.UUID
		walletID   string
		wantStatus int
	}{
		{"owner sees balance", svc.owner, svc.wallet.ID.String(), http.StatusOK},
		{"stranger sees not found", uuid.New(), svc.wallet.ID.String(), http.StatusNotFound},
		{"malformed id", svc.owner, "not-a-uuid", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/wallets/"+tc.walletID+"/balance", nil)
			req.SetPathValue("id", tc.walletID)
			rr := httptest.NewRecorder()
			h.Balance(rr, authed(req, tc.user))

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				data := decodeAPI(t, rr.Body.String()).Data.(map[string]any)
				assert.Equal(t, "84.50", data["balance"])
				assert.Equal(t, "USD", data["currency"])
				assert.Equal(t, float64(3), data["version"])
			}
		})
	}
}

func TestWalletHandler_Ledger(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", http.StatusOK, defaultPageSize, 0},
		{"explicit page", "?limit=10&offset=20", http.StatusOK, 10, 20},
		{"limit too large", "?limit=1000", http.StatusBadRequest, 0, 0},
		{"negative offset", "?offset=-1", http.StatusBadRequest, 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newFakeWallets()
			h := NewWalletHandler(svc)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/wallets/"+svc.wallet.ID.String()+"/ledger"+tc.query, nil)
			req.SetPathValue("id", svc.wallet.ID.String())
			rr := httptest.NewRecorder()
			h.Ledger(rr, authed(req, svc.owner))

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus != http.StatusOK {
				return
			}
			assert.Equal(t, tc.wantLimit, svc.gotLimit)
			assert.Equal(t, tc.wantOffset, svc.gotOffset)

			data := decodeAPI(t, rr.Body.String()).Data.(map[string]any)
			assert.Equal(t, float64(2), data["total"])
			entries := data["entries"].([]any)
			require.Len(t, entries, 2)
			second := entries[1].(map[string]any)
			assert.Equal(t, "debit", second["entry_type"])
			assert.Equal(t, "15.5", second["amount"])
			assert.Equal(t, "k1", second["idempotency_key"])
		})
	}
}
