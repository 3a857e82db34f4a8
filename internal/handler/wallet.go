package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/auth"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type walletService interface {
	CreateWallet(ctx context.Context, userID uuid.UUID, currency domain.Currency, metadata map[string]any) (*domain.Wallet, error)
	ListWallets(ctx context.Context, userID uuid.UUID) ([]domain.Wallet, error)
	Balance(ctx context.Context, userID, walletID uuid.UUID) (*service.Balance, error)
	Ledger(ctx context.Context, userID, walletID uuid.UUID, limit, offset int) (*service.LedgerPage, error)
}

type WalletHandler struct {
	wallets walletService
}

func NewWalletHandler(wallets walletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

type createWalletRequest struct {
	Currency string         `json:"currency"`
	Metadata map[string]any `json:"metadata"`
}

func (r createWalletRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: currencyHint})
	}
	return errs
}

type walletDTO struct {
	ID        uuid.UUID      `json:"id"`
	OwnerID   uuid.UUID      `json:"owner_id"`
	Currency  string         `json:"currency"`
	IsDefault bool           `json:"is_default"`
	Version   int64          `json:"version"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func toWalletDTO(w *domain.Wallet) walletDTO {
	return walletDTO{
		ID:        w.ID,
		OwnerID:   w.OwnerID,
		Currency:  string(w.Currency),
		IsDefault: w.IsDefault,
		Version:   w.Version,
		Metadata:  w.Metadata,
		CreatedAt: w.CreatedAt,
	}
}

type balanceDTO struct {
	WalletID uuid.UUID `json:"wallet_id"`
	Currency string    `json:"currency"`
	Balance  string    `json:"balance"`
	Version  int64     `json:"version"`
}

type ledgerEntryDTO struct {
	ID             uuid.UUID      `json:"id"`
	EntryType      string         `json:"entry_type"`
	Amount         string         `json:"amount"`
	TxID           *string        `json:"tx_id,omitempty"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type ledgerPageDTO struct {
	Entries []ledgerEntryDTO `json:"entries"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

func (h *WalletHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	wallet, err := h.wallets.CreateWallet(r.Context(), userID, domain.Currency(req.Currency), req.Metadata)
	if err != nil {
		logging.FromContext(r.Context()).Warn("wallet creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toWalletDTO(wallet))
}

func (h *WalletHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	wallets, err := h.wallets.ListWallets(r.Context(), userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]walletDTO, len(wallets))
	for i := range wallets {
		dtos[i] = toWalletDTO(&wallets[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, walletID, appErr := walletFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	bal, err := h.wallets.Balance(r.Context(), userID, walletID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, balanceDTO{
		WalletID: bal.WalletID,
		Currency: string(bal.Currency),
		Balance:  bal.Balance.StringFixed(bal.Currency.Scale()),
		Version:  bal.Version,
	})
}

func (h *WalletHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	userID, walletID, appErr := walletFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	limit, offset, fields := pageParams(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	page, err := h.wallets.Ledger(r.Context(), userID, walletID, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	entries := make([]ledgerEntryDTO, len(page.Entries))
	for i, e := range page.Entries {
		entries[i] = ledgerEntryDTO{
			ID:             e.ID,
			EntryType:      string(e.EntryType),
			Amount:         e.Amount.String(),
			TxID:           e.TxID,
			IdempotencyKey: e.IdempotencyKey,
			Metadata:       e.Metadata,
			CreatedAt:      e.CreatedAt,
		}
	}

	RespondSuccess(w, http.StatusOK, ledgerPageDTO{
		Entries: entries,
		Total:   page.Total,
		Limit:   limit,
		Offset:  offset,
	})
}

func walletFromPath(r *http.Request) (uuid.UUID, uuid.UUID, *AppError) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, uuid.Nil, ErrMissingToken
	}

	walletID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrResourceNotFound
	}

	return userID, walletID, nil
}

func pageParams(r *http.Request) (int, int, []FieldError) {
	var errs []FieldError
	limit, offset := defaultPageSize, 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			errs = append(errs, FieldError{Field: "limit", Message: "must be between 1 and 200"})
		} else {
			limit = n
		}
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errs = append(errs, FieldError{Field: "offset", Message: "must be zero or greater"})
		} else {
			offset = n
		}
	}

	return limit, offset, errs
}
