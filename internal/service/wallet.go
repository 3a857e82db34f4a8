package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
)

type walletRepo interface {
	GetByID(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error)
	Create(ctx context.Context, w *domain.Wallet) error
}

type walletLedgerRepo interface {
	BalanceOf(ctx context.Context, tx *sql.Tx, walletID uuid.UUID) (decimal.Decimal, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
}

type userChecker interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type WalletService struct {
	wallets walletRepo
	ledger  walletLedgerRepo
	users   userChecker
}

func NewWalletService(wallets walletRepo, ledger walletLedgerRepo, users userChecker) *WalletService {
	return &WalletService{wallets: wallets, ledger: ledger, users: users}
}

type Balance struct {
	WalletID uuid.UUID       `json:"wallet_id"`
	Currency domain.Currency `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
	Version  int64           `json:"version"`
}

type LedgerPage struct {
	Entries []domain.LedgerEntry
	Total   int
}

// CreateWallet opens a wallet in currency. The first wallet a user holds in
// a currency becomes the default for it.
func (s *WalletService) CreateWallet(ctx context.Context, userID uuid.UUID, currency domain.Currency, metadata map[string]any) (*domain.Wallet, error) {
	log := logging.FromContext(ctx)

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("CreateWallet: %w", err)
	}

	if !currency.IsValid() {
		return nil, fmt.Errorf("CreateWallet: %w", domain.ErrInvalidCurrency)
	}

	existing, err := s.wallets.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("CreateWallet: %w", err)
	}
	isDefault := true
	for _, w := range existing {
		if w.Currency == currency && w.IsDefault {
			isDefault = false
			break
		}
	}

	wallet := &domain.Wallet{
		ID:        uuid.New(),
		OwnerID:   userID,
		Currency:  currency,
		IsDefault: isDefault,
		Version:   0,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.wallets.Create(ctx, wallet); err != nil {
		return nil, fmt.Errorf("CreateWallet: %w", err)
	}

	log.Info("wallet created",
		"wallet_id", wallet.ID,
		"user_id", userID,
		"currency", currency,
		"default", isDefault,
	)

	return wallet, nil
}

func (s *WalletService) ListWallets(ctx context.Context, userID uuid.UUID) ([]domain.Wallet, error) {
	wallets, err := s.wallets.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ListWallets: %w", err)
	}
	return wallets, nil
}

// Balance derives the wallet's balance from its ledger entries.
func (s *WalletService) Balance(ctx context.Context, userID, walletID uuid.UUID) (*Balance, error) {
	w, err := s.ownedWallet(ctx, userID, walletID)
	if err != nil {
		return nil, fmt.Errorf("Balance: %w", err)
	}

	balance, err := s.ledger.BalanceOf(ctx, nil, w.ID)
	if err != nil {
		return nil, fmt.Errorf("Balance: %w", err)
	}

	return &Balance{
		WalletID: w.ID,
		Currency: w.Currency,
		Balance:  balance,
		Version:  w.Version,
	}, nil
}

func (s *WalletService) Ledger(ctx context.Context, userID, walletID uuid.UUID, limit, offset int) (*LedgerPage, error) {
	w, err := s.ownedWallet(ctx, userID, walletID)
	if err != nil {
		return nil, fmt.Errorf("Ledger: %w", err)
	}

	entries, total, err := s.ledger.ListByWallet(ctx, w.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("Ledger: %w", err)
	}
	return &LedgerPage{Entries: entries, Total: total}, nil
}

// ownedWallet hides wallets of other users behind ErrNotFound.
func (s *WalletService) ownedWallet(ctx context.Context, userID, walletID uuid.UUID) (*domain.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, nil, walletID)
	if err != nil {
		return nil, err
	}
	if w.OwnerID != userID {
		return nil, domain.ErrNotFound
	}
	return w, nil
}
