package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/repository"
)

// TestPassword is the plaintext behind every seeded user's hash.
const TestPassword = "password123"

func SeedTestUser(t *testing.T, db *sql.DB, email, name string) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         domain.UserRoleUser,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, email, name, password_hash, role, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test user %s: %v", email, err)
	}
	return u
}

// SeedTestWallet creates a wallet and, when openingBalance is positive,
// funds it with a single credit entry that carries no idempotency key.
func SeedTestWallet(t *testing.T, db *sql.DB, ownerID uuid.UUID, currency domain.Currency, openingBalance string) *domain.Wallet {
	t.Helper()

	w := &domain.Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Currency:  currency,
		Version:   0,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO wallets (id, owner_id, currency, is_default, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		w.ID, w.OwnerID, w.Currency, w.IsDefault, w.Version, w.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test wallet %s/%s: %v", ownerID, currency, err)
	}

	if amount := decimal.RequireFromString(openingBalance); amount.IsPositive() {
		FundWallet(t, db, w.ID, amount)
	}
	return w
}

func FundWallet(t *testing.T, db *sql.DB, walletID uuid.UUID, amount decimal.Decimal) {
	t.Helper()

	err := repository.NewLedgerRepository(db).Insert(context.Background(), nil, &domain.LedgerEntry{
		ID:        uuid.New(),
		WalletID:  walletID,
		EntryType: domain.EntryTypeCredit,
		Amount:    amount,
		Metadata:  map[string]any{"source": "funding"},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("fund wallet %s: %v", walletID, err)
	}
}

func WalletBalance(t *testing.T, db *sql.DB, walletID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(
		`SELECT COALESCE(SUM(CASE WHEN entry_type = 'credit' THEN amount ELSE -amount END), 0)
		 FROM ledger_entries WHERE wallet_id = $1`, walletID,
	).Scan(&balance)
	if err != nil {
		t.Fatalf("wallet balance %s: %v", walletID, err)
	}
	return balance
}

func WalletVersion(t *testing.T, db *sql.DB, walletID uuid.UUID) int64 {
	t.Helper()

	var version int64
	if err := db.QueryRow(`SELECT version FROM wallets WHERE id = $1`, walletID).Scan(&version); err != nil {
		t.Fatalf("wallet version %s: %v", walletID, err)
	}
	return version
}

func CountLedgerEntries(t *testing.T, db *sql.DB, idempotencyKey string) int {
	t.Helper()

	entries, err := repository.NewLedgerRepository(db).ListByIdempotencyKey(context.Background(), idempotencyKey)
	if err != nil {
		t.Fatalf("count ledger entries for %s: %v", idempotencyKey, err)
	}
	return len(entries)
}

func CountTransfers(t *testing.T, db *sql.DB, idempotencyKey string) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM transfers WHERE idempotency_key = $1`, idempotencyKey).Scan(&count)
	if err != nil {
		t.Fatalf("count transfers for %s: %v", idempotencyKey, err)
	}
	return count
}

func IdempotencyStatus(t *testing.T, db *sql.DB, key string) domain.IdempotencyStatus {
	t.Helper()

	var status domain.IdempotencyStatus
	if err := db.QueryRow(`SELECT status FROM idempotency_records WHERE key = $1`, key).Scan(&status); err != nil {
		t.Fatalf("idempotency status %s: %v", key, err)
	}
	return status
}
