package transfer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/config"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/fx"
)

// memStore backs every collaborator of Service in memory. WithinTx
// snapshots state and restores it when fn fails, which is enough to model
// rollback for a single goroutine.
type memStore struct {
	records   map[string]domain.IdempotencyRecord
	wallets   map[uuid.UUID]domain.Wallet
	entries   []domain.LedgerEntry
	transfers map[string]domain.Transfer

	casMisses  int
	appendErr  error
	convertErr error
	rates      map[string]decimal.Decimal
	queueErr   error

	// raceWinner simulates another worker committing the same key while
	// this one is inside its transaction.
	raceWinner func(m *memStore)
	afterTx    func(m *memStore)

	queued   []domain.TransferJob
	notified []domain.TransferNotification
}

func newMemStore() *memStore {
	return &memStore{
		records:   map[string]domain.IdempotencyRecord{},
		wallets:   map[uuid.UUID]domain.Wallet{},
		transfers: map[string]domain.Transfer{},
		rates:     map[string]decimal.Decimal{},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		TransferOptimisticRetries:   3,
		TransferOptimisticBackoffMS: 1,
	}
}

func newTestService(m *memStore) *Service {
	return NewService(m, m, m, m, m, m, m, m, testConfig())
}

func (m *memStore) addWallet(owner uuid.UUID, currency domain.Currency, opening string) domain.Wallet {
	w := domain.Wallet{ID: uuid.New(), OwnerID: owner, Currency: currency, IsDefault: true}
	m.wallets[w.ID] = w
	if opening != "" {
		m.entries = append(m.entries, domain.LedgerEntry{
			ID:        uuid.New(),
			WalletID:  w.ID,
			EntryType: domain.EntryTypeCredit,
			Amount:    decimal.RequireFromString(opening),
		})
	}
	return w
}

func (m *memStore) balance(id uuid.UUID) decimal.Decimal {
	b, _ := m.BalanceOf(context.Background(), nil, id)
	return b
}

func (m *memStore) entriesFor(key string) int {
	n := 0
	for _, e := range m.entries {
		if e.IdempotencyKey != nil && *e.IdempotencyKey == key {
			n++
		}
	}
	return n
}

func (m *memStore) WithinTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	records := make(map[string]domain.IdempotencyRecord, len(m.records))
	for k, v := range m.records {
		records[k] = v
	}
	wallets := make(map[uuid.UUID]domain.Wallet, len(m.wallets))
	for k, v := range m.wallets {
		wallets[k] = v
	}
	transfers := make(map[string]domain.Transfer, len(m.transfers))
	for k, v := range m.transfers {
		transfers[k] = v
	}
	entries := append([]domain.LedgerEntry(nil), m.entries...)

	err := fn(nil)
	if err != nil {
		m.records, m.wallets, m.transfers, m.entries = records, wallets, transfers, entries
	}
	if m.afterTx != nil {
		f := m.afterTx
		m.afterTx = nil
		f(m)
	}
	return err
}

func (m *memStore) Get(_ context.Context, _ *sql.Tx, key string) (*domain.IdempotencyRecord, error) {
	rec, ok := m.records[key]
	if !ok {
		return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
	}
	return &rec, nil
}

func (m *memStore) CreateIfAbsent(_ context.Context, rec *domain.IdempotencyRecord) (*domain.IdempotencyRecord, bool, error) {
	if existing, ok := m.records[rec.Key]; ok {
		return &existing, false, nil
	}
	stored := *rec
	stored.Status = domain.IdempotencyPending
	stored.UpdatedAt = stored.CreatedAt
	m.records[rec.Key] = stored
	return &stored, true, nil
}

func (m *memStore) transition(key string, to domain.IdempotencyStatus, from ...domain.IdempotencyStatus) (*domain.IdempotencyRecord, bool) {
	rec, ok := m.records[key]
	if !ok {
		return nil, false
	}
	for _, f := range from {
		if rec.Status == f {
			rec.Status = to
			return &rec, true
		}
	}
	return nil, false
}

func (m *memStore) ClaimProcessing(_ context.Context, _ *sql.Tx, key string) (bool, error) {
	rec, ok := m.transition(key, domain.IdempotencyProcessing, domain.IdempotencyPending)
	if ok {
		m.records[key] = *rec
	}
	return ok, nil
}

func (m *memStore) MarkCompleted(_ context.Context, _ *sql.Tx, key string, resp domain.TransferResponse) (bool, error) {
	rec, ok := m.transition(key, domain.IdempotencyCompleted, domain.IdempotencyPending, domain.IdempotencyProcessing)
	if ok {
		rec.Response = &resp
		m.records[key] = *rec
	}
	return ok, nil
}

func (m *memStore) MarkFailed(_ context.Context, _ *sql.Tx, key, reason string) (bool, error) {
	rec, ok := m.transition(key, domain.IdempotencyFailed, domain.IdempotencyPending, domain.IdempotencyProcessing)
	if ok {
		rec.FailureReason = &reason
		m.records[key] = *rec
	}
	return ok, nil
}

func (m *memStore) RecordAttempt(_ context.Context, key, lastError string) error {
	rec, ok := m.records[key]
	if !ok || rec.Status.IsTerminal() {
		return nil
	}
	rec.Attempts++
	rec.LastError = &lastError
	m.records[key] = rec
	return nil
}

func (m *memStore) Append(_ context.Context, _ *sql.Tx, debit, credit *domain.LedgerEntry) error {
	if m.raceWinner != nil {
		m.afterTx = m.raceWinner
		m.raceWinner = nil
		return fmt.Errorf("Append: %w", domain.ErrDuplicateEntry)
	}
	if m.appendErr != nil {
		return fmt.Errorf("Append: %w", m.appendErr)
	}
	for _, e := range m.entries {
		if e.IdempotencyKey != nil && debit.IdempotencyKey != nil && *e.IdempotencyKey == *debit.IdempotencyKey {
			return fmt.Errorf("Append: %w", domain.ErrDuplicateEntry)
		}
	}
	m.entries = append(m.entries, *debit, *credit)
	return nil
}

func (m *memStore) BalanceOf(_ context.Context, _ *sql.Tx, walletID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range m.entries {
		if e.WalletID != walletID {
			continue
		}
		if e.EntryType == domain.EntryTypeCredit {
			total = total.Add(e.Amount)
		} else {
			total = total.Sub(e.Amount)
		}
	}
	return total, nil
}

func (m *memStore) FindByIdempotencyKey(_ context.Context, _ *sql.Tx, key string) (*domain.LedgerEntry, error) {
	for _, e := range m.entries {
		if e.IdempotencyKey != nil && *e.IdempotencyKey == key {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("FindByIdempotencyKey: %w", domain.ErrNotFound)
}

func (m *memStore) GetByID(_ context.Context, _ *sql.Tx, id uuid.UUID) (*domain.Wallet, error) {
	w, ok := m.wallets[id]
	if !ok {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	return &w, nil
}

func (m *memStore) CASIncrementVersion(_ context.Context, _ *sql.Tx, id uuid.UUID, expected int64) (int64, error) {
	if m.casMisses > 0 {
		m.casMisses--
		return 0, nil
	}
	w, ok := m.wallets[id]
	if !ok || w.Version != expected {
		return 0, nil
	}
	w.Version++
	m.wallets[id] = w
	return 1, nil
}

func (m *memStore) Create(_ context.Context, _ *sql.Tx, t *domain.Transfer) error {
	if _, ok := m.transfers[t.IdempotencyKey]; ok {
		return fmt.Errorf("Create: %w", domain.ErrDuplicateEntry)
	}
	m.transfers[t.IdempotencyKey] = *t
	return nil
}

func (m *memStore) GetByIdempotencyKey(_ context.Context, _ *sql.Tx, key string) (*domain.Transfer, error) {
	t, ok := m.transfers[key]
	if !ok {
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
	}
	return &t, nil
}

func (m *memStore) Convert(_ context.Context, amount decimal.Decimal, from, to domain.Currency) (*fx.Conversion, error) {
	if m.convertErr != nil {
		return nil, fmt.Errorf("Convert: %w", m.convertErr)
	}
	rate := decimal.NewFromInt(1)
	if from != to {
		r, ok := m.rates[string(from)+string(to)]
		if !ok {
			return nil, fmt.Errorf("Convert: %w", domain.ErrInvalidCurrency)
		}
		rate = r
	}
	return &fx.Conversion{
		SourceAmount:  amount,
		DestAmount:    amount.Mul(rate).Round(to.Scale()),
		ExchangeRate:  rate,
		MidMarketRate: rate,
	}, nil
}

func (m *memStore) EnqueueTransfer(_ context.Context, job domain.TransferJob) (string, error) {
	if m.queueErr != nil {
		return "", m.queueErr
	}
	m.queued = append(m.queued, job)
	return job.IdempotencyKey, nil
}

func (m *memStore) NotifyTransferOutcome(_ context.Context, n domain.TransferNotification) error {
	m.notified = append(m.notified, n)
	return nil
}

func (m *memStore) notificationsFor(userID uuid.UUID) []domain.NotificationStatus {
	var out []domain.NotificationStatus
	for _, n := range m.notified {
		if n.UserID == userID {
			out = append(out, n.Status)
		}
	}
	return out
}
