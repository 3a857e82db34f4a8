package repository_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/repository"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/testutil"
)

func entryPair(key string, from, to uuid.UUID, amount string) (*domain.LedgerEntry, *domain.LedgerEntry) {
	now := time.Now().UTC()
	amt := decimal.RequireFromString(amount)
	debit := &domain.LedgerEntry{
		ID: uuid.New(), WalletID: from, EntryType: domain.EntryTypeDebit,
		Amount: amt, IdempotencyKey: &key, CreatedAt: now,
	}
	credit := &domain.LedgerEntry{
		ID: uuid.New(), WalletID: to, EntryType: domain.EntryTypeCredit,
		Amount: amt, IdempotencyKey: &key, CreatedAt: now,
	}
	return debit, credit
}

func TestLedger_AppendAndBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ledger := repository.NewLedgerRepository(db)
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "ledger@test.com", "Ledger")
	w1 := testutil.SeedTestWallet(t, db, u.ID, domain.CurrencyUSD, "100")
	w2 := testutil.SeedTestWallet(t, db, u.ID, domain.CurrencyUSD, "0")

	debit, credit := entryPair("ledger-k1", w1.ID, w2.ID, "40")
	require.NoError(t, ledger.Append(ctx, nil, debit, credit))

	b1, err := ledger.BalanceOf(ctx, nil, w1.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(60).Equal(b1), "got %s", b1)

	b2, err := ledger.BalanceOf(ctx, nil, w2.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(40).Equal(b2), "got %s", b2)

	found, err := ledger.FindByIdempotencyKey(ctx, nil, "ledger-k1")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryTypeDebit, found.EntryType)

	_, err = ledger.FindByIdempotencyKey(ctx, nil, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedger_DuplicateKeyIsDistinguishable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ledger := repository.NewLedgerRepository(db)
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "dup@test.com", "Dup")
	w1 := testutil.SeedTestWallet(t, db, u.ID, domain.CurrencyUSD, "100")
	w2 := testutil.SeedTestWallet(t, db, u.ID, domain.CurrencyUSD, "0")

	debit, credit := entryPair("dup-k1", w1.ID, w2.ID, "10")
	require.NoError(t, ledger.Append(ctx, nil, debit, credit))

	debit2, credit2 := entryPair("dup-k1", w1.ID, w2.ID, "10")
	err := ledger.Append(ctx, nil, debit2, credit2)
	require.ErrorIs(t, err, domain.ErrDuplicateEntry)

	entries, err := ledger.ListByIdempotencyKey(ctx, "dup-k1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, debit.ID, entries[0].ID)
	assert.Equal(t, credit.ID, entries[1].ID)
}

func TestLedger_AppendOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ledger := repository.NewLedgerRepository(db)
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "immutable@test.com", "Immutable")
	w1 := testutil.SeedTestWallet(t, db, u.ID, domain.CurrencyUSD, "100")
	w2 := testutil.SeedTestWallet(t, db, u.ID, domain.CurrencyUSD, "0")

	debit, credit := entryPair("immutable-k1", w1.ID, w2.ID, "25")
	require.NoError(t, ledger.Append(ctx, nil, debit, credit))

	tests := []struct {
		name  string
		query string
		args  []any
	}{
		{"update amount", `UPDATE ledger_entries SET amount = 1 WHERE id = $1`, []any{debit.ID}},
		{"delete entry", `DELETE FROM ledger_entries WHERE id = $1`, []any{credit.ID}},
		{"truncate", `TRUNCATE ledger_entries CASCADE`, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := db.ExecContext(ctx, tc.query, tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "append-only")
		})
	}

	assert.Equal(t, 2, testutil.CountLedgerEntries(t, db, "immutable-k1"))
	assert.True(t, decimal.NewFromInt(75).Equal(testutil.WalletBalance(t, db, w1.ID)))
}

func TestWallet_CASIncrementVersion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	wallets := repository.NewWalletRepository(db)
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "cas@test.com", "Cas")
	w := testutil.SeedTestWallet(t, db, u.ID, domain.CurrencyUSD, "0")

	n, err := wallets.CASIncrementVersion(ctx, nil, w.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = wallets.CASIncrementVersion(ctx, nil, w.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "stale expected version must not match")

	got, err := wallets.GetByID(ctx, nil, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	_, err = wallets.GetByID(ctx, nil, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWallet_CASRollsBackWithTransaction(t *testing.T) {
	db := testutil.SetupTestDB(t)
	wallets := repository.NewWalletRepository(db)
	txr := repository.NewDB(db)
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "casrb@test.com", "CasRb")
	w := testutil.SeedTestWallet(t, db, u.ID, domain.CurrencyUSD, "0")

	err := txr.WithinTx(ctx, func(tx *sql.Tx) error {
		n, err := wallets.CASIncrementVersion(ctx, tx, w.ID, 0)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		return domain.ErrOptimisticLock
	})
	require.ErrorIs(t, err, domain.ErrOptimisticLock)
	assert.Equal(t, int64(0), testutil.WalletVersion(t, db, w.ID))
}

func TestIdempotency_Lifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewIdempotencyRepository(db)
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "idem@test.com", "Idem")
	rec := &domain.IdempotencyRecord{
		Key:       "idem-k1",
		UserID:    u.ID,
		Request:   json.RawMessage(`{"amount":"10"}`),
		CreatedAt: time.Now().UTC(),
	}

	created, isNew, err := repo.CreateIfAbsent(ctx, rec)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, domain.IdempotencyPending, created.Status)

	again, isNew, err := repo.CreateIfAbsent(ctx, rec)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.Key, again.Key)

	claimed, err := repo.ClaimProcessing(ctx, nil, "idem-k1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimProcessing(ctx, nil, "idem-k1")
	require.NoError(t, err)
	assert.False(t, claimed, "second claimant must lose")

	transferID := uuid.New()
	ok, err := repo.MarkCompleted(ctx, nil, "idem-k1", domain.TransferResponse{TransferID: &transferID})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkFailed(ctx, nil, "idem-k1", "late failure")
	require.NoError(t, err)
	assert.False(t, ok, "completed records are terminal")

	got, err := repo.Get(ctx, nil, "idem-k1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyCompleted, got.Status)
	require.NotNil(t, got.Response)
	assert.Equal(t, transferID, *got.Response.TransferID)
	assert.NotNil(t, got.ProcessedAt)
}

func TestIdempotency_ConcurrentClaimHasOneWinner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewIdempotencyRepository(db)
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "race@test.com", "Race")
	_, _, err := repo.CreateIfAbsent(ctx, &domain.IdempotencyRecord{
		Key: "race-k1", UserID: u.ID, Request: json.RawMessage(`{}`), CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	const claimants = 8
	results := make(chan bool, claimants)
	for range claimants {
		go func() {
			ok, err := repo.ClaimProcessing(ctx, nil, "race-k1")
			assert.NoError(t, err)
			results <- ok
		}()
	}

	wins := 0
	for range claimants {
		if <-results {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestIdempotency_ListStaleAndRecordAttempt(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewIdempotencyRepository(db)
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "stale@test.com", "Stale")
	old := time.Now().UTC().Add(-2 * time.Hour)
	for _, key := range []string{"stale-open", "stale-done"} {
		_, _, err := repo.CreateIfAbsent(ctx, &domain.IdempotencyRecord{
			Key: key, UserID: u.ID, Request: json.RawMessage(`{}`), CreatedAt: old,
		})
		require.NoError(t, err)
	}
	_, err := repo.MarkFailed(ctx, nil, "stale-done", "Insufficient funds")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE idempotency_records SET updated_at = $1`, old)
	require.NoError(t, err)

	stale, err := repo.ListStale(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "stale-open", stale[0].Key)

	require.NoError(t, repo.RecordAttempt(ctx, "stale-open", "connection reset"))

	stale, err = repo.ListStale(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale, "a fresh attempt resets staleness")

	got, err := repo.Get(ctx, nil, "stale-open")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "connection reset", *got.LastError)
}

func TestTransfer_UniqueIdempotencyKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	transfers := repository.NewTransferRepository(db)
	ctx := context.Background()

	u := testutil.SeedTestUser(t, db, "xfer@test.com", "Xfer")
	w1 := testutil.SeedTestWallet(t, db, u.ID, domain.CurrencyUSD, "0")
	w2 := testutil.SeedTestWallet(t, db, u.ID, domain.CurrencyUSD, "0")

	newTransfer := func() *domain.Transfer {
		return &domain.Transfer{
			ID: uuid.New(), FromWalletID: w1.ID, ToWalletID: w2.ID,
			Amount: decimal.NewFromInt(5), CreditedAmount: decimal.NewFromInt(5),
			ExchangeRate: decimal.NewFromInt(1), IdempotencyKey: "xfer-k1",
			Metadata: map[string]any{"note": "rent"}, CreatedAt: time.Now().UTC(),
		}
	}

	first := newTransfer()
	require.NoError(t, transfers.Create(ctx, nil, first))
	require.ErrorIs(t, transfers.Create(ctx, nil, newTransfer()), domain.ErrDuplicateEntry)

	got, err := transfers.GetByIdempotencyKey(ctx, nil, "xfer-k1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "rent", got.Metadata["note"])
}
