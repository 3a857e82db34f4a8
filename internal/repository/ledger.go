package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
)

const ledgerColumns = `id, wallet_id, entry_type, amount, tx_id, idempotency_key, metadata, created_at`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append writes the debit and credit of one transfer in a single statement.
// A unique violation on (idempotency_key, entry_type) is reported as
// domain.ErrDuplicateEntry.
func (r *LedgerRepository) Append(ctx context.Context, tx *sql.Tx, debit, credit *domain.LedgerEntry) error {
	if debit.EntryType != domain.EntryTypeDebit || credit.EntryType != domain.EntryTypeCredit {
		return fmt.Errorf("Append: expected debit and credit, got %s and %s: %w", debit.EntryType, credit.EntryType, domain.ErrInvalidRequest)
	}

	debitMeta, err := encodeJSON(debit.Metadata)
	if err != nil {
		return fmt.Errorf("Append: debit: %w", err)
	}
	creditMeta, err := encodeJSON(credit.Metadata)
	if err != nil {
		return fmt.Errorf("Append: credit: %w", err)
	}

	_, err = on(r.db, tx).ExecContext(ctx,
		`INSERT INTO ledger_entries (`+ledgerColumns+`) VALUES
			($1, $2, $3, $4, $5, $6, $7, $8),
			($9, $10, $11, $12, $13, $14, $15, $16)`,
		debit.ID, debit.WalletID, debit.EntryType, debit.Amount,
		debit.TxID, debit.IdempotencyKey, debitMeta, debit.CreatedAt,
		credit.ID, credit.WalletID, credit.EntryType, credit.Amount,
		credit.TxID, credit.IdempotencyKey, creditMeta, credit.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Append: %w", domain.ErrDuplicateEntry)
		}
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

// Insert writes a single entry. Transfers go through Append; this is for
// funding and opening balances.
func (r *LedgerRepository) Insert(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error {
	meta, err := encodeJSON(entry.Metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	_, err = on(r.db, tx).ExecContext(ctx,
		`INSERT INTO ledger_entries (`+ledgerColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.WalletID, entry.EntryType, entry.Amount,
		entry.TxID, entry.IdempotencyKey, meta, entry.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Insert: %w", domain.ErrDuplicateEntry)
		}
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

func (r *LedgerRepository) BalanceOf(ctx context.Context, tx *sql.Tx, walletID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := on(r.db, tx).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN entry_type = 'credit' THEN amount ELSE -amount END), 0)
		FROM ledger_entries WHERE wallet_id = $1`, walletID,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("BalanceOf: %w", err)
	}
	return balance, nil
}

func (r *LedgerRepository) FindByIdempotencyKey(ctx context.Context, tx *sql.Tx, key string) (*domain.LedgerEntry, error) {
	row := on(r.db, tx).QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE idempotency_key = $1 ORDER BY created_at, entry_type DESC LIMIT 1`, key,
	)
	e, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("FindByIdempotencyKey: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("FindByIdempotencyKey: %w", err)
	}
	return e, nil
}

func (r *LedgerRepository) ListByIdempotencyKey(ctx context.Context, key string) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE idempotency_key = $1 ORDER BY entry_type DESC`, key,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByIdempotencyKey: %w", err)
	}
	defer rows.Close()

	entries, err := collectLedgerEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("ListByIdempotencyKey: %w", err)
	}
	return entries, nil
}

func (r *LedgerRepository) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE wallet_id = $1`, walletID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByWallet: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE wallet_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		walletID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByWallet: %w", err)
	}
	defer rows.Close()

	entries, err := collectLedgerEntries(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByWallet: %w", err)
	}
	return entries, total, nil
}

func collectLedgerEntries(rows *sql.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var (
		e    domain.LedgerEntry
		meta []byte
	)
	err := s.Scan(
		&e.ID, &e.WalletID, &e.EntryType, &e.Amount,
		&e.TxID, &e.IdempotencyKey, &meta, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.Metadata, err = decodeJSON(meta); err != nil {
		return nil, err
	}
	return &e, nil
}
