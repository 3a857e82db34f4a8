package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
)

const transferColumns = `id, from_wallet_id, to_wallet_id, amount, credited_amount, exchange_rate,
	idempotency_key, tx_id, metadata, created_at`

type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transfer) error {
	meta, err := encodeJSON(t.Metadata)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	_, err = on(r.db, tx).ExecContext(ctx,
		`INSERT INTO transfers (`+transferColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.FromWalletID, t.ToWalletID, t.Amount, t.CreditedAmount, t.ExchangeRate,
		t.IdempotencyKey, t.TxID, meta, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateEntry)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransferRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = $1`, id,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return t, nil
}

func (r *TransferRepository) GetByIdempotencyKey(ctx context.Context, tx *sql.Tx, key string) (*domain.Transfer, error) {
	row := on(r.db, tx).QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE idempotency_key = $1`, key,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", err)
	}
	return t, nil
}

func scanTransfer(s scanner) (*domain.Transfer, error) {
	var (
		t    domain.Transfer
		meta []byte
	)
	err := s.Scan(
		&t.ID, &t.FromWalletID, &t.ToWalletID, &t.Amount, &t.CreditedAmount, &t.ExchangeRate,
		&t.IdempotencyKey, &t.TxID, &meta, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Metadata, err = decodeJSON(meta); err != nil {
		return nil, err
	}
	return &t, nil
}
