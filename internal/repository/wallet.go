package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
)

const walletColumns = `id, owner_id, currency, is_default, version, metadata, created_at`

type WalletRepository struct {
	db *sql.DB
}

func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByID(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error) {
	row := on(r.db, tx).QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id,
	)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return w, nil
}

func (r *WalletRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 ORDER BY created_at`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByOwner: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByOwner: scan: %w", err)
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByOwner: rows: %w", err)
	}
	return wallets, nil
}

func (r *WalletRepository) Create(ctx context.Context, w *domain.Wallet) error {
	meta, err := encodeJSON(w.Metadata)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO wallets (`+walletColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.OwnerID, w.Currency, w.IsDefault, w.Version, meta, w.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateEntry)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// CASIncrementVersion bumps version only if it still equals expected and
// returns the number of rows changed. Zero means another writer committed first.
func (r *WalletRepository) CASIncrementVersion(ctx context.Context, tx *sql.Tx, id uuid.UUID, expected int64) (int64, error) {
	res, err := on(r.db, tx).ExecContext(ctx,
		`UPDATE wallets SET version = version + 1 WHERE id = $1 AND version = $2`,
		id, expected,
	)
	if err != nil {
		return 0, fmt.Errorf("CASIncrementVersion: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("CASIncrementVersion: rows affected: %w", err)
	}
	return n, nil
}

func scanWallet(s scanner) (*domain.Wallet, error) {
	var (
		w    domain.Wallet
		meta []byte
	)
	err := s.Scan(
		&w.ID, &w.OwnerID, &w.Currency, &w.IsDefault,
		&w.Version, &meta, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if w.Metadata, err = decodeJSON(meta); err != nil {
		return nil, err
	}
	return &w, nil
}
