package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
)

const idempotencyColumns = `key, user_id, status, request, response, failure_reason,
	attempts, last_error, created_at, updated_at, processed_at`

type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) Get(ctx context.Context, tx *sql.Tx, key string) (*domain.IdempotencyRecord, error) {
	row := on(r.db, tx).QueryRowContext(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_records WHERE key = $1`, key,
	)
	rec, err := scanIdempotencyRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return rec, nil
}

// CreateIfAbsent inserts rec as pending. When the key already exists the
// stored record is returned with created=false.
func (r *IdempotencyRepository) CreateIfAbsent(ctx context.Context, rec *domain.IdempotencyRecord) (*domain.IdempotencyRecord, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO idempotency_records (key, user_id, status, request, created_at, updated_at)
		VALUES ($1, $2, 'pending', $3, $4, $4)
		ON CONFLICT (key) DO NOTHING
		RETURNING `+idempotencyColumns,
		rec.Key, rec.UserID, []byte(rec.Request), rec.CreatedAt,
	)
	created, err := scanIdempotencyRecord(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("CreateIfAbsent: %w", err)
	}

	existing, err := r.Get(ctx, nil, rec.Key)
	if err != nil {
		return nil, false, fmt.Errorf("CreateIfAbsent: %w", err)
	}
	return existing, false, nil
}

// ClaimProcessing moves the record from pending to processing. Exactly one
// concurrent caller observes true; the others block on the row lock until
// the winner's transaction ends and then see the committed status.
func (r *IdempotencyRepository) ClaimProcessing(ctx context.Context, tx *sql.Tx, key string) (bool, error) {
	res, err := on(r.db, tx).ExecContext(ctx,
		`UPDATE idempotency_records SET status = 'processing', updated_at = now()
		WHERE key = $1 AND status = 'pending'`, key,
	)
	if err != nil {
		return false, fmt.Errorf("ClaimProcessing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ClaimProcessing: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *IdempotencyRepository) MarkCompleted(ctx context.Context, tx *sql.Tx, key string, resp domain.TransferResponse) (bool, error) {
	body, err := json.Marshal(resp)
	if err != nil {
		return false, fmt.Errorf("MarkCompleted: %w", err)
	}
	res, err := on(r.db, tx).ExecContext(ctx,
		`UPDATE idempotency_records
		SET status = 'completed', response = $2, failure_reason = NULL,
			processed_at = now(), updated_at = now()
		WHERE key = $1 AND status IN ('pending', 'processing')`, key, body,
	)
	if err != nil {
		return false, fmt.Errorf("MarkCompleted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("MarkCompleted: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *IdempotencyRepository) MarkFailed(ctx context.Context, tx *sql.Tx, key, reason string) (bool, error) {
	res, err := on(r.db, tx).ExecContext(ctx,
		`UPDATE idempotency_records
		SET status = 'failed', failure_reason = $2, processed_at = now(), updated_at = now()
		WHERE key = $1 AND status IN ('pending', 'processing')`, key, reason,
	)
	if err != nil {
		return false, fmt.Errorf("MarkFailed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("MarkFailed: rows affected: %w", err)
	}
	return n == 1, nil
}

// RecordAttempt notes an unclassified failure on a still-open record.
func (r *IdempotencyRepository) RecordAttempt(ctx context.Context, key, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE idempotency_records
		SET attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE key = $1 AND status IN ('pending', 'processing')`, key, lastError,
	)
	if err != nil {
		return fmt.Errorf("RecordAttempt: %w", err)
	}
	return nil
}

// ListStale returns open records not touched since before, oldest first.
func (r *IdempotencyRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.IdempotencyRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_records
		WHERE status IN ('pending', 'processing') AND updated_at < $1
		ORDER BY created_at LIMIT $2`, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListStale: %w", err)
	}
	defer rows.Close()

	var records []domain.IdempotencyRecord
	for rows.Next() {
		rec, err := scanIdempotencyRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ListStale: scan: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListStale: rows: %w", err)
	}
	return records, nil
}

func scanIdempotencyRecord(s scanner) (*domain.IdempotencyRecord, error) {
	var (
		rec      domain.IdempotencyRecord
		request  []byte
		response []byte
	)
	err := s.Scan(
		&rec.Key, &rec.UserID, &rec.Status, &request, &response, &rec.FailureReason,
		&rec.Attempts, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt, &rec.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Request = json.RawMessage(request)
	if len(response) > 0 {
		var resp domain.TransferResponse
		if err := json.Unmarshal(response, &resp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		rec.Response = &resp
	}
	return &rec, nil
}
