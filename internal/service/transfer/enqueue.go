package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/metrics"
)

type EnqueueRequest struct {
	UserID         uuid.UUID
	FromWalletID   uuid.UUID
	ToWalletID     uuid.UUID
	Amount         string
	IdempotencyKey string
	TxID           *string
	Metadata       map[string]any
}

type EnqueueResult struct {
	JobID          string
	IdempotencyKey string
	Status         domain.IdempotencyStatus
}

// Enqueue validates the request against current state, registers the key as
// pending and pushes the job. The transfer itself is not committed here.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	log := logging.FromContext(ctx)

	job, err := s.validateEnqueue(ctx, req)
	if err != nil {
		metrics.TransferEnqueueTotal.WithLabelValues(enqueueResultLabel(err)).Inc()
		return nil, fmt.Errorf("Enqueue: %w", err)
	}

	payload, err := encodeJob(job)
	if err != nil {
		return nil, fmt.Errorf("Enqueue: %w", err)
	}

	rec, created, err := s.idempotency.CreateIfAbsent(ctx, &domain.IdempotencyRecord{
		Key:       req.IdempotencyKey,
		UserID:    req.UserID,
		Request:   payload,
		CreatedAt: job.EnqueuedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("Enqueue: %w", err)
	}

	if !created {
		// Lost a race with a concurrent enqueue of the same key.
		stored, err := s.reusableRecord(rec, job)
		if err != nil {
			metrics.TransferEnqueueTotal.WithLabelValues(enqueueResultLabel(err)).Inc()
			return nil, fmt.Errorf("Enqueue: %w", err)
		}
		job = *stored
	}

	jobID, err := s.queue.EnqueueTransfer(ctx, job)
	if err != nil {
		// The pending record stays behind for the sweeper to requeue.
		metrics.TransferEnqueueTotal.WithLabelValues("queue_error").Inc()
		return nil, fmt.Errorf("Enqueue: push job: %w", err)
	}

	metrics.TransferEnqueueTotal.WithLabelValues("accepted").Inc()
	log.Info("transfer enqueued",
		"idempotency_key", job.IdempotencyKey,
		"job_id", jobID,
		"from_wallet", job.FromWalletID,
		"to_wallet", job.ToWalletID,
		"amount", job.Amount,
		"currency", job.Currency,
	)

	s.notify(ctx, domain.TransferNotification{
		UserID:         job.UserID,
		Status:         domain.NotificationPending,
		IdempotencyKey: job.IdempotencyKey,
		Amount:         job.Amount,
		Currency:       job.Currency,
	})

	return &EnqueueResult{
		JobID:          jobID,
		IdempotencyKey: job.IdempotencyKey,
		Status:         domain.IdempotencyPending,
	}, nil
}

func (s *Service) validateEnqueue(ctx context.Context, req EnqueueRequest) (domain.TransferJob, error) {
	if err := domain.ValidateIdempotencyKey(req.IdempotencyKey); err != nil {
		return domain.TransferJob{}, err
	}

	// A known key short-circuits before balance checks so a client retrying
	// a transfer that drained the wallet sees "already processed".
	existing, err := s.idempotency.Get(ctx, nil, req.IdempotencyKey)
	switch {
	case err == nil:
		if err := rejectExisting(existing, req.UserID); err != nil {
			return domain.TransferJob{}, err
		}
	case !errors.Is(err, domain.ErrNotFound):
		return domain.TransferJob{}, err
	}

	if req.FromWalletID == req.ToWalletID {
		return domain.TransferJob{}, domain.ErrSelfTransfer
	}

	from, err := s.walletIn(ctx, nil, req.FromWalletID)
	if err != nil {
		return domain.TransferJob{}, err
	}
	if from.OwnerID != req.UserID {
		return domain.TransferJob{}, domain.ErrNotWalletOwner
	}
	if _, err := s.walletIn(ctx, nil, req.ToWalletID); err != nil {
		return domain.TransferJob{}, err
	}

	amount, err := domain.ParseAmount(req.Amount, from.Currency)
	if err != nil {
		return domain.TransferJob{}, err
	}

	balance, err := s.ledger.BalanceOf(ctx, nil, from.ID)
	if err != nil {
		return domain.TransferJob{}, err
	}
	if balance.LessThan(amount) {
		return domain.TransferJob{}, domain.ErrInsufficientFunds
	}

	return domain.TransferJob{
		UserID:         req.UserID,
		FromWalletID:   req.FromWalletID,
		ToWalletID:     req.ToWalletID,
		Amount:         amount.String(),
		Currency:       from.Currency,
		IdempotencyKey: req.IdempotencyKey,
		TxID:           req.TxID,
		Metadata:       req.Metadata,
		EnqueuedAt:     s.now(),
	}, nil
}

// rejectExisting maps a non-pending record to its enqueue rejection. A
// pending record owned by someone else is a key collision.
func rejectExisting(rec *domain.IdempotencyRecord, userID uuid.UUID) error {
	switch rec.Status {
	case domain.IdempotencyCompleted:
		return domain.ErrAlreadyProcessed
	case domain.IdempotencyProcessing:
		return domain.ErrTransferInFlight
	case domain.IdempotencyFailed:
		return domain.ErrPreviouslyFailed
	}
	if rec.UserID != userID {
		return domain.ErrIdempotencyConflict
	}
	return nil
}

// reusableRecord accepts an existing pending record only if it describes the
// same transfer, and returns its stored job so the requeue is byte-identical.
func (s *Service) reusableRecord(rec *domain.IdempotencyRecord, job domain.TransferJob) (*domain.TransferJob, error) {
	if err := rejectExisting(rec, job.UserID); err != nil {
		return nil, err
	}

	stored, err := decodeJob(rec.Request)
	if err != nil {
		return nil, err
	}
	if !sameTransfer(*stored, job) {
		return nil, domain.ErrIdempotencyConflict
	}
	return stored, nil
}

func encodeJob(job domain.TransferJob) (json.RawMessage, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encodeJob: %w", err)
	}
	return raw, nil
}

func decodeJob(raw json.RawMessage) (*domain.TransferJob, error) {
	var job domain.TransferJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decodeJob: %w", err)
	}
	return &job, nil
}

func sameTransfer(a, b domain.TransferJob) bool {
	if a.UserID != b.UserID || a.FromWalletID != b.FromWalletID || a.ToWalletID != b.ToWalletID {
		return false
	}
	if a.Amount != b.Amount || a.Currency != b.Currency {
		return false
	}
	switch {
	case a.TxID == nil && b.TxID == nil:
		return true
	case a.TxID == nil || b.TxID == nil:
		return false
	default:
		return *a.TxID == *b.TxID
	}
}

func enqueueResultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, domain.ErrTransferInFlight):
		return "in_flight"
	case errors.Is(err, domain.ErrPreviouslyFailed):
		return "previously_failed"
	case errors.Is(err, domain.ErrIdempotencyConflict):
		return "idempotency_conflict"
	case domain.IsPermanent(err), errors.Is(err, domain.ErrInvalidIdempotencyKey):
		return "rejected"
	default:
		return "error"
	}
}
