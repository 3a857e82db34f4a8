package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
)

// Reconcile marks key completed if money movement for it is already
// committed. It returns nil when nothing was found.
func (s *Service) Reconcile(ctx context.Context, key string) (*Result, error) {
	found, err := s.findCommitted(ctx, nil, key)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: %w", err)
	}
	if found == nil {
		return nil, nil
	}

	updated, err := s.idempotency.MarkCompleted(ctx, nil, key, found.response())
	if err != nil {
		return nil, fmt.Errorf("Reconcile: %w", err)
	}
	if updated {
		logging.FromContext(ctx).Info("idempotency record reconciled",
			"idempotency_key", key,
			"transfer_id", found.TransferID,
			"ledger_only", found.LedgerOnly,
		)
	}
	return found, nil
}

// Abandon closes an open record that will not be retried again. Committed
// work wins over the given reason.
func (s *Service) Abandon(ctx context.Context, key, reason string) error {
	ctx, log := logging.With(ctx, "idempotency_key", key)

	found, err := s.Reconcile(ctx, key)
	if err != nil {
		return fmt.Errorf("Abandon: %w", err)
	}
	if found != nil {
		return nil
	}

	failed, err := s.idempotency.MarkFailed(ctx, nil, key, reason)
	if err != nil {
		return fmt.Errorf("Abandon: %w", err)
	}
	if !failed {
		return nil
	}
	log.Warn("transfer abandoned", "reason", reason)

	rec, err := s.idempotency.Get(ctx, nil, key)
	if err != nil {
		return fmt.Errorf("Abandon: %w", err)
	}
	n := domain.TransferNotification{
		UserID:         rec.UserID,
		Status:         domain.NotificationFailed,
		IdempotencyKey: key,
		Reason:         reason,
	}
	if job, err := decodeJob(rec.Request); err == nil {
		n.Amount = job.Amount
		n.Currency = job.Currency
	}
	s.notify(ctx, n)
	return nil
}

type StaleAction string

const (
	StaleReconciled StaleAction = "reconciled"
	StaleExpired    StaleAction = "expired"
	StaleRequeued   StaleAction = "requeued"
	StaleSkipped    StaleAction = "skipped"
)

// ReasonExpired is stored on records the sweeper gives up on.
const ReasonExpired = "expired"

// ResolveStale settles one open record that has not moved recently:
// committed work is reconciled, records created before expireBefore are
// failed, and the rest are pushed back onto the queue.
func (s *Service) ResolveStale(ctx context.Context, rec domain.IdempotencyRecord, expireBefore time.Time) (StaleAction, error) {
	found, err := s.Reconcile(ctx, rec.Key)
	if err != nil {
		return "", fmt.Errorf("ResolveStale: %w", err)
	}
	if found != nil {
		return StaleReconciled, nil
	}

	if rec.CreatedAt.Before(expireBefore) {
		if err := s.Abandon(ctx, rec.Key, ReasonExpired); err != nil {
			return "", fmt.Errorf("ResolveStale: %w", err)
		}
		return StaleExpired, nil
	}

	// A processing record belongs to a live transaction.
	if rec.Status != domain.IdempotencyPending {
		return StaleSkipped, nil
	}

	job, err := decodeJob(rec.Request)
	if err != nil {
		if abandonErr := s.Abandon(ctx, rec.Key, domain.FailureReason(domain.ErrInvalidRequest)); abandonErr != nil {
			return "", fmt.Errorf("ResolveStale: %w", errors.Join(err, abandonErr))
		}
		return StaleExpired, nil
	}
	if _, err := s.queue.EnqueueTransfer(ctx, *job); err != nil {
		return "", fmt.Errorf("ResolveStale: requeue: %w", err)
	}
	return StaleRequeued, nil
}
