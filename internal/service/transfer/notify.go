package transfer

import (
	"context"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
)

// notify is best effort. A lost notification never changes a transfer's
// outcome.
func (s *Service) notify(ctx context.Context, n domain.TransferNotification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyTransferOutcome(ctx, n); err != nil {
		logging.FromContext(ctx).Warn("failed to queue notification",
			"status", n.Status,
			"user_id", n.UserID,
			"error", err,
		)
	}
}

func (s *Service) notifyCommitted(ctx context.Context, job domain.TransferJob, res *Result) {
	s.notify(ctx, domain.TransferNotification{
		UserID:         job.UserID,
		Status:         domain.NotificationCompleted,
		IdempotencyKey: job.IdempotencyKey,
		TransferID:     res.TransferID,
		Amount:         job.Amount,
		Currency:       job.Currency,
	})
	if res.recipientID == job.UserID {
		return
	}
	s.notify(ctx, domain.TransferNotification{
		UserID:         res.recipientID,
		Status:         domain.NotificationReceived,
		IdempotencyKey: job.IdempotencyKey,
		TransferID:     res.TransferID,
		Amount:         res.creditedAmount.String(),
		Currency:       res.creditCurrency,
	})
}

// notifyReconciled tells the sender about a transfer found already
// committed. The committing delivery may have died before its own notices
// went out, so the sender can hear twice; the recipient is not told here
// because the credited amount is not known.
func (s *Service) notifyReconciled(ctx context.Context, job domain.TransferJob, res *Result) {
	if res.Outcome != OutcomeReconciled || res.TransferID == nil {
		return
	}
	s.notify(ctx, domain.TransferNotification{
		UserID:         job.UserID,
		Status:         domain.NotificationCompleted,
		IdempotencyKey: job.IdempotencyKey,
		TransferID:     res.TransferID,
		Amount:         job.Amount,
		Currency:       job.Currency,
	})
}
