package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
)

type StatusReport struct {
	IdempotencyKey string                   `json:"idempotency_key"`
	Status         domain.IdempotencyStatus `json:"status"`
	Completed      bool                     `json:"completed"`
	Progress       int                      `json:"progress"`
	Response       *domain.TransferResponse `json:"response,omitempty"`
	FailureReason  *string                  `json:"failure_reason,omitempty"`
}

func progressOf(status domain.IdempotencyStatus) int {
	switch status {
	case domain.IdempotencyProcessing:
		return 50
	case domain.IdempotencyCompleted:
		return 100
	default:
		return 0
	}
}

// Status reports where a key stands for its owner. An unknown key reads as
// pending since its enqueue may not be visible yet; another user's key reads
// as not found.
func (s *Service) Status(ctx context.Context, userID uuid.UUID, key string) (*StatusReport, error) {
	if err := domain.ValidateIdempotencyKey(key); err != nil {
		return nil, fmt.Errorf("Status: %w", err)
	}

	rec, err := s.idempotency.Get(ctx, nil, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &StatusReport{IdempotencyKey: key, Status: domain.IdempotencyPending}, nil
		}
		return nil, fmt.Errorf("Status: %w", err)
	}
	if rec.UserID != userID {
		return nil, fmt.Errorf("Status: %w", domain.ErrNotFound)
	}

	return &StatusReport{
		IdempotencyKey: rec.Key,
		Status:         rec.Status,
		Completed:      rec.Status == domain.IdempotencyCompleted,
		Progress:       progressOf(rec.Status),
		Response:       rec.Response,
		FailureReason:  rec.FailureReason,
	}, nil
}

// Record returns the raw idempotency record for operators.
func (s *Service) Record(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	rec, err := s.idempotency.Get(ctx, nil, key)
	if err != nil {
		return nil, fmt.Errorf("Record: %w", err)
	}
	return rec, nil
}
