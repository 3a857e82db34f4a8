package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/service/transfer"
)

// ReasonRetriesExhausted is stored on records whose last delivery failed.
const ReasonRetriesExhausted = "retries exhausted"

// abandonTimeout bounds the cleanup of an exhausted job. The task context
// is often already past its deadline by then.
const abandonTimeout = 10 * time.Second

type transferProcessor interface {
	Process(ctx context.Context, job domain.TransferJob) (*transfer.Result, error)
	Abandon(ctx context.Context, key, reason string) error
}

type TransferHandler struct {
	svc    transferProcessor
	logger *slog.Logger

	// attempt reports the current retry count and the task's retry limit.
	attempt func(ctx context.Context) (retry, maxRetry int, ok bool)
}

func NewTransferHandler(svc transferProcessor, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{svc: svc, logger: logger, attempt: taskAttempt}
}

func taskAttempt(ctx context.Context) (int, int, bool) {
	retry, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return 0, 0, false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return retry, maxRetry, ok
}

// ProcessTask runs one delivery of a transfer job. Outcomes that another
// delivery cannot change are returned wrapped in asynq.SkipRetry.
func (h *TransferHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	retry, maxRetry, known := h.attempt(ctx)
	taskID, _ := asynq.GetTaskID(ctx)

	log := h.logger.With("task_id", taskID, "retry", retry)

	var job domain.TransferJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		log.Error("malformed transfer payload", "error", err)
		return fmt.Errorf("ProcessTask: decode payload: %w: %w", err, asynq.SkipRetry)
	}

	log = log.With("idempotency_key", job.IdempotencyKey)
	ctx = logging.WithLogger(ctx, log)

	_, err := h.svc.Process(ctx, job)
	switch {
	case err == nil:
		return nil
	case domain.IsPermanent(err),
		errors.Is(err, domain.ErrIdempotencyNotPending),
		errors.Is(err, domain.ErrInvalidRequest):
		return fmt.Errorf("ProcessTask: %w: %w", err, asynq.SkipRetry)
	}

	if known && retry >= maxRetry {
		log.Error("transfer retries exhausted", "error", err)
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonTimeout)
		defer cancel()
		if abandonErr := h.svc.Abandon(cleanupCtx, job.IdempotencyKey, ReasonRetriesExhausted); abandonErr != nil {
			log.Error("failed to close exhausted transfer", "error", abandonErr)
		}
	}
	return fmt.Errorf("ProcessTask: %w", err)
}
