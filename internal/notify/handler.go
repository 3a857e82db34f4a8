package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/metrics"
)

type userLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type Handler struct {
	users  userLookup
	sender Sender
	logger *slog.Logger
}

func NewHandler(users userLookup, sender Sender, logger *slog.Logger) *Handler {
	return &Handler{users: users, sender: sender, logger: logger}
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var n domain.TransferNotification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		h.logger.Error("malformed notification payload", "error", err)
		return fmt.Errorf("ProcessTask: decode payload: %w: %w", err, asynq.SkipRetry)
	}

	user, err := h.users.GetByID(ctx, n.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
			h.logger.Warn("notification for unknown user dropped",
				"user_id", n.UserID,
				"idempotency_key", n.IdempotencyKey,
			)
			return fmt.Errorf("ProcessTask: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("ProcessTask: %w", err)
	}

	if err := h.sender.Send(ctx, Render(user, n)); err != nil {
		metrics.NotificationsTotal.WithLabelValues("send_error").Inc()
		h.logger.Warn("notification delivery failed",
			"user_id", n.UserID,
			"status", n.Status,
			"error", err,
		)
		return fmt.Errorf("ProcessTask: send: %w", err)
	}

	metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
	return nil
}

// Render builds the message a user receives for n.
func Render(user *domain.User, n domain.TransferNotification) Message {
	amount := n.Amount + " " + string(n.Currency)

	var subject, body string
	switch n.Status {
	case domain.NotificationPending:
		subject = "Transfer received for processing"
		body = fmt.Sprintf("Hi %s, your transfer of %s (ref %s) is queued.", user.Name, amount, n.IdempotencyKey)
	case domain.NotificationCompleted:
		subject = "Transfer completed"
		body = fmt.Sprintf("Hi %s, your transfer of %s (ref %s) has been completed.", user.Name, amount, n.IdempotencyKey)
	case domain.NotificationReceived:
		subject = "You received a transfer"
		body = fmt.Sprintf("Hi %s, %s has been credited to your wallet.", user.Name, amount)
	case domain.NotificationFailed:
		subject = "Transfer failed"
		body = fmt.Sprintf("Hi %s, your transfer (ref %s) could not be completed: %s.", user.Name, n.IdempotencyKey, n.Reason)
	default:
		subject = "Transfer update"
		body = fmt.Sprintf("Hi %s, your transfer (ref %s) is now %s.", user.Name, n.IdempotencyKey, n.Status)
	}

	return Message{To: user.Email, Subject: subject, Body: body}
}
