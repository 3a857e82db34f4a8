package notify

import (
	"context"
	"fmt"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/metrics"
)

type notificationQueue interface {
	EnqueueNotification(ctx context.Context, n domain.TransferNotification) error
}

// Notifier hands transfer outcomes to the notifications queue. Delivery
// happens later in Handler.
type Notifier struct {
	queue notificationQueue
}

func NewNotifier(queue notificationQueue) *Notifier {
	return &Notifier{queue: queue}
}

func (n *Notifier) NotifyTransferOutcome(ctx context.Context, note domain.TransferNotification) error {
	if err := n.queue.EnqueueNotification(ctx, note); err != nil {
		metrics.NotificationsTotal.WithLabelValues("queue_error").Inc()
		return fmt.Errorf("NotifyTransferOutcome: %w", err)
	}
	metrics.NotificationsTotal.WithLabelValues("queued").Inc()
	return nil
}
