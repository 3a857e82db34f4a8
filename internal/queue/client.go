package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
)

const notificationMaxRetry = 3

type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	maxRetry  int
	timeout   time.Duration
}

func NewClient(opt asynq.RedisConnOpt, maxRetry int, timeout time.Duration) *Client {
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		maxRetry:  maxRetry,
		timeout:   timeout,
	}
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

// EnqueueTransfer pushes job with its idempotency key as the task id. A job
// already queued or retrying under that id is left alone and reported as
// enqueued. A finished task still holding the id is removed and the job is
// pushed again.
func (c *Client) EnqueueTransfer(ctx context.Context, job domain.TransferJob) (string, error) {
	task, err := NewTransferTask(job)
	if err != nil {
		return "", fmt.Errorf("EnqueueTransfer: %w", err)
	}

	opts := []asynq.Option{
		asynq.TaskID(job.IdempotencyKey),
		asynq.Queue(QueueTransfers),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		var live bool
		live, err = c.releaseTaskID(ctx, job.IdempotencyKey)
		if err != nil {
			return "", fmt.Errorf("EnqueueTransfer: %w", err)
		}
		if live {
			logging.FromContext(ctx).Debug("transfer job already queued", "idempotency_key", job.IdempotencyKey)
			return job.IdempotencyKey, nil
		}
		info, err = c.client.EnqueueContext(ctx, task, opts...)
	}
	if err != nil {
		return "", fmt.Errorf("EnqueueTransfer: %w", err)
	}
	return info.ID, nil
}

// releaseTaskID reports whether a task holding id will still run. Archived
// and completed tasks are deleted so the id can be reused.
func (c *Client) releaseTaskID(ctx context.Context, id string) (bool, error) {
	info, err := c.inspector.GetTaskInfo(QueueTransfers, id)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("releaseTaskID: %w", err)
	}

	switch info.State {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
	default:
		return true, nil
	}

	if err := c.inspector.DeleteTask(QueueTransfers, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, fmt.Errorf("releaseTaskID: %w", err)
	}
	logging.FromContext(ctx).Info("released finished transfer task",
		"idempotency_key", id,
		"state", info.State.String(),
	)
	return false, nil
}

func (c *Client) EnqueueNotification(ctx context.Context, n domain.TransferNotification) error {
	task, err := NewNotificationTask(n)
	if err != nil {
		return fmt.Errorf("EnqueueNotification: %w", err)
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(notificationMaxRetry),
	)
	if err != nil {
		return fmt.Errorf("EnqueueNotification: %w", err)
	}
	return nil
}
