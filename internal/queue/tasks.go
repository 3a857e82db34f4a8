package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
)

const (
	TypeTransferProcess = "transfer:process"
	TypeTransferNotify  = "notify:transfer_outcome"

	QueueTransfers     = "transfers"
	QueueNotifications = "notifications"
)

func NewTransferTask(job domain.TransferJob) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("NewTransferTask: %w", err)
	}
	return asynq.NewTask(TypeTransferProcess, payload), nil
}

func NewNotificationTask(n domain.TransferNotification) (*asynq.Task, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("NewNotificationTask: %w", err)
	}
	return asynq.NewTask(TypeTransferNotify, payload), nil
}
