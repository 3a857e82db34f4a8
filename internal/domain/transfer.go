package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Transfer struct {
	ID             uuid.UUID
	FromWalletID   uuid.UUID
	ToWalletID     uuid.UUID
	Amount         decimal.Decimal
	CreditedAmount decimal.Decimal
	ExchangeRate   decimal.Decimal
	IdempotencyKey string
	TxID           *string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// TransferJob is the durable queue payload. Amount stays a string so a
// malformed value is rejected by the worker as a permanent failure instead
// of failing payload decoding.
type TransferJob struct {
	UserID         uuid.UUID      `json:"user_id"`
	FromWalletID   uuid.UUID      `json:"from_wallet_id"`
	ToWalletID     uuid.UUID      `json:"to_wallet_id"`
	Amount         string         `json:"amount"`
	Currency       Currency       `json:"currency"`
	IdempotencyKey string         `json:"idempotency_key"`
	TxID           *string        `json:"tx_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	EnqueuedAt     time.Time      `json:"enqueued_at"`
}

// TransferResponse is what a completed idempotency record replays.
// TransferID is nil only for a ledger-only reconciliation.
type TransferResponse struct {
	TransferID *uuid.UUID `json:"transfer_id"`
	LedgerOnly bool       `json:"ledger_only,omitempty"`
}

type NotificationStatus string

const (
	NotificationCompleted NotificationStatus = "completed"
	NotificationFailed    NotificationStatus = "failed"
	NotificationPending   NotificationStatus = "pending"
	NotificationReceived  NotificationStatus = "received"
)

type TransferNotification struct {
	UserID         uuid.UUID          `json:"user_id"`
	Status         NotificationStatus `json:"status"`
	IdempotencyKey string             `json:"idempotency_key"`
	TransferID     *uuid.UUID         `json:"transfer_id,omitempty"`
	Amount         string             `json:"amount"`
	Currency       Currency           `json:"currency"`
	Reason         string             `json:"reason,omitempty"`
}
