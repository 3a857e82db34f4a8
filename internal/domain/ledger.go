package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

type LedgerEntry struct {
	ID             uuid.UUID
	WalletID       uuid.UUID
	EntryType      EntryType
	Amount         decimal.Decimal
	TxID           *string
	IdempotencyKey *string
	Metadata       map[string]any
	CreatedAt      time.Time
}
