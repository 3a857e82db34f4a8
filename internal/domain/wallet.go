package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds no balance. Balance is derived from ledger entries and Version
// is bumped once per committed transfer touching the wallet.
type Wallet struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Currency  Currency
	IsDefault bool
	Version   int64
	Metadata  map[string]any
	CreatedAt time.Time
}
