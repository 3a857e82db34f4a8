package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

type IdempotencyStatus string

const (
	IdempotencyPending    IdempotencyStatus = "pending"
	IdempotencyProcessing IdempotencyStatus = "processing"
	IdempotencyCompleted  IdempotencyStatus = "completed"
	IdempotencyFailed     IdempotencyStatus = "failed"
)

func (s IdempotencyStatus) IsTerminal() bool {
	return s == IdempotencyCompleted || s == IdempotencyFailed
}

type IdempotencyRecord struct {
	Key           string
	UserID        uuid.UUID
	Status        IdempotencyStatus
	Request       json.RawMessage
	Response      *TransferResponse
	FailureReason *string
	Attempts      int
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
}

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9\-_:]{1,100}$`)

func ValidateIdempotencyKey(key string) error {
	if !idempotencyKeyPattern.MatchString(key) {
		return fmt.Errorf("ValidateIdempotencyKey: %w", ErrInvalidIdempotencyKey)
	}
	return nil
}
