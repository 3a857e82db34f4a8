package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"insufficient funds", ErrInsufficientFunds, true},
		{"wrapped not owner", fmt.Errorf("validate: %w", ErrNotWalletOwner), true},
		{"invalid amount", ErrInvalidAmount, true},
		{"self transfer", ErrSelfTransfer, true},
		{"optimistic lock", ErrOptimisticLock, false},
		{"duplicate entry", ErrDuplicateEntry, false},
		{"not pending", ErrIdempotencyNotPending, false},
		{"unclassified", errors.New("connection reset"), false},
		{"nil", nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsPermanent(tc.err))
		})
	}
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "Insufficient funds", FailureReason(fmt.Errorf("execute: %w", ErrInsufficientFunds)))
	assert.Equal(t, "User is not the owner of the source wallet", FailureReason(ErrNotWalletOwner))
	assert.Equal(t, "boom", FailureReason(errors.New("boom")))
	assert.Equal(t, "", FailureReason(nil))
}
