package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")

	// Permanent: the request can never succeed as submitted.
	ErrInvalidAmount     = errors.New("amount must be a positive decimal")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotWalletOwner    = errors.New("user is not the owner of the source wallet")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrSelfTransfer      = errors.New("cannot transfer to the same wallet")
	ErrCurrencyMismatch  = errors.New("currency mismatch")
	ErrInvalidCurrency   = errors.New("invalid currency")

	// Transient or race signals.
	ErrOptimisticLock   = errors.New("optimistic lock conflict")
	ErrDuplicateEntry   = errors.New("duplicate entry")
	ErrRateUnavailable  = errors.New("exchange rate unavailable")
	ErrReconcileMissing = errors.New("duplicate key reported but nothing committed")

	// Idempotency state.
	ErrAlreadyProcessed      = errors.New("idempotency key already processed")
	ErrTransferInFlight      = errors.New("transfer is already being processed")
	ErrPreviouslyFailed      = errors.New("previous transfer failed, cannot enqueue")
	ErrIdempotencyConflict   = errors.New("idempotency key reused with a different request")
	ErrIdempotencyNotPending = errors.New("idempotency record not pending")
)

var permanentErrors = []struct {
	err    error
	reason string
}{
	{ErrInvalidAmount, "Invalid amount"},
	{ErrInsufficientFunds, "Insufficient funds"},
	{ErrNotWalletOwner, "User is not the owner of the source wallet"},
	{ErrWalletNotFound, "Wallet not found"},
	{ErrSelfTransfer, "Cannot transfer to the same wallet"},
	{ErrCurrencyMismatch, "Currency mismatch"},
	{ErrInvalidCurrency, "Unsupported currency"},
}

// IsPermanent reports whether err describes a request that must not be retried.
func IsPermanent(err error) bool {
	for _, p := range permanentErrors {
		if errors.Is(err, p.err) {
			return true
		}
	}
	return false
}

// FailureReason is the message stored on a failed idempotency record and
// shown to the requester.
func FailureReason(err error) string {
	for _, p := range permanentErrors {
		if errors.Is(err, p.err) {
			return p.reason
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
