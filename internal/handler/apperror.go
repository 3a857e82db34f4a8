package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrForbidden          = &AppError{http.StatusForbidden, "FORBIDDEN", "Insufficient role for this operation"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrRateLimited        = &AppError{http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, slow down"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}
	ErrUnavailable        = &AppError{http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable"}

	ErrInsufficientFunds = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrNotWalletOwner    = &AppError{http.StatusUnprocessableEntity, "NOT_WALLET_OWNER", "User is not the owner of the source wallet"}
	ErrSelfTransfer      = &AppError{http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED", "Cannot transfer to the same wallet"}
	ErrWalletNotFound    = &AppError{http.StatusUnprocessableEntity, "WALLET_NOT_FOUND", "Wallet not found"}
	ErrCurrencyMismatch  = &AppError{http.StatusUnprocessableEntity, "CURRENCY_MISMATCH", "Currency mismatch"}
	ErrInvalidCurrency   = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrInvalidAmount     = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be a positive decimal"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrInvalidIdempotencyKey = &AppError{http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", "Idempotency key must be 1-100 characters of [A-Za-z0-9-_:]"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrAlreadyProcessed      = &AppError{http.StatusConflict, "ALREADY_PROCESSED", "Transfer with this idempotency key was already processed"}
	ErrTransferInFlight      = &AppError{http.StatusConflict, "TRANSFER_IN_FLIGHT", "Transfer is already being processed"}
	ErrPreviouslyFailed      = &AppError{http.StatusConflict, "PREVIOUSLY_FAILED", "Previous transfer with this key failed, use a new key"}
)
