package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
)

type recordLookup interface {
	Record(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
}

// AdminHandler serves operator-only reads. Role checks happen in middleware.
type AdminHandler struct {
	records recordLookup
}

func NewAdminHandler(records recordLookup) *AdminHandler {
	return &AdminHandler{records: records}
}

type idempotencyRecordDTO struct {
	Key           string                   `json:"key"`
	UserID        uuid.UUID                `json:"user_id"`
	Status        string                   `json:"status"`
	Request       json.RawMessage          `json:"request,omitempty"`
	Response      *domain.TransferResponse `json:"response,omitempty"`
	FailureReason *string                  `json:"failure_reason,omitempty"`
	Attempts      int                      `json:"attempts"`
	LastError     *string                  `json:"last_error,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
	ProcessedAt   *time.Time               `json:"processed_at,omitempty"`
}

func (h *AdminHandler) IdempotencyRecord(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := domain.ValidateIdempotencyKey(key); err != nil {
		RespondDomainError(w, err)
		return
	}

	rec, err := h.records.Record(r.Context(), key)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, idempotencyRecordDTO{
		Key:           rec.Key,
		UserID:        rec.UserID,
		Status:        string(rec.Status),
		Request:       rec.Request,
		Response:      rec.Response,
		FailureReason: rec.FailureReason,
		Attempts:      rec.Attempts,
		LastError:     rec.LastError,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
		ProcessedAt:   rec.ProcessedAt,
	})
}
