package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/auth"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/service/transfer"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type transferService interface {
	Enqueue(ctx context.Context, req transfer.EnqueueRequest) (*transfer.EnqueueResult, error)
	Status(ctx context.Context, userID uuid.UUID, key string) (*transfer.StatusReport, error)
}

type TransferHandler struct {
	transfers      transferService
	streamInterval time.Duration
}

func NewTransferHandler(transfers transferService, streamInterval time.Duration) *TransferHandler {
	return &TransferHandler{transfers: transfers, streamInterval: streamInterval}
}

type createTransferRequest struct {
	FromWalletID string         `json:"from_wallet_id"`
	ToWalletID   string         `json:"to_wallet_id"`
	Amount       string         `json:"amount"`
	TxID         *string        `json:"tx_id"`
	Metadata     map[string]any `json:"metadata"`
}

func (r createTransferRequest) Validate() []FieldError {
	var errs []FieldError

	if r.FromWalletID == "" {
		errs = append(errs, FieldError{Field: "from_wallet_id", Message: "required"})
	} else if _, err := uuid.Parse(r.FromWalletID); err != nil {
		errs = append(errs, FieldError{Field: "from_wallet_id", Message: "must be a valid UUID"})
	}

	if r.ToWalletID == "" {
		errs = append(errs, FieldError{Field: "to_wallet_id", Message: "required"})
	} else if _, err := uuid.Parse(r.ToWalletID); err != nil {
		errs = append(errs, FieldError{Field: "to_wallet_id", Message: "must be a valid UUID"})
	}

	if r.Amount == "" {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	}

	if r.TxID != nil && (len(*r.TxID) == 0 || len(*r.TxID) > 128) {
		errs = append(errs, FieldError{Field: "tx_id", Message: "must be 1-128 characters"})
	}

	return errs
}

type enqueueResponse struct {
	JobID          string `json:"job_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
	StatusURL      string `json:"status_url"`
	StreamURL      string `json:"stream_url"`
}

// Create accepts a transfer for asynchronous processing. A 202 only means
// the job is durable; clients follow status_url for the outcome.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" {
		RespondAppError(w, ErrMissingIdempotencyKey, nil)
		return
	}

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	res, err := h.transfers.Enqueue(r.Context(), transfer.EnqueueRequest{
		UserID:         userID,
		FromWalletID:   uuid.MustParse(req.FromWalletID),
		ToWalletID:     uuid.MustParse(req.ToWalletID),
		Amount:         req.Amount,
		IdempotencyKey: key,
		TxID:           req.TxID,
		Metadata:       req.Metadata,
	})
	if err != nil {
		logging.FromContext(r.Context()).Info("transfer rejected", "idempotency_key", key, "error", err)
		RespondDomainError(w, err)
		return
	}

	base := "/api/v1/transfers/" + res.IdempotencyKey
	w.Header().Set("Location", base+"/status")
	RespondSuccess(w, http.StatusAccepted, enqueueResponse{
		JobID:          res.JobID,
		IdempotencyKey: res.IdempotencyKey,
		Status:         string(res.Status),
		StatusURL:      base + "/status",
		StreamURL:      base + "/stream",
	})
}

func (h *TransferHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	report, err := h.transfers.Status(r.Context(), userID, r.PathValue("key"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, report)
}

// Stream pushes the status report as Server-Sent Events. A frame is sent
// whenever the status changes and the stream closes with an end event once
// the record is terminal.
func (h *TransferHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	ctx := r.Context()
	key := r.PathValue("key")
	log := logging.FromContext(ctx).With("idempotency_key", key)

	report, err := h.transfers.Status(ctx, userID, key)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut long-lived streams.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	var last domain.IdempotencyStatus
	for {
		if report.Status != last {
			if err := writeEvent(w, "", report); err != nil {
				log.Warn("status stream write failed", "error", err)
				return
			}
			last = report.Status
		}
		if report.Status.IsTerminal() {
			_ = writeEvent(w, "end", report)
			_ = rc.Flush()
			return
		}
		if err := rc.Flush(); err != nil {
			log.Warn("status stream flush failed", "error", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		report, err = h.transfers.Status(ctx, userID, key)
		if err != nil {
			log.Warn("status stream poll failed", "error", err)
			_ = writeEvent(w, "error", APIError{Code: ErrInternalError.Code, Message: ErrInternalError.Message})
			_ = rc.Flush()
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("writeEvent: %w", err)
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return fmt.Errorf("writeEvent: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("writeEvent: %w", err)
	}
	return nil
}
