package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/service/transfer"
)

type fakeProcessor struct {
	err       error
	block     bool
	processed []domain.TransferJob
	abandoned map[string]string

	abandonCtxErr error
}

func (f *fakeProcessor) Process(ctx context.Context, job domain.TransferJob) (*transfer.Result, error) {
	f.processed = append(f.processed, job)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &transfer.Result{IdempotencyKey: job.IdempotencyKey, Outcome: transfer.OutcomeCommitted}, nil
}

func (f *fakeProcessor) Abandon(ctx context.Context, key, reason string) error {
	f.abandonCtxErr = ctx.Err()
	if f.abandonCtxErr != nil {
		return f.abandonCtxErr
	}
	if f.abandoned == nil {
		f.abandoned = map[string]string{}
	}
	f.abandoned[key] = reason
	return nil
}

func transferTask(t *testing.T, key string) *asynq.Task {
	t.Helper()
	task, err := NewTransferTask(domain.TransferJob{
		UserID:         uuid.New(),
		FromWalletID:   uuid.New(),
		ToWalletID:     uuid.New(),
		Amount:         "10",
		Currency:       domain.CurrencyUSD,
		IdempotencyKey: key,
	})
	require.NoError(t, err)
	return task
}

func TestTransferHandler_ProcessTask(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		retry       int
		maxRetry    int
		wantErr     bool
		wantSkip    bool
		wantAbandon bool
	}{
		{name: "success", maxRetry: 5},
		{name: "permanent failure skips retry", err: domain.ErrInsufficientFunds, maxRetry: 5, wantErr: true, wantSkip: true},
		{name: "record not pending skips retry", err: domain.ErrIdempotencyNotPending, maxRetry: 5, wantErr: true, wantSkip: true},
		{name: "invalid request skips retry", err: domain.ErrInvalidRequest, maxRetry: 5, wantErr: true, wantSkip: true},
		{name: "transient error is retried", err: domain.ErrOptimisticLock, retry: 1, maxRetry: 5, wantErr: true},
		{name: "last attempt abandons", err: errors.New("connection reset"), retry: 5, maxRetry: 5, wantErr: true, wantAbandon: true},
		{name: "permanent on last attempt is not abandoned", err: domain.ErrNotWalletOwner, retry: 5, maxRetry: 5, wantErr: true, wantSkip: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &fakeProcessor{err: tt.err}
			h := NewTransferHandler(proc, slog.Default())
			h.attempt = func(context.Context) (int, int, bool) { return tt.retry, tt.maxRetry, true }

			err := h.ProcessTask(context.Background(), transferTask(t, "key-1"))
			require.Len(t, proc.processed, 1)
			assert.Equal(t, "key-1", proc.processed[0].IdempotencyKey)

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.wantSkip, errors.Is(err, asynq.SkipRetry))

			if tt.wantAbandon {
				assert.Equal(t, ReasonRetriesExhausted, proc.abandoned["key-1"])
			} else {
				assert.Empty(t, proc.abandoned)
			}
		})
	}
}

func TestTransferHandler_TimedOutFinalAttemptStillAbandons(t *testing.T) {
	proc := &fakeProcessor{block: true}
	h := NewTransferHandler(proc, slog.Default())
	h.attempt = func(context.Context) (int, int, bool) { return 5, 5, true }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := h.ProcessTask(ctx, transferTask(t, "slow"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	assert.NoError(t, proc.abandonCtxErr, "cleanup runs on a live context")
	assert.Equal(t, ReasonRetriesExhausted, proc.abandoned["slow"])
}

func TestTransferHandler_MalformedPayload(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewTransferHandler(proc, slog.Default())

	err := h.ProcessTask(context.Background(), asynq.NewTask(TypeTransferProcess, []byte("{not json")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, proc.processed)
}

func TestTransferHandler_OutsideServerContext(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("boom")}
	h := NewTransferHandler(proc, slog.Default())

	err := h.ProcessTask(context.Background(), transferTask(t, "key-2"))
	require.Error(t, err)
	assert.Empty(t, proc.abandoned, "without retry metadata the attempt is never treated as final")
}

func TestRetryDelay(t *testing.T) {
	delay := RetryDelay(time.Second)

	assert.Equal(t, time.Second, delay(0, nil, nil))
	assert.Equal(t, 2*time.Second, delay(1, nil, nil))
	assert.Equal(t, 8*time.Second, delay(3, nil, nil))
	assert.Equal(t, maxRetryDelay, delay(20, nil, nil))
}

func TestNewTransferTask_RoundTrip(t *testing.T) {
	txID := "ext-1"
	job := domain.TransferJob{
		UserID:         uuid.New(),
		FromWalletID:   uuid.New(),
		ToWalletID:     uuid.New(),
		Amount:         "12.50",
		Currency:       domain.CurrencyGBP,
		IdempotencyKey: "rt",
		TxID:           &txID,
	}
	task, err := NewTransferTask(job)
	require.NoError(t, err)
	assert.Equal(t, TypeTransferProcess, task.Type())

	var decoded domain.TransferJob
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, job.Amount, decoded.Amount)
	assert.Equal(t, job.Currency, decoded.Currency)
	assert.Equal(t, "ext-1", *decoded.TxID)
}
