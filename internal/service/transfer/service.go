// Package transfer moves value between wallets exactly once per idempotency
// key under at-least-once job delivery and concurrent writers.
//
// Enqueue validates and registers a key and pushes a durable job. Process
// runs on a worker: it claims the key, moves money inside one database
// transaction, retries that unit on wallet version conflicts and falls back
// to Reconcile when a duplicate-key race shows the work was already done.
package transfer

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/config"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/fx"
)

type idempotencyRepo interface {
	Get(ctx context.Context, tx *sql.Tx, key string) (*domain.IdempotencyRecord, error)
	CreateIfAbsent(ctx context.Context, rec *domain.IdempotencyRecord) (*domain.IdempotencyRecord, bool, error)
	ClaimProcessing(ctx context.Context, tx *sql.Tx, key string) (bool, error)
	MarkCompleted(ctx context.Context, tx *sql.Tx, key string, resp domain.TransferResponse) (bool, error)
	MarkFailed(ctx context.Context, tx *sql.Tx, key, reason string) (bool, error)
	RecordAttempt(ctx context.Context, key, lastError string) error
}

type ledgerRepo interface {
	Append(ctx context.Context, tx *sql.Tx, debit, credit *domain.LedgerEntry) error
	BalanceOf(ctx context.Context, tx *sql.Tx, walletID uuid.UUID) (decimal.Decimal, error)
	FindByIdempotencyKey(ctx context.Context, tx *sql.Tx, key string) (*domain.LedgerEntry, error)
}

type walletRepo interface {
	GetByID(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error)
	CASIncrementVersion(ctx context.Context, tx *sql.Tx, id uuid.UUID, expected int64) (int64, error)
}

type transferRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transfer) error
	GetByIdempotencyKey(ctx context.Context, tx *sql.Tx, key string) (*domain.Transfer, error)
}

type converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to domain.Currency) (*fx.Conversion, error)
}

type jobQueue interface {
	EnqueueTransfer(ctx context.Context, job domain.TransferJob) (string, error)
}

type notifier interface {
	NotifyTransferOutcome(ctx context.Context, n domain.TransferNotification) error
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type Service struct {
	idempotency idempotencyRepo
	ledger      ledgerRepo
	wallets     walletRepo
	transfers   transferRepo
	fx          converter
	queue       jobQueue
	notifier    notifier
	txr         txRunner
	config      *config.Config
	now         func() time.Time
}

func NewService(
	idempotency idempotencyRepo,
	ledger ledgerRepo,
	wallets walletRepo,
	transfers transferRepo,
	fxSvc converter,
	queue jobQueue,
	notifier notifier,
	txr txRunner,
	cfg *config.Config,
) *Service {
	return &Service{
		idempotency: idempotency,
		ledger:      ledger,
		wallets:     wallets,
		transfers:   transfers,
		fx:          fxSvc,
		queue:       queue,
		notifier:    notifier,
		txr:         txr,
		config:      cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type Outcome string

const (
	// OutcomeCommitted means this call moved the money.
	OutcomeCommitted Outcome = "committed"
	// OutcomeReplayed means the key was already completed when claimed.
	OutcomeReplayed Outcome = "replayed"
	// OutcomeReconciled means committed rows were found and the record was
	// brought in line with them.
	OutcomeReconciled Outcome = "reconciled"
)

type Result struct {
	IdempotencyKey string
	TransferID     *uuid.UUID
	LedgerOnly     bool
	Outcome        Outcome

	recipientID    uuid.UUID
	creditedAmount decimal.Decimal
	creditCurrency domain.Currency
}

func (r *Result) response() domain.TransferResponse {
	return domain.TransferResponse{TransferID: r.TransferID, LedgerOnly: r.LedgerOnly}
}
