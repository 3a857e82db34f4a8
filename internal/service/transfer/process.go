package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/metrics"
)

// Process executes one delivery of a transfer job. It is safe to call any
// number of times for the same key: at most one call commits money movement
// and the rest replay or reconcile.
//
// A returned error that satisfies domain.IsPermanent has already been
// recorded as a failed idempotency record. Any other error leaves the record
// open so a later delivery can try again.
func (s *Service) Process(ctx context.Context, job domain.TransferJob) (*Result, error) {
	ctx, log := logging.With(ctx, "idempotency_key", job.IdempotencyKey)
	start := time.Now()
	defer func() {
		metrics.TransferProcessDuration.Observe(time.Since(start).Seconds())
	}()

	if err := domain.ValidateIdempotencyKey(job.IdempotencyKey); err != nil {
		metrics.TransferJobsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("Process: %w: %w", domain.ErrInvalidRequest, err)
	}

	if err := s.ensureRecord(ctx, job); err != nil {
		metrics.TransferJobsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("Process: %w", err)
	}

	res, err := withOptimisticRetry(ctx, s.config.TransferOptimisticRetries, s.config.OptimisticBackoff(), func() (*Result, error) {
		return s.execute(ctx, job)
	})

	switch {
	case err == nil:
		metrics.TransferJobsTotal.WithLabelValues(string(res.Outcome)).Inc()
		if res.Outcome == OutcomeCommitted {
			log.Info("transfer committed",
				"transfer_id", res.TransferID,
				"amount", job.Amount,
				"currency", job.Currency,
			)
			s.notifyCommitted(ctx, job, res)
		} else {
			log.Info("transfer already settled", "outcome", res.Outcome)
			s.notifyReconciled(ctx, job, res)
		}
		return res, nil

	case errors.Is(err, domain.ErrDuplicateEntry):
		log.Warn("duplicate key on insert, reconciling", "error", err)
		rec, rerr := s.Reconcile(ctx, job.IdempotencyKey)
		if rerr != nil {
			metrics.TransferJobsTotal.WithLabelValues(metrics.OutcomeError).Inc()
			s.recordAttempt(ctx, job.IdempotencyKey, rerr)
			return nil, fmt.Errorf("Process: reconcile: %w", rerr)
		}
		if rec == nil {
			metrics.TransferJobsTotal.WithLabelValues(metrics.OutcomeError).Inc()
			s.recordAttempt(ctx, job.IdempotencyKey, domain.ErrReconcileMissing)
			return nil, fmt.Errorf("Process: %w", domain.ErrReconcileMissing)
		}
		metrics.TransferJobsTotal.WithLabelValues(string(rec.Outcome)).Inc()
		s.notifyReconciled(ctx, job, rec)
		return rec, nil

	case domain.IsPermanent(err):
		metrics.TransferJobsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		log.Warn("transfer failed", "reason", domain.FailureReason(err), "error", err)
		s.notify(ctx, domain.TransferNotification{
			UserID:         job.UserID,
			Status:         domain.NotificationFailed,
			IdempotencyKey: job.IdempotencyKey,
			Amount:         job.Amount,
			Currency:       job.Currency,
			Reason:         domain.FailureReason(err),
		})
		return nil, fmt.Errorf("Process: %w", err)

	case errors.Is(err, domain.ErrIdempotencyNotPending):
		metrics.TransferJobsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		log.Warn("record is not pending, dropping delivery", "error", err)
		return nil, fmt.Errorf("Process: %w", err)

	default:
		metrics.TransferJobsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		log.Error("transfer attempt failed", "error", err)
		s.recordAttempt(ctx, job.IdempotencyKey, err)
		return nil, fmt.Errorf("Process: %w", err)
	}
}

// ensureRecord registers the key for jobs that reached the queue without
// going through Enqueue.
func (s *Service) ensureRecord(ctx context.Context, job domain.TransferJob) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, _, err = s.idempotency.CreateIfAbsent(ctx, &domain.IdempotencyRecord{
		Key:       job.IdempotencyKey,
		UserID:    job.UserID,
		Request:   payload,
		CreatedAt: s.now(),
	})
	return err
}

func (s *Service) recordAttempt(ctx context.Context, key string, cause error) {
	if err := s.idempotency.RecordAttempt(ctx, key, cause.Error()); err != nil {
		logging.FromContext(ctx).Error("failed to record attempt", "error", err)
	}
}

// execute is one transactional unit: claim, detect prior commits, move.
// A permanent failure is returned only after the transaction that marked
// the record failed has committed.
func (s *Service) execute(ctx context.Context, job domain.TransferJob) (*Result, error) {
	var (
		res     *Result
		failure error
	)
	err := s.txr.WithinTx(ctx, func(tx *sql.Tx) error {
		claimed, err := s.idempotency.ClaimProcessing(ctx, tx, job.IdempotencyKey)
		if err != nil {
			return err
		}
		if !claimed {
			res, err = s.replay(ctx, tx, job.IdempotencyKey)
			return err
		}

		found, err := s.findCommitted(ctx, tx, job.IdempotencyKey)
		if err != nil {
			return err
		}
		if found != nil {
			if _, err := s.idempotency.MarkCompleted(ctx, tx, job.IdempotencyKey, found.response()); err != nil {
				return err
			}
			res = found
			return nil
		}

		res, err = s.move(ctx, tx, job)
		if err != nil && domain.IsPermanent(err) {
			if _, ferr := s.idempotency.MarkFailed(ctx, tx, job.IdempotencyKey, domain.FailureReason(err)); ferr != nil {
				return ferr
			}
			failure = err
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	return res, nil
}

func (s *Service) replay(ctx context.Context, tx *sql.Tx, key string) (*Result, error) {
	rec, err := s.idempotency.Get(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.IdempotencyCompleted {
		return nil, fmt.Errorf("key %s is %s: %w", key, rec.Status, domain.ErrIdempotencyNotPending)
	}

	res := &Result{IdempotencyKey: key, Outcome: OutcomeReplayed}
	if rec.Response != nil {
		res.TransferID = rec.Response.TransferID
		res.LedgerOnly = rec.Response.LedgerOnly
	}
	return res, nil
}

// findCommitted looks for money movement already committed under key. The
// transfer record is authoritative; ledger entries alone mean an earlier
// commit lost its transfer row, which is surfaced loudly.
func (s *Service) findCommitted(ctx context.Context, tx *sql.Tx, key string) (*Result, error) {
	t, err := s.transfers.GetByIdempotencyKey(ctx, tx, key)
	if err == nil {
		id := t.ID
		return &Result{IdempotencyKey: key, TransferID: &id, Outcome: OutcomeReconciled}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	entry, err := s.ledger.FindByIdempotencyKey(ctx, tx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	metrics.LedgerOnlyReconciliationsTotal.Inc()
	logging.FromContext(ctx).Error("ledger entries exist without a transfer record",
		"ledger_entry_id", entry.ID,
		"wallet_id", entry.WalletID,
	)
	return &Result{IdempotencyKey: key, LedgerOnly: true, Outcome: OutcomeReconciled}, nil
}

// move performs the balance check and writes for a claimed key. Versions
// are read before the balance so a concurrent debit committed in between
// is caught by the version check.
func (s *Service) move(ctx context.Context, tx *sql.Tx, job domain.TransferJob) (*Result, error) {
	if job.FromWalletID == job.ToWalletID {
		return nil, domain.ErrSelfTransfer
	}

	from, err := s.walletIn(ctx, tx, job.FromWalletID)
	if err != nil {
		return nil, err
	}
	if from.OwnerID != job.UserID {
		return nil, domain.ErrNotWalletOwner
	}
	if job.Currency != "" && job.Currency != from.Currency {
		return nil, fmt.Errorf("job currency %s, wallet %s: %w", job.Currency, from.Currency, domain.ErrCurrencyMismatch)
	}
	to, err := s.walletIn(ctx, tx, job.ToWalletID)
	if err != nil {
		return nil, err
	}

	amount, err := domain.ParseAmount(job.Amount, from.Currency)
	if err != nil {
		return nil, err
	}

	balance, err := s.ledger.BalanceOf(ctx, tx, from.ID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, fmt.Errorf("balance %s, requested %s: %w", balance, amount, domain.ErrInsufficientFunds)
	}

	conv, err := s.fx.Convert(ctx, amount, from.Currency, to.Currency)
	if err != nil {
		return nil, err
	}

	now := s.now()
	key := job.IdempotencyKey
	debit := &domain.LedgerEntry{
		ID:             uuid.New(),
		WalletID:       from.ID,
		EntryType:      domain.EntryTypeDebit,
		Amount:         amount,
		TxID:           job.TxID,
		IdempotencyKey: &key,
		Metadata:       job.Metadata,
		CreatedAt:      now,
	}
	credit := &domain.LedgerEntry{
		ID:             uuid.New(),
		WalletID:       to.ID,
		EntryType:      domain.EntryTypeCredit,
		Amount:         conv.DestAmount,
		TxID:           job.TxID,
		IdempotencyKey: &key,
		Metadata:       job.Metadata,
		CreatedAt:      now,
	}
	if err := s.ledger.Append(ctx, tx, debit, credit); err != nil {
		return nil, err
	}

	t := &domain.Transfer{
		ID:             uuid.New(),
		FromWalletID:   from.ID,
		ToWalletID:     to.ID,
		Amount:         amount,
		CreditedAmount: conv.DestAmount,
		ExchangeRate:   conv.ExchangeRate,
		IdempotencyKey: key,
		TxID:           job.TxID,
		Metadata:       job.Metadata,
		CreatedAt:      now,
	}
	if err := s.transfers.Create(ctx, tx, t); err != nil {
		return nil, err
	}

	if err := s.bumpVersions(ctx, tx, from, to); err != nil {
		return nil, err
	}

	res := &Result{
		IdempotencyKey: key,
		TransferID:     &t.ID,
		Outcome:        OutcomeCommitted,
		recipientID:    to.OwnerID,
		creditedAmount: conv.DestAmount,
		creditCurrency: to.Currency,
	}
	if _, err := s.idempotency.MarkCompleted(ctx, tx, key, res.response()); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) walletIn(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("wallet %s: %w", id, domain.ErrWalletNotFound)
		}
		return nil, err
	}
	return w, nil
}

// bumpVersions applies the compare-and-swap to both wallets in id order so
// two opposing transfers cannot deadlock on the row locks.
func (s *Service) bumpVersions(ctx context.Context, tx *sql.Tx, a, b *domain.Wallet) error {
	if b.ID.String() < a.ID.String() {
		a, b = b, a
	}
	for _, w := range []*domain.Wallet{a, b} {
		n, err := s.wallets.CASIncrementVersion(ctx, tx, w.ID, w.Version)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("wallet %s at version %d: %w", w.ID, w.Version, domain.ErrOptimisticLock)
		}
	}
	return nil
}
