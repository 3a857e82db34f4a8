package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/metrics"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/service/transfer"
)

type staleLister interface {
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.IdempotencyRecord, error)
}

type staleResolver interface {
	ResolveStale(ctx context.Context, rec domain.IdempotencyRecord, expireBefore time.Time) (transfer.StaleAction, error)
}

type SweeperConfig struct {
	Interval    time.Duration
	StaleAfter  time.Duration
	ExpireAfter time.Duration
	BatchSize   int
}

// Sweeper periodically settles idempotency records that stopped moving,
// typically because a job was lost between enqueue and the queue or its
// last delivery failed without a classified error.
type Sweeper struct {
	records  staleLister
	resolver staleResolver
	logger   *slog.Logger
	cfg      SweeperConfig
	now      func() time.Time
}

func NewSweeper(records staleLister, resolver staleResolver, logger *slog.Logger, cfg SweeperConfig) *Sweeper {
	return &Sweeper{
		records:  records,
		resolver: resolver,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("sweeper started",
		"interval", s.cfg.Interval,
		"stale_after", s.cfg.StaleAfter,
		"expire_after", s.cfg.ExpireAfter,
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep handles one batch and returns how many records it touched.
func (s *Sweeper) sweep(ctx context.Context) int {
	now := s.now()
	records, err := s.records.ListStale(ctx, now.Add(-s.cfg.StaleAfter), s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("failed to list stale idempotency records", "error", err)
		return 0
	}

	handled := 0
	for _, rec := range records {
		action, err := s.resolver.ResolveStale(ctx, rec, now.Add(-s.cfg.ExpireAfter))
		if err != nil {
			metrics.SweeperRecordsTotal.WithLabelValues("error").Inc()
			s.logger.Error("failed to resolve stale record",
				"idempotency_key", rec.Key,
				"status", rec.Status,
				"error", err,
			)
			continue
		}
		metrics.SweeperRecordsTotal.WithLabelValues(string(action)).Inc()
		s.logger.Info("stale record resolved",
			"idempotency_key", rec.Key,
			"action", action,
			"age", now.Sub(rec.CreatedAt).Round(time.Second),
		)
		handled++
	}
	return handled
}
