package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransferEnqueueTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfer_enqueue_total",
		Help: "Transfer enqueue attempts by result.",
	}, []string{"result"})

	TransferJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfer_jobs_total",
		Help: "Processed transfer jobs by outcome.",
	}, []string{"outcome"})

	TransferProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transfer_process_duration_seconds",
		Help:    "Wall time of one process call including in-process retries.",
		Buckets: prometheus.DefBuckets,
	})

	OptimisticRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfer_optimistic_retries_total",
		Help: "Transactional unit retries caused by a wallet version conflict.",
	})

	LedgerOnlyReconciliationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfer_ledger_only_reconciliations_total",
		Help: "Reconciliations that found ledger entries without a transfer record.",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfer_notifications_total",
		Help: "Outcome notifications by result.",
	}, []string{"result"})

	SweeperRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_records_total",
		Help: "Stale idempotency records handled by the sweeper, by action.",
	}, []string{"action"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "http_panics_total",
		Help: "Handler panics recovered by the HTTP middleware.",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Job outcomes.
const (
	OutcomeCommitted  = "committed"
	OutcomeReplayed   = "replayed"
	OutcomeReconciled = "reconciled"
	OutcomeFailed     = "failed"
	OutcomeError      = "error"
)
