package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Transfers
	// ============================================
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcpay_executions_total",
			Help: "Finished transfer executions by flow and outcome",
		},
		[]string{"flow", "status"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arcpay_execution_duration_seconds",
			Help:    "Wall time from pending record to terminal status",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"flow"},
	)

	// ============================================
	// Chain calls
	// ============================================
	ChainTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcpay_chain_transactions_total",
			Help: "Submitted chain transactions by chain, method and outcome",
		},
		[]string{"chain", "method", "status"},
	)

	// ============================================
	// Attestation
	// ============================================
	AttestationPollAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arcpay_attestation_poll_attempts",
		Help:    "Attestation requests needed per burn",
		Buckets: []float64{1, 2, 5, 10, 20, 40, 60},
	})

	AttestationTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arcpay_attestation_timeouts_total",
		Help: "Burns whose attestation never completed within the polling budget",
	})

	// ============================================
	// Scheduler
	// ============================================
	SchedulerDueTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arcpay_scheduler_due_transfers",
		Help: "Recurring transfers found due on the last tick",
	})

	SchedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arcpay_scheduler_tick_duration_seconds",
		Help:    "Time spent processing one scheduler tick",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	// ============================================
	// Outbox
	// ============================================
	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcpay_outbox_published_total",
			Help: "Execution events handed to Kafka by outcome",
		},
		[]string{"status"},
	)
)
