// Package metrics defines the Prometheus instrumentation this toolkit
// exposes: transaction outcome counts and latency, incremented directly by
// pkg/isotp.Engine.Transact and served by the HTTP adapter at /metrics via
// promhttp.Handler(). This is additive observability, not part of the wire
// contract.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TransactionsTotal counts every completed Engine.Transact call, labeled by
// outcome: "ok", or the TransportErrorKind string for a failed one.
var TransactionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "isotp_transactions_total",
		Help: "ISO-TP transactions by outcome.",
	},
	[]string{"outcome"},
)

// TransactionSeconds observes the wall-clock duration of every
// Engine.Transact call, success or failure.
var TransactionSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "isotp_transaction_seconds",
		Help:    "ISO-TP transaction duration in seconds.",
		Buckets: prometheus.DefBuckets,
	},
)

func init() {
	prometheus.MustRegister(TransactionsTotal, TransactionSeconds)
}

// ObserveTransaction records one Engine.Transact call's outcome and
// duration.
func ObserveTransaction(outcome string, duration time.Duration) {
	TransactionsTotal.WithLabelValues(outcome).Inc()
	TransactionSeconds.Observe(duration.Seconds())
}
