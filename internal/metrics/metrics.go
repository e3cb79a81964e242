// Package metrics defines Prometheus metrics for bookvault.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookvault_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookvault_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	InFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookvault_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookvault_http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		},
		[]string{"reason"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookvault_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookvault_transactions_total",
			Help: "Database transactions by outcome",
		},
		[]string{"outcome"},
	)

	TransactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookvault_transaction_duration_seconds",
			Help:    "Time from BEGIN to COMMIT or ROLLBACK",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookvault_retry_attempts_total",
			Help: "Failed attempts seen by the retry executor, by error kind",
		},
		[]string{"kind"},
	)

	BatchRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookvault_batch_rows_total",
			Help: "Rows handled by batch operations",
		},
		[]string{"operation", "result"},
	)

	AuditQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookvault_audit_queue_depth",
			Help: "Current standalone audit queue depth",
		},
	)

	AuditDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookvault_audit_dropped_total",
			Help: "Standalone audit entries dropped because the queue was full",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, InFlightRequests, RateLimitedTotal, ErrorsTotal,
		TransactionsTotal, TransactionDuration,
		RetryAttemptsTotal, BatchRowsTotal,
		AuditQueueDepth, AuditDroppedTotal,
	)
}
