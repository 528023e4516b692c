package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switch_transactions_total",
			Help: "Processed transactions by terminal status",
		},
		[]string{"status"},
	)

	BankLegLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switch_bank_leg_latency_seconds",
			Help:    "Latency of debit/credit/reversal legs per bank",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"bank_code", "leg"},
	)

	ReversalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "switch_reversals_total",
			Help: "Compensating reversals issued",
		},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "switch_events_dropped_total",
			Help: "Lifecycle events dropped or failed to publish",
		},
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(BankLegLatency)
	prometheus.MustRegister(ReversalsTotal)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(WorkerQueueDepth)
}
