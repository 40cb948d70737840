package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Logins counts login attempts by result (success|failure).
	Logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotchufam_logins_total",
			Help: "Total number of family logins",
		},
		[]string{"result"},
	)

	// Heartbeats counts heartbeats by result (ok|rejected|error|loggedout).
	Heartbeats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotchufam_heartbeats_total",
			Help: "Total number of presence heartbeats",
		},
		[]string{"result"},
	)

	// SweptRows counts rows removed by the expiration sweeper, per table.
	SweptRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotchufam_swept_rows_total",
			Help: "Rows deleted by the expiration sweeper",
		},
		[]string{"table"},
	)

	// RealtimeSubscribers tracks open presence stream connections.
	RealtimeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gotchufam_realtime_subscribers",
			Help: "Number of open realtime presence connections",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gotchufam_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
