package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqw_deliveries_total",
			Help: "Total number of delivery attempts per target and outcome",
		},
		[]string{"service", "target", "outcome"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mqw_delivery_duration_seconds",
			Help:    "Time spent in service plugins",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mqw_breaker_open",
			Help: "1 while the circuit breaker of a target is open",
		},
		[]string{"target"},
	)
)
