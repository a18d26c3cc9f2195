package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quantmini",
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Latency of market data calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"client", "endpoint"},
	)

	UpstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quantmini",
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Failed market data calls",
		},
		[]string{"client", "endpoint"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quantmini",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client limiter",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(UpstreamLatency, UpstreamErrors, RateLimited)
	})
}
