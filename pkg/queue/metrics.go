package queue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	queueDepth  *prometheus.GaugeVec
	metricsOnce sync.Once
)

func initQueueMetrics() {
	metricsOnce.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantmini_queue_messages_total",
				Help: "Queue messages by type and outcome",
			},
			[]string{"type", "result"},
		)
		jobDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantmini_queue_job_seconds",
				Help:    "Job handler latency",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"type"},
		)
		queueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantmini_queue_depth",
				Help: "Messages waiting in the queue by state",
			},
			[]string{"state"},
		)
	})
}

func recordDepth(s Stats) {
	queueDepth.WithLabelValues("pending").Set(float64(s.Pending))
	queueDepth.WithLabelValues("retrying").Set(float64(s.Retrying))
	queueDepth.WithLabelValues("dead").Set(float64(s.Dead))
}
