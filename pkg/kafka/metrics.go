package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal *prometheus.CounterVec
	publishedBytes *prometheus.CounterVec
	publishLatency *prometheus.HistogramVec
	metricsOnce    sync.Once
)

func initProducerMetrics() {
	metricsOnce.Do(func() {
		publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quantmini_kafka_messages_total",
			Help: "Messages published to Kafka by topic and result",
		}, []string{"topic", "compression", "result"})
		publishedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quantmini_kafka_bytes_total",
			Help: "Payload bytes published to Kafka",
		}, []string{"topic", "compression"})
		publishLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quantmini_kafka_publish_seconds",
			Help:    "Kafka publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}

func observePublish(topic, comp string, n int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	publishedTotal.WithLabelValues(topic, comp, result).Inc()
	publishedBytes.WithLabelValues(topic, comp).Add(float64(n))
	publishLatency.WithLabelValues(topic).Observe(d.Seconds())
}
