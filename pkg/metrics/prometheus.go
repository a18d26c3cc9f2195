package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cacheLookups   *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	computeLatency prometheus.Histogram
	lastClose      *prometheus.GaugeVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantmini_cache_lookups_total",
				Help: "Factor cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		storeErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantmini_cache_store_errors_total",
				Help: "Cache store failures by operation",
			},
			[]string{"op"},
		),
		computeLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quantmini_factor_compute_seconds",
				Help:    "Duration of fetch plus factor computation on cache miss",
				Buckets: prometheus.DefBuckets,
			},
		),
		lastClose: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantmini_last_close",
				Help: "Last close seen in a computed series",
			},
			[]string{"symbol"},
		),
	}
}

// RecordCacheLookup counts one orchestrator lookup.
func (r *Recorder) RecordCacheLookup(outcome string) {
	r.cacheLookups.WithLabelValues(outcome).Inc()
}

// RecordStoreError counts a failed read or upsert.
func (r *Recorder) RecordStoreError(op string) {
	r.storeErrors.WithLabelValues(op).Inc()
}

// RecordComputeLatency records compute latency in seconds.
func (r *Recorder) RecordComputeLatency(seconds float64) {
	r.computeLatency.Observe(seconds)
}

// RecordLastClose records the last close for a symbol.
func (r *Recorder) RecordLastClose(symbol string, price float64) {
	r.lastClose.WithLabelValues(symbol).Set(price)
}

// Nop discards all observations.
type Nop struct{}

func (Nop) RecordCacheLookup(string)        {}
func (Nop) RecordStoreError(string)         {}
func (Nop) RecordComputeLatency(float64)    {}
func (Nop) RecordLastClose(string, float64) {}
