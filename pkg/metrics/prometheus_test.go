package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordCacheLookup("hit")
	r.RecordCacheLookup("hit")
	r.RecordCacheLookup("miss")
	r.RecordStoreError("upsert")
	r.RecordLastClose("AAPL", 101.5)

	if got := testutil.ToFloat64(r.cacheLookups.WithLabelValues("hit")); got != 2 {
		t.Fatalf("hit count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.storeErrors.WithLabelValues("upsert")); got != 1 {
		t.Fatalf("upsert errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.lastClose.WithLabelValues("AAPL")); got != 101.5 {
		t.Fatalf("last close = %v", got)
	}
}
