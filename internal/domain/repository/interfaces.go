package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"QuantMini/internal/domain/models"
)

// ErrEntryNotFound is returned by CacheStore.ReadFresh when no entry exists
// for the key or the stored entry is older than the requested window.
var ErrEntryNotFound = errors.New("cache entry not found or stale")

// CacheStore persists one payload per (symbol, kind).
type CacheStore interface {
	Init(ctx context.Context) error // ensure tables
	ReadFresh(ctx context.Context, symbol, kind string, maxAge time.Duration) (*models.CacheEntry, error)
	Upsert(ctx context.Context, symbol, kind, payload string) error
	Close() error
}

// BarsQuery describes a historical bars request against the upstream.
type BarsQuery struct {
	Symbol     string
	Timeframe  Timeframe
	Start      string // RFC3339
	End        string // RFC3339
	Limit      int
	Feed       string
	Adjustment string
}

// MarketData fetches bars from the upstream market data API.
type MarketData interface {
	GetBars(ctx context.Context, q BarsQuery) (*models.RawBarsPayload, error)
	GetLatestBars(ctx context.Context, symbol string) (json.RawMessage, error)
}

// EventPublisher announces recomputed factor results.
type EventPublisher interface {
	PublishFactorsComputed(ctx context.Context, ev *models.FactorsComputed) error
	Close() error
}

// Cache lookup outcomes reported to Metrics.
const (
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeCorrupt = "corrupt"
	OutcomeError   = "error"
)

type Metrics interface {
	RecordCacheLookup(outcome string)
	RecordStoreError(op string)
	RecordComputeLatency(seconds float64)
	RecordLastClose(symbol string, price float64)
}
