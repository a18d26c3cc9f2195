package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"QuantMini/internal/domain/models"
	domrepo "QuantMini/internal/domain/repository"
	applogger "QuantMini/pkg/logger"
	"QuantMini/pkg/metrics"

	"golang.org/x/sync/singleflight"
)

// DefaultFreshness is how long a cached computation is served without
// recomputing.
const DefaultFreshness = 5 * time.Minute

// ComputeFunc produces a fresh result on cache miss.
type ComputeFunc func(ctx context.Context) (models.Result, error)

// CacheOrchestrator serves results from a CacheStore and recomputes them
// when the stored entry is missing, stale or unreadable.
type CacheOrchestrator struct {
	store       domrepo.CacheStore
	freshness   time.Duration
	storeAbsent bool
	metrics     domrepo.Metrics
	l           *applogger.Logger
	group       singleflight.Group
}

type OrchestratorOption func(*CacheOrchestrator)

func WithFreshness(d time.Duration) OrchestratorOption {
	return func(o *CacheOrchestrator) {
		if d > 0 {
			o.freshness = d
		}
	}
}

// WithStoreAbsent controls whether data-absence results are persisted.
func WithStoreAbsent(v bool) OrchestratorOption {
	return func(o *CacheOrchestrator) { o.storeAbsent = v }
}

func WithMetrics(m domrepo.Metrics) OrchestratorOption {
	return func(o *CacheOrchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

func WithLogger(l *applogger.Logger) OrchestratorOption {
	return func(o *CacheOrchestrator) {
		if l != nil {
			o.l = l
		}
	}
}

func NewCacheOrchestrator(store domrepo.CacheStore, opts ...OrchestratorOption) *CacheOrchestrator {
	o := &CacheOrchestrator{
		store:       store,
		freshness:   DefaultFreshness,
		storeAbsent: true,
		metrics:     metrics.Nop{},
		l:           applogger.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetOrUpdate returns the cached result for (symbol, kind) if it is fresh
// and decodes; otherwise it runs compute, stores the result and returns it.
// Concurrent misses on the same key share one compute call. Errors from
// compute are returned unchanged and nothing is written.
func (o *CacheOrchestrator) GetOrUpdate(ctx context.Context, symbol, kind string, compute ComputeFunc) (models.Result, error) {
	if res, ok := o.lookup(ctx, symbol, kind); ok {
		return res, nil
	}
	return o.update(ctx, symbol, kind, compute)
}

// Refresh recomputes (symbol, kind) regardless of what is stored.
func (o *CacheOrchestrator) Refresh(ctx context.Context, symbol, kind string, compute ComputeFunc) (models.Result, error) {
	return o.update(ctx, symbol, kind, compute)
}

func (o *CacheOrchestrator) lookup(ctx context.Context, symbol, kind string) (models.Result, bool) {
	entry, err := o.store.ReadFresh(ctx, symbol, kind, o.freshness)
	if err != nil {
		if errors.Is(err, domrepo.ErrEntryNotFound) {
			o.metrics.RecordCacheLookup(domrepo.OutcomeMiss)
			return models.Result{}, false
		}
		o.metrics.RecordCacheLookup(domrepo.OutcomeError)
		o.metrics.RecordStoreError("read")
		o.l.Warn("cache read failed, recomputing",
			applogger.String("symbol", symbol),
			applogger.String("kind", kind),
			applogger.Error(err),
		)
		return models.Result{}, false
	}

	var res models.Result
	if err := json.Unmarshal([]byte(entry.Payload), &res); err != nil {
		o.metrics.RecordCacheLookup(domrepo.OutcomeCorrupt)
		o.l.Warn("cached payload unreadable, recomputing",
			applogger.String("symbol", symbol),
			applogger.String("kind", kind),
			applogger.Error(err),
		)
		return models.Result{}, false
	}
	o.metrics.RecordCacheLookup(domrepo.OutcomeHit)
	return res, true
}

// update runs compute once per (symbol, kind) across concurrent callers.
// The shared computation keeps the first caller's values but not its
// cancellation; each caller stops waiting when its own ctx is done.
func (o *CacheOrchestrator) update(ctx context.Context, symbol, kind string, compute ComputeFunc) (models.Result, error) {
	detached := context.WithoutCancel(ctx)
	ch := o.group.DoChan(symbol+"\x00"+kind, func() (interface{}, error) {
		start := time.Now()
		res, err := compute(detached)
		o.metrics.RecordComputeLatency(time.Since(start).Seconds())
		if err != nil {
			return models.Result{}, err
		}
		o.persist(detached, symbol, kind, res)
		return res, nil
	})

	select {
	case <-ctx.Done():
		return models.Result{}, ctx.Err()
	case r := <-ch:
		if r.Shared {
			o.l.Debug("joined in-flight computation",
				applogger.String("symbol", symbol),
				applogger.String("kind", kind),
			)
		}
		if r.Err != nil {
			return models.Result{}, r.Err
		}
		return r.Val.(models.Result), nil
	}
}

func (o *CacheOrchestrator) persist(ctx context.Context, symbol, kind string, res models.Result) {
	if res.IsAbsent() && !o.storeAbsent {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		o.metrics.RecordStoreError("encode")
		o.l.Error("encode result", applogger.String("symbol", symbol), applogger.Error(err))
		return
	}
	if err := o.store.Upsert(ctx, symbol, kind, string(payload)); err != nil {
		o.metrics.RecordStoreError("upsert")
		o.l.Error("cache upsert failed",
			applogger.String("symbol", symbol),
			applogger.String("kind", kind),
			applogger.Error(fmt.Errorf("upsert: %w", err)),
		)
	}
}
