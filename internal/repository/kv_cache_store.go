package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"QuantMini/internal/domain/models"
	domrepo "QuantMini/internal/domain/repository"
	"QuantMini/pkg/cache"
	applogger "QuantMini/pkg/logger"
)

type kvEntry struct {
	Payload   string    `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
}

// KVCacheStore implements CacheStore over a key-value cache.Service. One key
// per (symbol, kind) gives last-write-wins uniqueness.
type KVCacheStore struct {
	svc       cache.Service
	retention time.Duration
	now       Clock
	l         *applogger.Logger
}

// NewKVCacheStore creates a store; retention bounds how long keys live in the
// backend (zero keeps them for the backend default).
func NewKVCacheStore(svc cache.Service, retention time.Duration) *KVCacheStore {
	return &KVCacheStore{svc: svc, retention: retention, now: time.Now}
}

// SetLogger injects a structured logger.
func (s *KVCacheStore) SetLogger(l *applogger.Logger) { s.l = l }

// SetClock overrides the time source.
func (s *KVCacheStore) SetClock(c Clock) { s.now = c }

func (s *KVCacheStore) Init(context.Context) error { return nil }

func (s *KVCacheStore) key(symbol, kind string) string {
	return cache.Key("cache_entries", symbol, kind)
}

func (s *KVCacheStore) ReadFresh(ctx context.Context, symbol, kind string, maxAge time.Duration) (*models.CacheEntry, error) {
	var e kvEntry
	if err := s.svc.Get(ctx, s.key(symbol, kind), &e); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domrepo.ErrEntryNotFound
		}
		if s.l != nil {
			s.l.Error("kv cache read error",
				applogger.String("symbol", symbol),
				applogger.String("kind", kind),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	if e.FetchedAt.Before(s.now().Add(-maxAge)) {
		return nil, domrepo.ErrEntryNotFound
	}
	return &models.CacheEntry{Symbol: symbol, Kind: kind, Payload: e.Payload, FetchedAt: e.FetchedAt}, nil
}

func (s *KVCacheStore) Upsert(ctx context.Context, symbol, kind, payload string) error {
	e := kvEntry{Payload: payload, FetchedAt: s.now().UTC()}
	if err := s.svc.Set(ctx, s.key(symbol, kind), e, s.retention); err != nil {
		if s.l != nil {
			s.l.Error("kv cache upsert error",
				applogger.String("symbol", symbol),
				applogger.String("kind", kind),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (s *KVCacheStore) Close() error { return s.svc.Close() }
