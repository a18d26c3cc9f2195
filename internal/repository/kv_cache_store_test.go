package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	domrepo "QuantMini/internal/domain/repository"
	"QuantMini/pkg/cache"
)

func TestKVCacheStoreFreshness(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache(cache.WithMemoryMaxSize(0))
	s := NewKVCacheStore(mem, 0)
	defer s.Close()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.SetClock(clock.Now)

	if _, err := s.ReadFresh(ctx, "AAPL", "k", time.Minute); !errors.Is(err, domrepo.ErrEntryNotFound) {
		t.Fatalf("expected miss, got %v", err)
	}
	_ = s.Upsert(ctx, "AAPL", "k", "one")
	_ = s.Upsert(ctx, "AAPL", "k", "two")
	e, err := s.ReadFresh(ctx, "AAPL", "k", time.Minute)
	if err != nil || e.Payload != "two" {
		t.Fatalf("expected latest payload, got %+v err=%v", e, err)
	}
	if mem.Len() != 1 {
		t.Fatalf("expected one key, got %d", mem.Len())
	}
	clock.t = clock.t.Add(2 * time.Minute)
	if _, err := s.ReadFresh(ctx, "AAPL", "k", time.Minute); !errors.Is(err, domrepo.ErrEntryNotFound) {
		t.Fatalf("expected stale miss, got %v", err)
	}
}

func TestKVCacheStoreCorruptValueIsError(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	s := NewKVCacheStore(mem, 0)
	defer s.Close()

	_ = mem.Set(ctx, s.key("AAPL", "k"), "not json", 0)
	if _, err := s.ReadFresh(ctx, "AAPL", "k", time.Minute); err == nil || errors.Is(err, domrepo.ErrEntryNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
