package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"QuantMini/internal/domain/models"
	domrepo "QuantMini/internal/domain/repository"
)

type memStore struct {
	mu       sync.Mutex
	now      func() time.Time
	rows     map[string]models.CacheEntry
	reads    int
	upserts  int
	readErr  error
	writeErr error
	onRead   func()
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{now: now, rows: map[string]models.CacheEntry{}}
}

func (s *memStore) Init(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

func (s *memStore) ReadFresh(_ context.Context, symbol, kind string, maxAge time.Duration) (*models.CacheEntry, error) {
	s.mu.Lock()
	s.reads++
	e, ok := s.rows[symbol+"|"+kind]
	err := s.readErr
	hook := s.onRead
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	if !ok || e.Age(s.now()) > maxAge {
		return nil, domrepo.ErrEntryNotFound
	}
	return &e, nil
}

func (s *memStore) Upsert(_ context.Context, symbol, kind, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.upserts++
	s.rows[symbol+"|"+kind] = models.CacheEntry{Symbol: symbol, Kind: kind, Payload: payload, FetchedAt: s.now()}
	return nil
}

func (s *memStore) put(symbol, kind, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[symbol+"|"+kind] = models.CacheEntry{Symbol: symbol, Kind: kind, Payload: payload, FetchedAt: s.now()}
}

func (s *memStore) get(symbol, kind string) (models.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[symbol+"|"+kind]
	return e, ok
}

type fakeMarket struct {
	mu      sync.Mutex
	payload *models.RawBarsPayload
	latest  json.RawMessage
	err     error
	calls   int
	queries []domrepo.BarsQuery
}

func (m *fakeMarket) GetBars(_ context.Context, q domrepo.BarsQuery) (*models.RawBarsPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.queries = append(m.queries, q)
	if m.err != nil {
		return nil, m.err
	}
	return m.payload, nil
}

func (m *fakeMarket) GetLatestBars(context.Context, string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.latest, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.FactorsComputed
	err    error
}

func (p *recordingPublisher) PublishFactorsComputed(_ context.Context, ev *models.FactorsComputed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	storeErr map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{outcomes: map[string]int{}, storeErr: map[string]int{}}
}

func (m *countingMetrics) RecordCacheLookup(o string) {
	m.mu.Lock()
	m.outcomes[o]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordStoreError(op string) {
	m.mu.Lock()
	m.storeErr[op]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordComputeLatency(float64)    {}
func (m *countingMetrics) RecordLastClose(string, float64) {}

func barsPayload(symbol string, closes ...float64) *models.RawBarsPayload {
	start := time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)
	bars := make([]models.RawBar, len(closes))
	for i, c := range closes {
		bars[i] = models.RawBar{
			T: start.AddDate(0, 0, i).Format(time.RFC3339),
			O: c, H: c, L: c, C: c, V: 1000,
		}
	}
	return &models.RawBarsPayload{Bars: map[string][]models.RawBar{symbol: bars}}
}
