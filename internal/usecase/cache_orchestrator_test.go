package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"QuantMini/internal/domain/models"
	domrepo "QuantMini/internal/domain/repository"

	"github.com/guregu/null/v6"
)

func latestRow(close float64) models.Result {
	return models.LatestResult(models.FactorRow{Cells: []models.Cell{
		{Column: models.ColClose, Value: null.FloatFrom(close)},
		{Column: models.ColReturnPct1D, Value: null.Float{}},
	}})
}

func countingCompute(calls *int32, res models.Result) ComputeFunc {
	return func(context.Context) (models.Result, error) {
		atomic.AddInt32(calls, 1)
		return res, nil
	}
}

func TestGetOrUpdateIsIdempotentWithinWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore(func() time.Time { return now })
	m := newCountingMetrics()
	o := NewCacheOrchestrator(store, WithMetrics(m))

	var calls int32
	first, err := o.GetOrUpdate(context.Background(), "AAPL", "factors:k", countingCompute(&calls, latestRow(101)))
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	now = now.Add(4 * time.Minute)
	second, err := o.GetOrUpdate(context.Background(), "AAPL", "factors:k", countingCompute(&calls, latestRow(999)))
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if calls != 1 {
		t.Fatalf("compute called %d times, want 1", calls)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("cached result differs: %s vs %s", a, b)
	}
	if string(b) != `{"close":101,"return_pct_1d":null}` {
		t.Fatalf("unexpected payload %s", b)
	}
	if m.outcomes[domrepo.OutcomeHit] != 1 || m.outcomes[domrepo.OutcomeMiss] != 1 {
		t.Fatalf("unexpected outcomes %v", m.outcomes)
	}
}

func TestGetOrUpdateRecomputesStaleEntry(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore(func() time.Time { return now })
	o := NewCacheOrchestrator(store)

	var calls int32
	if _, err := o.GetOrUpdate(context.Background(), "AAPL", "k", countingCompute(&calls, latestRow(1))); err != nil {
		t.Fatal(err)
	}
	now = now.Add(5*time.Minute + time.Second)
	res, err := o.GetOrUpdate(context.Background(), "AAPL", "k", countingCompute(&calls, latestRow(2)))
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("compute called %d times, want 2", calls)
	}
	if v, _ := res.Latest.Get(models.ColClose); v.Float64 != 2 {
		t.Fatalf("expected recomputed close 2, got %v", v)
	}
	if store.upserts != 2 || len(store.rows) != 1 {
		t.Fatalf("upserts=%d rows=%d", store.upserts, len(store.rows))
	}
}

func TestGetOrUpdateCorruptPayloadIsMiss(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore(func() time.Time { return now })
	store.put("AAPL", "k", "{not json")
	m := newCountingMetrics()
	o := NewCacheOrchestrator(store, WithMetrics(m))

	var calls int32
	res, err := o.GetOrUpdate(context.Background(), "AAPL", "k", countingCompute(&calls, latestRow(7)))
	if err != nil {
		t.Fatalf("corrupt payload must not surface: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected recomputation")
	}
	if v, _ := res.Latest.Get(models.ColClose); v.Float64 != 7 {
		t.Fatalf("unexpected result %+v", res)
	}
	e, _ := store.get("AAPL", "k")
	if e.Payload != `{"close":7,"return_pct_1d":null}` {
		t.Fatalf("corrupt row not replaced: %s", e.Payload)
	}
	if m.outcomes[domrepo.OutcomeCorrupt] != 1 {
		t.Fatalf("corrupt lookup not counted: %v", m.outcomes)
	}
}

func TestGetOrUpdateComputeErrorPropagatesWithoutWrite(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore(func() time.Time { return now })
	store.put("AAPL", "k", "garbage")
	o := NewCacheOrchestrator(store)

	boom := errors.New("upstream down")
	_, err := o.GetOrUpdate(context.Background(), "AAPL", "k", func(context.Context) (models.Result, error) {
		return models.Result{}, boom
	})
	if err != boom {
		t.Fatalf("expected the compute error unchanged, got %v", err)
	}
	if store.upserts != 0 {
		t.Fatalf("nothing should be written on compute failure")
	}
	if e, _ := store.get("AAPL", "k"); e.Payload != "garbage" {
		t.Fatalf("existing row must be left untouched, got %q", e.Payload)
	}
}

func TestGetOrUpdateStoreReadErrorIsMiss(t *testing.T) {
	store := newMemStore(time.Now)
	store.readErr = errors.New("database is locked")
	m := newCountingMetrics()
	o := NewCacheOrchestrator(store, WithMetrics(m))

	var calls int32
	if _, err := o.GetOrUpdate(context.Background(), "AAPL", "k", countingCompute(&calls, latestRow(1))); err != nil {
		t.Fatalf("read error must not surface: %v", err)
	}
	if calls != 1 || m.storeErr["read"] != 1 {
		t.Fatalf("calls=%d read errors=%d", calls, m.storeErr["read"])
	}
}

func TestGetOrUpdateUpsertFailureStillReturnsResult(t *testing.T) {
	store := newMemStore(time.Now)
	store.writeErr = errors.New("disk full")
	m := newCountingMetrics()
	o := NewCacheOrchestrator(store, WithMetrics(m))

	var calls int32
	res, err := o.GetOrUpdate(context.Background(), "AAPL", "k", countingCompute(&calls, latestRow(3)))
	if err != nil {
		t.Fatalf("upsert failure must not surface: %v", err)
	}
	if res.Mode != models.ModeLatest || m.storeErr["upsert"] != 1 {
		t.Fatalf("unexpected result %+v / %v", res, m.storeErr)
	}
}

func TestGetOrUpdateAbsentStorage(t *testing.T) {
	for _, storeAbsent := range []bool{true, false} {
		store := newMemStore(time.Now)
		o := NewCacheOrchestrator(store, WithStoreAbsent(storeAbsent))
		var calls int32
		res, err := o.GetOrUpdate(context.Background(), "ZZZZ", "k", countingCompute(&calls, models.AbsentResult(models.ReasonNoBars)))
		if err != nil || !res.IsAbsent() {
			t.Fatalf("store_absent=%v: res=%+v err=%v", storeAbsent, res, err)
		}
		e, ok := store.get("ZZZZ", "k")
		if ok != storeAbsent {
			t.Fatalf("store_absent=%v: row present=%v", storeAbsent, ok)
		}
		if ok && e.Payload != `{"error":"No bars data found"}` {
			t.Fatalf("unexpected absent payload %s", e.Payload)
		}
	}
}

func TestGetOrUpdateDeduplicatesConcurrentMisses(t *testing.T) {
	const n = 8
	store := newMemStore(time.Now)
	var readers sync.WaitGroup
	readers.Add(n)
	store.onRead = readers.Done
	o := NewCacheOrchestrator(store)

	release := make(chan struct{})
	var calls int32
	compute := func(context.Context) (models.Result, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return latestRow(5), nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.GetOrUpdate(context.Background(), "AAPL", "k", compute)
			errs <- err
		}()
	}
	readers.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("GetOrUpdate: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("compute called %d times, want 1", calls)
	}
	if store.upserts != 1 {
		t.Fatalf("upserts = %d, want 1", store.upserts)
	}
}

func TestGetOrUpdateWaiterSurvivesFirstCallerCancel(t *testing.T) {
	store := newMemStore(time.Now)
	reads := make(chan struct{}, 2)
	store.onRead = func() { reads <- struct{}{} }
	o := NewCacheOrchestrator(store)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	compute := func(ctx context.Context) (models.Result, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return latestRow(7), nil
		case <-ctx.Done():
			return models.Result{}, ctx.Err()
		}
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := o.GetOrUpdate(firstCtx, "AAPL", "k", compute)
		firstErr <- err
	}()
	<-started

	type outcome struct {
		res models.Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := o.GetOrUpdate(context.Background(), "AAPL", "k", compute)
		second <- outcome{res, err}
	}()
	<-reads
	<-reads
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancelled caller did not return")
	}

	close(release)
	select {
	case out := <-second:
		if out.err != nil {
			t.Fatalf("caller with live context got %v", out.err)
		}
		if out.res.IsAbsent() || out.res.Rows() != 1 {
			t.Fatalf("unexpected result %+v", out.res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second caller did not return")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("compute called %d times, want 1", n)
	}
	if _, ok := store.get("AAPL", "k"); !ok {
		t.Fatalf("shared result was not stored")
	}
}
