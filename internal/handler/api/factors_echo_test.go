package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"QuantMini/internal/domain/models"
	domrepo "QuantMini/internal/domain/repository"
	"QuantMini/internal/repository"
	"QuantMini/internal/usecase"
	"QuantMini/pkg/cache"
	xlogger "QuantMini/pkg/logger"
	"QuantMini/pkg/queue"

	"github.com/labstack/echo/v4"
)

type stubMarket struct {
	payload *models.RawBarsPayload
	latest  json.RawMessage
	err     error
	calls   int
}

func (m *stubMarket) GetBars(context.Context, domrepo.BarsQuery) (*models.RawBarsPayload, error) {
	m.calls++
	return m.payload, m.err
}

func (m *stubMarket) GetLatestBars(context.Context, string) (json.RawMessage, error) {
	m.calls++
	return m.latest, m.err
}

type stubQueue struct{ got []interface{} }

func (q *stubQueue) Enqueue(_ context.Context, _ string, payload interface{}) error {
	q.got = append(q.got, payload)
	return nil
}

func closes(symbol string, vals ...float64) *models.RawBarsPayload {
	start := time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)
	bars := make([]models.RawBar, len(vals))
	for i, c := range vals {
		bars[i] = models.RawBar{T: start.AddDate(0, 0, i).Format(time.RFC3339), O: c, H: c, L: c, C: c, V: 10}
	}
	return &models.RawBarsPayload{Bars: map[string][]models.RawBar{symbol: bars}}
}

func newTestServer(md *stubMarket, q *stubQueue) *echo.Echo {
	store := repository.NewKVCacheStore(cache.NewMemoryCache(), time.Hour)
	orch := usecase.NewCacheOrchestrator(store)
	uc := usecase.NewFactorsUseCase(md, orch, nil, cache.NewMemoryCache(cache.WithMemoryMaxSize(1000)), nil,
		usecase.FactorsOptions{LookbackDays: 365, Limit: 1000, PricesTTL: time.Second}, nil)

	var enq queue.Enqueuer
	if q != nil {
		enq = q
	}
	h := NewFactorsEchoHandler(xlogger.NewNop(), uc, enq, 300)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	rec := do(newTestServer(&stubMarket{}, nil), http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Fatalf("unexpected status response %d %s", rec.Code, rec.Body.String())
	}
}

func TestFactorsLatestAndCache(t *testing.T) {
	md := &stubMarket{payload: closes("AAPL", 100, 102, 101)}
	e := newTestServer(md, nil)

	target := "/api/factors/aapl?start=2024-01-01&end=2024-01-31&as=latest"
	rec := do(e, http.MethodGet, target, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var row map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &row); err != nil {
		t.Fatalf("latest should be an object: %v", err)
	}
	if row["close"] != 101.0 {
		t.Fatalf("unexpected latest row %v", row)
	}
	if _, ok := row["t"]; ok {
		t.Fatalf("latest row must not carry t")
	}
	if _, ok := row["sma_5"]; ok {
		t.Fatalf("sma_5 must be gated out for three bars")
	}
	if rec.Header().Get(echo.HeaderCacheControl) != "private, max-age=300" {
		t.Fatalf("missing cache-control header")
	}

	do(e, http.MethodGet, target, "")
	if md.calls != 1 {
		t.Fatalf("second request should be served from cache, upstream calls=%d", md.calls)
	}
}

func TestFactorsSeriesArray(t *testing.T) {
	e := newTestServer(&stubMarket{payload: closes("AAPL", 100, 102, 101)}, nil)
	rec := do(e, http.MethodGet, "/api/factors/AAPL?start=01/01/2024&end=01/31/2024", "")
	var rows []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("series should be an array: %v (%s)", err, rec.Body.String())
	}
	if len(rows) != 3 || rows[0]["t"] != "2024-01-02 05:00:00+00:00" {
		t.Fatalf("unexpected series %v", rows)
	}
	if rows[0]["return_pct_1d"] != nil || rows[0]["cum_return"] != nil {
		t.Fatalf("first row returns must be null: %v", rows[0])
	}
}

func TestFactorsModeIgnoresCase(t *testing.T) {
	e := newTestServer(&stubMarket{payload: closes("AAPL", 100, 102, 101)}, nil)
	rec := do(e, http.MethodGet, "/api/factors/AAPL?start=2024-01-01&end=2024-01-31&as=Latest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var row map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &row); err != nil {
		t.Fatalf("latest should be an object: %v (%s)", err, rec.Body.String())
	}
	if row["close"] != 101.0 {
		t.Fatalf("unexpected latest row %v", row)
	}
}

func TestFactorsAbsentIs200(t *testing.T) {
	e := newTestServer(&stubMarket{payload: &models.RawBarsPayload{Bars: map[string][]models.RawBar{}}}, nil)
	rec := do(e, http.MethodGet, "/api/factors/ZZZZ", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"error":"No bars data found"}` {
		t.Fatalf("unexpected absent response %d %s", rec.Code, rec.Body.String())
	}
}

func TestFactorsErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		md     *stubMarket
		target string
		want   int
	}{
		{"bad mode", &stubMarket{}, "/api/factors/AAPL?as=table", http.StatusBadRequest},
		{"bad date", &stubMarket{}, "/api/factors/AAPL?start=someday", http.StatusBadRequest},
		{"bad symbol", &stubMarket{}, "/api/factors/$$$", http.StatusBadRequest},
		{"upstream", &stubMarket{err: errors.New("connection refused")}, "/api/factors/AAPL", http.StatusBadGateway},
	}
	for _, tc := range cases {
		rec := do(newTestServer(tc.md, nil), http.MethodGet, tc.target, "")
		if rec.Code != tc.want {
			t.Fatalf("%s: status %d, want %d (%s)", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestPricesPassThrough(t *testing.T) {
	body := `{"bars":{"AAPL":{"t":"2024-01-02T20:59:00Z","c":190.1}}}`
	e := newTestServer(&stubMarket{latest: json.RawMessage(body)}, nil)
	rec := do(e, http.MethodGet, "/api/prices/AAPL", "")
	if rec.Code != http.StatusOK || rec.Body.String() != body {
		t.Fatalf("unexpected prices response %d %s", rec.Code, rec.Body.String())
	}
}

func TestBarsReturnsPayload(t *testing.T) {
	e := newTestServer(&stubMarket{payload: closes("AAPL", 1, 2)}, nil)
	rec := do(e, http.MethodGet, "/api/bars/AAPL?timeframe=1Day", "")
	var p models.RawBarsPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(p.Bars["AAPL"]) != 2 {
		t.Fatalf("unexpected bars %s", rec.Body.String())
	}
}

func TestRefresh(t *testing.T) {
	rec := do(newTestServer(&stubMarket{}, nil), http.MethodPost, "/api/factors/AAPL/refresh", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("without a queue refresh should be 503, got %d", rec.Code)
	}

	q := &stubQueue{}
	rec = do(newTestServer(&stubMarket{}, q), http.MethodPost, "/api/factors/msft/refresh", `{"as":"latest"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(q.got) != 1 {
		t.Fatalf("expected one queued refresh")
	}
	rr, ok := q.got[0].(usecase.RefreshRequest)
	if !ok || rr.Symbol != "MSFT" || rr.Mode != "latest" {
		t.Fatalf("unexpected queued payload %#v", q.got[0])
	}
}
