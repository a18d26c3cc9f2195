package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"QuantMini/internal/domain/models"
	domrepo "QuantMini/internal/domain/repository"
	svcmetrics "QuantMini/internal/service/metrics"
	pkghttp "QuantMini/pkg/http"
	applogger "QuantMini/pkg/logger"

	"golang.org/x/time/rate"
)

// RESTClient talks to the market data v2 REST API directly.
type RESTClient struct {
	cfg     Config
	http    *pkghttp.Client
	limiter *rate.Limiter
	l       *applogger.Logger
}

var _ domrepo.MarketData = (*RESTClient)(nil)

// NewRESTClient creates a REST market data client. A nil hc gets a default
// client with cfg.Timeout.
func NewRESTClient(cfg Config, hc *http.Client, l *applogger.Logger) *RESTClient {
	opts := []pkghttp.ClientOption{
		pkghttp.WithTimeout(cfg.Timeout),
		pkghttp.WithHeader("APCA-API-KEY-ID", cfg.KeyID),
		pkghttp.WithHeader("APCA-API-SECRET-KEY", cfg.SecretKey),
	}
	if hc != nil {
		opts = append(opts, pkghttp.WithHTTPClient(hc))
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &RESTClient{
		cfg:     cfg,
		http:    pkghttp.NewClient(cfg.dataURL(), opts...),
		limiter: newLimiter(cfg.RateLimitPerMin),
		l:       l,
	}
}

// GetBars fetches historical bars, following next_page_token until the
// upstream runs out of pages or q.Limit bars have been collected.
func (c *RESTClient) GetBars(ctx context.Context, q domrepo.BarsQuery) (*models.RawBarsPayload, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = c.cfg.Limit
	}
	feed := firstNonEmpty(q.Feed, c.cfg.Feed, "sip")
	adj := firstNonEmpty(q.Adjustment, c.cfg.Adjustment, "raw")

	out := &models.RawBarsPayload{Bars: map[string][]models.RawBar{}}
	var token string
	collected := 0
	for {
		page := maxPageSize
		if limit > 0 && limit-collected < page {
			page = limit - collected
		}
		params := map[string][]string{
			"symbols":    {q.Symbol},
			"timeframe":  {string(q.Timeframe)},
			"start":      {q.Start},
			"end":        {q.End},
			"limit":      {strconv.Itoa(page)},
			"adjustment": {adj},
			"feed":       {feed},
			"sort":       {"asc"},
		}
		if token != "" {
			params["page_token"] = []string{token}
		}

		var resp models.RawBarsPayload
		if err := c.call(ctx, "bars", "/v2/stocks/bars", params, &resp); err != nil {
			return nil, err
		}
		for sym, bars := range resp.Bars {
			out.Bars[sym] = append(out.Bars[sym], bars...)
			collected += len(bars)
		}

		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			break
		}
		if limit > 0 && collected >= limit {
			out.NextPageToken = resp.NextPageToken
			break
		}
		token = *resp.NextPageToken
		c.l.Debug("alpaca: following page token",
			applogger.String("symbol", q.Symbol),
			applogger.Int("collected", collected),
		)
	}
	return out, nil
}

// GetLatestBars returns the upstream latest-bar body verbatim.
func (c *RESTClient) GetLatestBars(ctx context.Context, symbol string) (json.RawMessage, error) {
	params := map[string][]string{"symbols": {symbol}}
	if c.cfg.Feed != "" {
		params["feed"] = []string{c.cfg.Feed}
	}
	var raw json.RawMessage
	if err := c.call(ctx, "latest", "/v2/stocks/bars/latest", params, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *RESTClient) call(ctx context.Context, endpoint, path string, params map[string][]string, dest interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("alpaca %s: rate limiter: %w", endpoint, err)
	}
	start := time.Now()
	err := c.http.GetJSON(ctx, path, params, dest)
	svcmetrics.UpstreamLatency.WithLabelValues("rest", endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		svcmetrics.UpstreamErrors.WithLabelValues("rest", endpoint).Inc()
		var se *pkghttp.StatusError
		if errors.As(err, &se) {
			return &UpstreamError{StatusCode: se.StatusCode, Message: se.Body, err: err}
		}
		return fmt.Errorf("alpaca %s: %w", endpoint, err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
