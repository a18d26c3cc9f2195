package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"QuantMini/internal/domain/models"
	domrepo "QuantMini/internal/domain/repository"
	svcmetrics "QuantMini/internal/service/metrics"
	applogger "QuantMini/pkg/logger"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/time/rate"
)

// SDKClient serves MarketData through the official marketdata client and
// maps its bars back into the REST wire shape.
type SDKClient struct {
	cfg     Config
	client  *marketdata.Client
	limiter *rate.Limiter
	l       *applogger.Logger
}

var _ domrepo.MarketData = (*SDKClient)(nil)

func NewSDKClient(cfg Config, l *applogger.Logger) *SDKClient {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.KeyID,
		APISecret: cfg.SecretKey,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &SDKClient{
		cfg:     cfg,
		client:  marketdata.NewClient(opts),
		limiter: newLimiter(cfg.RateLimitPerMin),
		l:       l,
	}
}

func (c *SDKClient) GetBars(ctx context.Context, q domrepo.BarsQuery) (*models.RawBarsPayload, error) {
	tf, err := sdkTimeFrame(q.Timeframe)
	if err != nil {
		return nil, err
	}
	start, err := time.Parse(time.RFC3339, q.Start)
	if err != nil {
		return nil, fmt.Errorf("alpaca sdk: start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, q.End)
	if err != nil {
		return nil, fmt.Errorf("alpaca sdk: end: %w", err)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = c.cfg.Limit
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("alpaca sdk: rate limiter: %w", err)
	}
	t0 := time.Now()
	multi, err := c.client.GetMultiBars([]string{q.Symbol}, marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Start:      start,
		End:        end,
		TotalLimit: limit,
		Feed:       marketdata.Feed(firstNonEmpty(q.Feed, c.cfg.Feed, "sip")),
		Adjustment: marketdata.Adjustment(firstNonEmpty(q.Adjustment, c.cfg.Adjustment, "raw")),
	})
	svcmetrics.UpstreamLatency.WithLabelValues("sdk", "bars").Observe(time.Since(t0).Seconds())
	if err != nil {
		svcmetrics.UpstreamErrors.WithLabelValues("sdk", "bars").Inc()
		return nil, fmt.Errorf("alpaca sdk: GetMultiBars: %w", err)
	}

	out := &models.RawBarsPayload{Bars: make(map[string][]models.RawBar, len(multi))}
	for sym, bars := range multi {
		raw := make([]models.RawBar, 0, len(bars))
		for _, b := range bars {
			raw = append(raw, toRawBar(b))
		}
		out.Bars[strings.ToUpper(sym)] = raw
	}
	return out, nil
}

// GetLatestBars returns {"bars": {SYM: {...}}}, the same body the REST
// latest endpoint produces.
func (c *SDKClient) GetLatestBars(ctx context.Context, symbol string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("alpaca sdk: rate limiter: %w", err)
	}
	t0 := time.Now()
	bar, err := c.client.GetLatestBar(symbol, marketdata.GetLatestBarRequest{
		Feed: marketdata.Feed(firstNonEmpty(c.cfg.Feed, "sip")),
	})
	svcmetrics.UpstreamLatency.WithLabelValues("sdk", "latest").Observe(time.Since(t0).Seconds())
	if err != nil {
		svcmetrics.UpstreamErrors.WithLabelValues("sdk", "latest").Inc()
		return nil, fmt.Errorf("alpaca sdk: GetLatestBar: %w", err)
	}
	body := map[string]map[string]models.RawBar{"bars": {}}
	if bar != nil {
		body["bars"][symbol] = toRawBar(*bar)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("alpaca sdk: encode latest: %w", err)
	}
	return b, nil
}

func toRawBar(b marketdata.Bar) models.RawBar {
	n := float64(b.TradeCount)
	vw := b.VWAP
	return models.RawBar{
		T:  b.Timestamp.UTC().Format(time.RFC3339),
		O:  b.Open,
		H:  b.High,
		L:  b.Low,
		C:  b.Close,
		V:  float64(b.Volume),
		N:  &n,
		VW: &vw,
	}
}

func sdkTimeFrame(tf domrepo.Timeframe) (marketdata.TimeFrame, error) {
	switch tf {
	case domrepo.TF1Min:
		return marketdata.NewTimeFrame(1, marketdata.Min), nil
	case domrepo.TF5Min:
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case domrepo.TF15Min:
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case domrepo.TF1Hour:
		return marketdata.NewTimeFrame(1, marketdata.Hour), nil
	case domrepo.TF1Day, "":
		return marketdata.OneDay, nil
	case domrepo.TF1Week:
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	case domrepo.TF1Month:
		return marketdata.NewTimeFrame(1, marketdata.Month), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("alpaca sdk: unsupported timeframe %q", tf)
	}
}
