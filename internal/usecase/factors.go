package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"QuantMini/internal/domain/models"
	domrepo "QuantMini/internal/domain/repository"
	"QuantMini/internal/services/features"
	"QuantMini/pkg/cache"
	applogger "QuantMini/pkg/logger"
	"QuantMini/pkg/metrics"
	"QuantMini/pkg/util"
)

var (
	// ErrInvalidInput marks request errors the caller can fix.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstream marks failures talking to the market data API.
	ErrUpstream = errors.New("market data unavailable")
)

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,14}$`)

// FactorsParams is a factor request as received from a client.
type FactorsParams struct {
	Symbol    string
	Start     string
	End       string
	Timeframe string
	Mode      string
}

// FactorsQuery is a validated, normalised FactorsParams.
type FactorsQuery struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	Start     string // ISO8601, start of day
	End       string // ISO8601, end of day
	Mode      models.Mode
}

// Kind is the cache key component for q: factors:<tf>:<start>:<end>:<mode>.
func (q FactorsQuery) Kind() string {
	return cache.Key("factors", string(q.Timeframe), q.Start, q.End, string(q.Mode))
}

// Params returns q in the form Resolve maps back to q, with dates fixed.
func (q FactorsQuery) Params() FactorsParams {
	return FactorsParams{
		Symbol:    q.Symbol,
		Start:     q.Start[:len("2006-01-02")],
		End:       q.End[:len("2006-01-02")],
		Timeframe: string(q.Timeframe),
		Mode:      string(q.Mode),
	}
}

// FactorsOptions carry request defaults.
type FactorsOptions struct {
	LookbackDays int
	DayFirst     bool
	Limit        int
	PricesTTL    time.Duration
}

// FactorsUseCase serves prices, bars and cached factor computations.
type FactorsUseCase struct {
	md     domrepo.MarketData
	orch   *CacheOrchestrator
	events domrepo.EventPublisher
	prices cache.Service
	mtr    domrepo.Metrics
	opts   FactorsOptions
	l      *applogger.Logger
	now    func() time.Time
}

func NewFactorsUseCase(
	md domrepo.MarketData,
	orch *CacheOrchestrator,
	events domrepo.EventPublisher,
	prices cache.Service,
	mtr domrepo.Metrics,
	opts FactorsOptions,
	l *applogger.Logger,
) *FactorsUseCase {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 365
	}
	if mtr == nil {
		mtr = metrics.Nop{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &FactorsUseCase{
		md:     md,
		orch:   orch,
		events: events,
		prices: prices,
		mtr:    mtr,
		opts:   opts,
		l:      l,
		now:    time.Now,
	}
}

// NormalizeSymbol upper-cases and checks a ticker.
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if !symbolPattern.MatchString(sym) {
		return "", fmt.Errorf("%w: symbol %q", ErrInvalidInput, s)
	}
	return sym, nil
}

// Resolve validates p and fills in the default date range.
func (uc *FactorsUseCase) Resolve(p FactorsParams) (FactorsQuery, error) {
	sym, err := NormalizeSymbol(p.Symbol)
	if err != nil {
		return FactorsQuery{}, err
	}
	mode, err := models.ParseMode(p.Mode)
	if err != nil {
		return FactorsQuery{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	tf, err := domrepo.ParseTimeframe(p.Timeframe)
	if err != nil {
		return FactorsQuery{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	defStart, defEnd := util.DefaultRange(uc.now(), uc.opts.LookbackDays)
	start, end := p.Start, p.End
	if start == "" {
		start = defStart
	}
	if end == "" {
		end = defEnd
	}
	isoStart, err := util.ToISO8601(start, false, uc.opts.DayFirst)
	if err != nil {
		return FactorsQuery{}, fmt.Errorf("%w: start: %v", ErrInvalidInput, err)
	}
	isoEnd, err := util.ToISO8601(end, true, uc.opts.DayFirst)
	if err != nil {
		return FactorsQuery{}, fmt.Errorf("%w: end: %v", ErrInvalidInput, err)
	}
	if isoStart > isoEnd {
		return FactorsQuery{}, fmt.Errorf("%w: start after end", ErrInvalidInput)
	}

	return FactorsQuery{Symbol: sym, Timeframe: tf, Start: isoStart, End: isoEnd, Mode: mode}, nil
}

// GetFactors returns the factor result for p, from cache when fresh.
func (uc *FactorsUseCase) GetFactors(ctx context.Context, p FactorsParams) (models.Result, error) {
	q, err := uc.Resolve(p)
	if err != nil {
		return models.Result{}, err
	}
	return uc.orch.GetOrUpdate(ctx, q.Symbol, q.Kind(), uc.computeFunc(q))
}

// Refresh recomputes and stores the result for p unconditionally.
func (uc *FactorsUseCase) Refresh(ctx context.Context, p FactorsParams) (models.Result, error) {
	q, err := uc.Resolve(p)
	if err != nil {
		return models.Result{}, err
	}
	return uc.orch.Refresh(ctx, q.Symbol, q.Kind(), uc.computeFunc(q))
}

func (uc *FactorsUseCase) computeFunc(q FactorsQuery) ComputeFunc {
	return func(ctx context.Context) (models.Result, error) {
		payload, err := uc.md.GetBars(ctx, uc.barsQuery(q))
		if err != nil {
			return models.Result{}, fmt.Errorf("fetch bars %s: %w: %w", q.Symbol, ErrUpstream, err)
		}
		series, err := features.NormalizeBars(payload, q.Symbol)
		var res models.Result
		switch {
		case features.IsDataAbsence(err):
			res = models.AbsentResult(err.Error())
		case err != nil:
			return models.Result{}, fmt.Errorf("normalize bars %s: %w", q.Symbol, err)
		default:
			if n := series.Len(); n > 0 {
				uc.mtr.RecordLastClose(q.Symbol, series.Bars[n-1].Close)
			}
			res, err = features.Compute(series, q.Mode)
			if err != nil {
				return models.Result{}, fmt.Errorf("compute factors %s: %w", q.Symbol, err)
			}
		}
		uc.publish(ctx, q, res)
		return res, nil
	}
}

func (uc *FactorsUseCase) publish(ctx context.Context, q FactorsQuery, res models.Result) {
	if uc.events == nil {
		return
	}
	ev := &models.FactorsComputed{
		Symbol:     q.Symbol,
		Kind:       q.Kind(),
		Mode:       string(q.Mode),
		Rows:       res.Rows(),
		Absent:     res.Absent,
		ComputedAt: uc.now().UTC(),
	}
	if err := uc.events.PublishFactorsComputed(ctx, ev); err != nil {
		uc.l.Warn("publish factors event failed",
			applogger.String("symbol", q.Symbol),
			applogger.Error(err),
		)
	}
}

func (uc *FactorsUseCase) barsQuery(q FactorsQuery) domrepo.BarsQuery {
	return domrepo.BarsQuery{
		Symbol:    q.Symbol,
		Timeframe: q.Timeframe,
		Start:     q.Start,
		End:       q.End,
		Limit:     uc.opts.Limit,
	}
}

// BarsParams selects a raw historical bars window.
type BarsParams struct {
	Symbol    string
	Start     string
	End       string
	Timeframe string
}

// GetBars returns the upstream bar payload for p without caching.
func (uc *FactorsUseCase) GetBars(ctx context.Context, p BarsParams) (*models.RawBarsPayload, error) {
	q, err := uc.Resolve(FactorsParams{Symbol: p.Symbol, Start: p.Start, End: p.End, Timeframe: p.Timeframe})
	if err != nil {
		return nil, err
	}
	payload, err := uc.md.GetBars(ctx, uc.barsQuery(q))
	if err != nil {
		return nil, fmt.Errorf("fetch bars %s: %w: %w", q.Symbol, ErrUpstream, err)
	}
	return payload, nil
}

// GetPrices returns the latest bar body for symbol, cached for PricesTTL.
func (uc *FactorsUseCase) GetPrices(ctx context.Context, symbol string) (json.RawMessage, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	key := cache.Key("latest", sym)
	if uc.prices != nil && uc.opts.PricesTTL > 0 {
		var b []byte
		if err := uc.prices.Get(ctx, key, &b); err == nil {
			return b, nil
		}
	}
	raw, err := uc.md.GetLatestBars(ctx, sym)
	if err != nil {
		return nil, fmt.Errorf("fetch latest %s: %w: %w", sym, ErrUpstream, err)
	}
	if uc.prices != nil && uc.opts.PricesTTL > 0 {
		_ = uc.prices.Set(ctx, key, []byte(raw), uc.opts.PricesTTL)
	}
	return raw, nil
}
